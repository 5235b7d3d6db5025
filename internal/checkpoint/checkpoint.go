// Package checkpoint takes in-memory pre-sync/pre-merge snapshots of file
// state and restores them on failure. Checkpoints never survive a process
// restart — they're a within-session safety net, not durable recovery.
// Grounded on the store's File shape (internal/store) since a checkpoint is
// just a bounded, evictable cache of a subset of File fields.
package checkpoint

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/cloudtext/docsync/internal/store"
)

// Reason records why a checkpoint was taken.
type Reason string

// The three checkpoint reasons spec'd for the sync protocol.
const (
	ReasonPreSync  Reason = "pre_sync"
	ReasonPreMerge Reason = "pre_merge"
	ReasonManual   Reason = "manual"
)

const (
	// MaxCheckpoints bounds the number of live checkpoints.
	MaxCheckpoints = 50
	// MaxCheckpointAge bounds how long a checkpoint may live before eviction.
	MaxCheckpointAge = time.Hour
)

// Snapshot is the restorable subset of a File's state.
type Snapshot struct {
	Content string
	ETag    string
	Version int64
}

// Checkpoint is a single recorded snapshot.
type Checkpoint struct {
	ID        string
	FileID    string
	Snapshot  Snapshot
	CreatedAt time.Time
	Reason    Reason
}

// Store is the subset of the durable store the checkpoint manager needs to
// read snapshots from and write rollbacks back to.
type Store interface {
	GetFile(ctx context.Context, id string) (*store.File, error)
	SaveFile(ctx context.Context, f *store.File) error
}

// Manager owns the in-memory checkpoint table.
type Manager struct {
	store Store
	now   func() time.Time
	seq   func() string

	mu          stdsync.Mutex
	checkpoints map[string]*Checkpoint
	order       []string // insertion order, oldest first
}

// NewManager creates a checkpoint manager backed by store. now and seq are
// injectable for deterministic tests; pass nil for both to use
// time.Now and a counter-based id generator.
func NewManager(s Store, now func() time.Time, seq func() string) *Manager {
	if now == nil {
		now = time.Now
	}

	if seq == nil {
		var counter int64
		seq = func() string {
			counter++
			return fmt.Sprintf("seq-%d", counter)
		}
	}

	return &Manager{
		store:       s,
		now:         now,
		seq:         seq,
		checkpoints: make(map[string]*Checkpoint),
	}
}

// Create snapshots fileID's current {content, etag, version} from the store
// and records it under a synthetic id combining fileID, timestamp, and a
// uniqueness suffix.
func (m *Manager) Create(ctx context.Context, fileID string, reason Reason) (*Checkpoint, error) {
	f, err := m.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: create for %s: %w", fileID, err)
	}

	now := m.now()
	id := fmt.Sprintf("%s-%d-%s", fileID, now.UnixNano(), m.seq())

	cp := &Checkpoint{
		ID:     id,
		FileID: fileID,
		Snapshot: Snapshot{
			Content: f.Content,
			ETag:    f.ETag,
			Version: f.Version,
		},
		CreatedAt: now,
		Reason:    reason,
	}

	m.mu.Lock()
	m.checkpoints[id] = cp
	m.order = append(m.order, id)
	m.evictLocked()
	m.mu.Unlock()

	return cp, nil
}

// Rollback writes the checkpointed snapshot back into the store, marking
// the file dirty again, then removes the checkpoint. Idempotent: a
// checkpoint already rolled back (or evicted) is a no-op success, since the
// caller's only way to tell is calling Rollback again. Returns an error
// (without removing the checkpoint) if the store write fails.
func (m *Manager) Rollback(ctx context.Context, id string) error {
	m.mu.Lock()
	cp, ok := m.checkpoints[id]
	m.mu.Unlock()

	if !ok {
		return nil
	}

	f, err := m.store.GetFile(ctx, cp.FileID)
	if err != nil {
		return fmt.Errorf("checkpoint: rollback %s: read current file: %w", id, err)
	}

	f.Content = cp.Snapshot.Content
	f.ETag = cp.Snapshot.ETag
	f.Version = cp.Snapshot.Version
	f.IsDirty = true

	if err := m.store.SaveFile(ctx, f); err != nil {
		return fmt.Errorf("checkpoint: rollback %s: write file: %w", id, err)
	}

	m.Remove(id)

	return nil
}

// Remove discards a checkpoint without restoring it, called after a
// successful commit.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) {
	if _, ok := m.checkpoints[id]; !ok {
		return
	}

	delete(m.checkpoints, id)

	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// evictLocked drops entries past MaxCheckpointAge, then, if still above
// MaxCheckpoints, drops the oldest by CreatedAt until within budget. Must
// be called with m.mu held.
func (m *Manager) evictLocked() {
	now := m.now()

	var kept []string

	for _, id := range m.order {
		cp := m.checkpoints[id]
		if now.Sub(cp.CreatedAt) > MaxCheckpointAge {
			delete(m.checkpoints, id)
			continue
		}

		kept = append(kept, id)
	}

	m.order = kept

	for len(m.order) > MaxCheckpoints {
		oldest := m.order[0]
		delete(m.checkpoints, oldest)
		m.order = m.order[1:]
	}
}

// Count returns the number of live checkpoints.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.order)
}

// Get returns a live checkpoint by id, if any.
func (m *Manager) Get(id string) (*Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]

	return cp, ok
}
