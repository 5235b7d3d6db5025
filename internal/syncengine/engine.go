// Package syncengine orchestrates the push-then-pull sync cycle: push dirty
// files under per-file lock with pre-sync checkpoints, then cursor-paginate
// server changes into the local store, surfacing conflicts through a single
// installable callback.
package syncengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/cloudtext/docsync/internal/checkpoint"
	"github.com/cloudtext/docsync/internal/etag"
	"github.com/cloudtext/docsync/internal/filelock"
	"github.com/cloudtext/docsync/internal/httpclient"
	"github.com/cloudtext/docsync/internal/merge"
	"github.com/cloudtext/docsync/internal/netstate"
	"github.com/cloudtext/docsync/internal/store"
	"github.com/cloudtext/docsync/internal/syncerr"
)

// State is the sync manager's current status.
type State string

// The four states spec'd for the sync manager.
const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateError    State = "error"
	StateOffline  State = "offline"
)

// DefaultAutoSyncInterval is the default period for the optional
// background sync timer.
const DefaultAutoSyncInterval = 30 * time.Second

const pullPageLimit = 50

// ConflictDecision is returned by the installed conflict callback.
type ConflictDecision struct {
	Strategy      merge.Strategy
	MergedContent *string
}

// ConflictCallback is invoked whenever push or pull detects a conflict. The
// sync manager installs at most one at a time.
type ConflictCallback func(ctx context.Context, c Conflict) ConflictDecision

// Conflict describes one file whose local and server versions diverged.
type Conflict struct {
	FileID        string
	LocalVersion  merge.Version
	ServerVersion merge.Version
	DetectedAt    time.Time
}

// StatusChangeFunc is invoked on every state transition.
type StatusChangeFunc func(prev, cur State)

// Config wires an Engine's collaborators.
type Config struct {
	Store      *store.Store
	Detector   *netstate.Detector
	Locks      *filelock.Manager
	Checkpoint *checkpoint.Manager
	HTTP       *httpclient.Client
	Errors     *syncerr.Registry
	Logger     *slog.Logger

	UserID            string
	AutoSyncInterval  time.Duration
}

// Engine orchestrates sync cycles against a single workspace.
type Engine struct {
	store      *store.Store
	detector   *netstate.Detector
	locks      *filelock.Manager
	checkpoint *checkpoint.Manager
	http       *httpclient.Client
	errors     *syncerr.Registry
	logger     *slog.Logger
	userID     string

	mu               stdsync.Mutex
	state            State
	conflictCallback ConflictCallback
	statusListeners  []StatusChangeFunc
	queue            []queueEntry

	timerCancel context.CancelFunc
}

// New creates an Engine. Initial state is Offline if the detector already
// reports Offline, Idle otherwise.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	initial := StateIdle
	if cfg.Detector != nil && cfg.Detector.GetState() == netstate.Offline {
		initial = StateOffline
	}

	return &Engine{
		store:      cfg.Store,
		detector:   cfg.Detector,
		locks:      cfg.Locks,
		checkpoint: cfg.Checkpoint,
		http:       cfg.HTTP,
		errors:     cfg.Errors,
		logger:     cfg.Logger,
		userID:     cfg.UserID,
		state:      initial,
	}
}

// Init schedules the auto-sync timer and subscribes to connectivity
// transitions so a return to Online triggers an automatic sync.
func (e *Engine) Init(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = DefaultAutoSyncInterval
	}

	if e.detector != nil {
		e.detector.OnChange(func(prev, cur netstate.State) {
			if prev == netstate.Offline && cur == netstate.Online {
				_, _ = e.Sync(ctx)
			}
		})
	}

	timerCtx, cancel := context.WithCancel(ctx)
	e.timerCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-timerCtx.Done():
				return
			case <-ticker.C:
				_, _ = e.Sync(timerCtx)
			}
		}
	}()
}

// Destroy stops the auto-sync timer. The connectivity listener registered by
// Init stays attached to the detector; Init discards its Unsubscribe.
func (e *Engine) Destroy() {
	if e.timerCancel != nil {
		e.timerCancel()
	}
}

// SetConflictCallback installs the single conflict resolution callback.
func (e *Engine) SetConflictCallback(cb ConflictCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.conflictCallback = cb
}

// OnStatusChange registers cb to run on every future state transition.
func (e *Engine) OnStatusChange(cb StatusChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.statusListeners = append(e.statusListeners, cb)
}

func (e *Engine) setState(next State) {
	e.mu.Lock()
	prev := e.state
	e.state = next
	listeners := append([]StatusChangeFunc(nil), e.statusListeners...)
	e.mu.Unlock()

	if prev == next {
		return
	}

	for _, cb := range listeners {
		cb(prev, next)
	}
}

// Result aggregates one sync() cycle's outcome.
type Result struct {
	State    State
	Reason   string
	Pushed   int
	Pulled   int
	Conflicts int
	Errors   []error
}

// Sync runs one push-then-pull cycle: dirty files push first, then server
// changes pull in.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.state == StateSyncing {
		e.mu.Unlock()
		return Result{State: StateSyncing, Reason: "Sync already in progress"}, nil
	}

	offline := e.detector != nil && e.detector.GetState() == netstate.Offline
	e.mu.Unlock()

	if offline {
		e.setState(StateOffline)
		return Result{State: StateOffline, Reason: "Offline"}, nil
	}

	e.setState(StateSyncing)

	res := Result{}

	pushed, conflicts, err := e.push(ctx)
	res.Pushed = pushed
	res.Conflicts += conflicts

	if err != nil {
		res.Errors = append(res.Errors, err)
		e.classifyAndTransition(err)

		return res, nil
	}

	pulled, pullConflicts, err := e.pull(ctx)
	res.Pulled = pulled
	res.Conflicts += pullConflicts

	if err != nil {
		res.Errors = append(res.Errors, err)
		e.classifyAndTransition(err)

		return res, nil
	}

	if err := e.persistLastSynced(ctx); err != nil {
		res.Errors = append(res.Errors, err)
	}

	e.setState(StateIdle)
	res.State = StateIdle

	return res, nil
}

func (e *Engine) classifyAndTransition(err error) {
	classified := syncerr.FromException(err)
	if e.errors != nil {
		e.errors.Handle(classified)
	}

	if classified.Kind == syncerr.KindNetwork {
		e.setState(StateOffline)
	} else {
		e.setState(StateError)
	}
}

func (e *Engine) persistLastSynced(ctx context.Context) error {
	md, err := e.store.GetMetadata(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("syncengine: load metadata: %w", err)
	}

	md.LastSyncedAt = time.Now().UnixNano()

	if err := e.store.SaveMetadata(ctx, md); err != nil {
		return fmt.Errorf("syncengine: save metadata: %w", err)
	}

	return nil
}

// pushResponse is the server's success body for PUT /files/{id}.
type pushResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ETag      string `json:"etag"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// preconditionFailedBody is the server's 412 body.
type preconditionFailedBody struct {
	Error         string `json:"error"`
	ServerVersion struct {
		ETag      string `json:"etag"`
		Version   int64  `json:"version"`
		Content   string `json:"content"`
		UpdatedAt string `json:"updatedAt"`
	} `json:"serverVersion"`
}

// push enumerates dirty files and pushes each under lock+checkpoint.
func (e *Engine) push(ctx context.Context) (pushed, conflicts int, err error) {
	dirty, err := e.store.GetDirtyFiles(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: push: list dirty files: %w", err)
	}

	for _, f := range dirty {
		p, c, pushErr := e.pushOneLocked(ctx, f.ID, false)
		if pushErr != nil {
			if e.errors != nil {
				e.errors.Handle(syncerr.FromException(pushErr))
			}

			continue
		}

		pushed += p
		conflicts += c
	}

	return pushed, conflicts, nil
}

// pushOneLocked pushes a single file under its per-file lock. recursing is
// true when called from within a conflict "keep local" resolution, to
// prevent more than one level of re-entrant push.
func (e *Engine) pushOneLocked(ctx context.Context, fileID string, recursing bool) (pushed, conflicts int, err error) {
	lockErr := e.locks.WithLock(fileID, func() error {
		p, c, innerErr := e.pushOne(ctx, fileID, recursing)
		pushed, conflicts, err = p, c, innerErr

		return innerErr
	})

	if lockErr != nil && err == nil {
		err = lockErr
	}

	return pushed, conflicts, err
}

func (e *Engine) pushOne(ctx context.Context, fileID string, recursing bool) (int, int, error) {
	f, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: push %s: load file: %w", fileID, err)
	}

	cp, err := e.checkpoint.Create(ctx, fileID, checkpoint.ReasonPreSync)
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: push %s: checkpoint: %w", fileID, err)
	}

	payload, err := json.Marshal(map[string]string{"content": f.Content, "title": f.Title})
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: push %s: encode body: %w", fileID, err)
	}

	headers := http.Header{}
	headers.Set("If-Match", etag.FormatHeader(f.ETag))

	resp, err := e.http.Do(ctx, http.MethodPut, "/files/"+fileID, httpclient.RequestOptions{
		Headers: headers,
		Body:    bytes.NewReader(payload),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: push %s: request: %w", fileID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body pushResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, 0, fmt.Errorf("syncengine: push %s: decode response: %w", fileID, err)
		}

		if err := e.store.MarkFileClean(ctx, fileID, body.ETag, time.Now().UnixNano()); err != nil {
			return 0, 0, fmt.Errorf("syncengine: push %s: mark clean: %w", fileID, err)
		}

		e.checkpoint.Remove(cp.ID)

		return 1, 0, nil

	case resp.StatusCode == http.StatusPreconditionFailed:
		var body preconditionFailedBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, 0, fmt.Errorf("syncengine: push %s: decode 412 body: %w", fileID, err)
		}

		return e.resolvePushConflict(ctx, fileID, f, body, recursing)

	default:
		_ = e.checkpoint.Rollback(ctx, cp.ID)

		body, _ := io.ReadAll(resp.Body)

		return 0, 0, syncerr.FromHTTPStatus(resp.StatusCode, 0, string(body))
	}
}

func (e *Engine) resolvePushConflict(
	ctx context.Context, fileID string, local *store.File, body preconditionFailedBody, recursing bool,
) (int, int, error) {
	e.mu.Lock()
	cb := e.conflictCallback
	e.mu.Unlock()

	if cb == nil {
		return 0, 1, fmt.Errorf("syncengine: push %s: conflict with no callback installed", fileID)
	}

	decision := cb(ctx, Conflict{
		FileID: fileID,
		LocalVersion: merge.Version{
			Content: local.Content, ETag: local.ETag, LastModified: local.LastModified, Version: local.Version,
		},
		ServerVersion: merge.Version{
			Content: body.ServerVersion.Content, ETag: body.ServerVersion.ETag, Version: body.ServerVersion.Version,
		},
		DetectedAt: time.Now(),
	})

	switch decision.Strategy {
	case merge.StrategyLocal:
		local.ETag = body.ServerVersion.ETag
		local.IsDirty = true

		if err := e.store.SaveFile(ctx, local); err != nil {
			return 0, 1, fmt.Errorf("syncengine: push %s: adopt server etag: %w", fileID, err)
		}

		if recursing {
			return 0, 1, nil
		}

		_, _, err := e.pushOne(ctx, fileID, true)

		return 0, 1, err

	case merge.StrategyServer:
		local.Content = body.ServerVersion.Content
		local.ETag = body.ServerVersion.ETag
		local.Version = body.ServerVersion.Version
		local.IsDirty = false

		if err := e.store.SaveFile(ctx, local); err != nil {
			return 0, 1, fmt.Errorf("syncengine: push %s: adopt server content: %w", fileID, err)
		}

		return 0, 1, nil

	case merge.StrategyMerge:
		// The UI produces merged content via the merge package and invokes
		// push separately; this cycle only records the conflict.
		return 0, 1, nil

	default:
		return 0, 1, fmt.Errorf("syncengine: push %s: unknown conflict strategy %q", fileID, decision.Strategy)
	}
}

// syncPullPage mirrors the server's GET /files/sync response.
type syncPullPage struct {
	Files []pulledFile `json:"files"`
	HasMore bool `json:"has_more"`
	NextCursor string `json:"next_cursor"`
	SyncTimestamp string `json:"sync_timestamp"`
}

type pulledFile struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	ETag           string  `json:"etag"`
	Version        int64   `json:"version"`
	ParentFolderID *string `json:"parentFolderId"`
	IsFolder       bool    `json:"isFolder"`
	UpdatedAt      string  `json:"updatedAt"`
	DeletedAt      *string `json:"deletedAt"`
}

// pull reads lastSyncedAt and cursor-paginates server changes into the
// store.
func (e *Engine) pull(ctx context.Context) (pulled, conflicts int, err error) {
	md, err := e.store.GetMetadata(ctx, e.userID)
	if err != nil {
		return 0, 0, fmt.Errorf("syncengine: pull: load metadata: %w", err)
	}

	cursor := ""

	for {
		page, pageErr := e.pullPage(ctx, md.LastSyncedAt, cursor)
		if pageErr != nil {
			return pulled, conflicts, pageErr
		}

		for _, pf := range page.Files {
			c, mergeErr := e.applyPulledFile(ctx, pf)
			if mergeErr != nil {
				if e.errors != nil {
					e.errors.Handle(syncerr.FromException(mergeErr))
				}

				continue
			}

			pulled++
			conflicts += c
		}

		if !page.HasMore {
			break
		}

		cursor = page.NextCursor
	}

	return pulled, conflicts, nil
}

func (e *Engine) pullPage(ctx context.Context, updatedAfterNano int64, cursor string) (*syncPullPage, error) {
	path := fmt.Sprintf("/files/sync?updated_after=%s&limit=%d", nanoToISO(updatedAfterNano), pullPageLimit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := e.http.Do(ctx, http.MethodGet, path, httpclient.RequestOptions{})
	if err != nil {
		return nil, fmt.Errorf("syncengine: pull page: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, syncerr.FromHTTPStatus(resp.StatusCode, 0, string(body))
	}

	var page syncPullPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("syncengine: pull page: decode: %w", err)
	}

	return &page, nil
}

// applyPulledFile merges one remote file into the local store, returning 1
// if it surfaced a conflict, 0 otherwise.
func (e *Engine) applyPulledFile(ctx context.Context, pf pulledFile) (int, error) {
	local, err := e.store.GetFile(ctx, pf.ID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, e.insertPulledFile(ctx, pf)
	}

	if err != nil {
		return 0, fmt.Errorf("syncengine: apply pulled file %s: load local: %w", pf.ID, err)
	}

	if etag.Compare(local.ETag, pf.ETag) {
		return 0, nil
	}

	if local.IsDirty {
		return e.resolvePullConflict(ctx, local, pf)
	}

	return 0, e.overwriteFromServer(ctx, local, pf)
}

func (e *Engine) insertPulledFile(ctx context.Context, pf pulledFile) error {
	f := &store.File{
		ID: pf.ID, Title: pf.Title, Content: pf.Content, ETag: pf.ETag, Version: pf.Version,
		ParentFolderID: pf.ParentFolderID, IsFolder: pf.IsFolder, IsDirty: false,
		LastModified: isoToNano(pf.UpdatedAt), Size: int64(len(pf.Content)),
	}

	if err := e.store.SaveFile(ctx, f); err != nil {
		return fmt.Errorf("syncengine: insert pulled file %s: %w", pf.ID, err)
	}

	return nil
}

func (e *Engine) overwriteFromServer(ctx context.Context, local *store.File, pf pulledFile) error {
	local.Title = pf.Title
	local.Content = pf.Content
	local.ETag = pf.ETag
	local.Version = pf.Version
	local.ParentFolderID = pf.ParentFolderID
	local.IsFolder = pf.IsFolder
	local.IsDirty = false
	local.LastModified = isoToNano(pf.UpdatedAt)
	local.Size = int64(len(pf.Content))

	if err := e.store.SaveFile(ctx, local); err != nil {
		return fmt.Errorf("syncengine: overwrite from server %s: %w", pf.ID, err)
	}

	return nil
}

func (e *Engine) resolvePullConflict(ctx context.Context, local *store.File, pf pulledFile) (int, error) {
	e.mu.Lock()
	cb := e.conflictCallback
	e.mu.Unlock()

	if cb == nil {
		return 1, fmt.Errorf("syncengine: pull conflict on %s with no callback installed", pf.ID)
	}

	decision := cb(ctx, Conflict{
		FileID:       pf.ID,
		LocalVersion: merge.Version{Content: local.Content, ETag: local.ETag, LastModified: local.LastModified, Version: local.Version},
		ServerVersion: merge.Version{Content: pf.Content, ETag: pf.ETag, Version: pf.Version},
		DetectedAt:   time.Now(),
	})

	switch decision.Strategy {
	case merge.StrategyServer:
		return 1, e.overwriteFromServer(ctx, local, pf)
	case merge.StrategyLocal:
		return 1, nil // keep local as-is, already dirty; next push reconciles
	case merge.StrategyMerge:
		if decision.MergedContent == nil {
			return 1, fmt.Errorf("syncengine: pull conflict on %s: merge strategy requires content", pf.ID)
		}

		local.Content = *decision.MergedContent
		local.IsDirty = true

		return 1, e.store.SaveFile(ctx, local)
	default:
		return 1, fmt.Errorf("syncengine: pull conflict on %s: unknown strategy %q", pf.ID, decision.Strategy)
	}
}

func nanoToISO(nano int64) string {
	if nano == 0 {
		return time.Unix(0, 0).UTC().Format(time.RFC3339Nano)
	}

	return time.Unix(0, nano).UTC().Format(time.RFC3339Nano)
}

func isoToNano(iso string) int64 {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Now().UnixNano()
	}

	return t.UnixNano()
}

// pullCursor mirrors the server's opaque base64 cursor: {updatedAt, id}.
type pullCursor struct {
	UpdatedAt string `json:"updatedAt"`
	ID        string `json:"id"`
}

// EncodeCursor base64-encodes a pull cursor, for callers building requests
// directly.
func EncodeCursor(updatedAt, id string) string {
	b, _ := json.Marshal(pullCursor{UpdatedAt: updatedAt, ID: id})

	return base64.StdEncoding.EncodeToString(b)
}

// QueueSync and SyncFile below round out the C8 surface for single-file and
// priority-queued sync requests outside the full cycle.

// SyncFile pushes a single dirty file immediately, outside the full cycle.
func (e *Engine) SyncFile(ctx context.Context, fileID string) error {
	_, _, err := e.pushOneLocked(ctx, fileID, false)

	return err
}

// queueEntry is one pending priority-queued sync request.
type queueEntry struct {
	fileID   string
	priority int
}

// QueueSync enqueues fileID for a later sync pass; lower priority values run
// first. The queue is drained only by calling DrainQueue; the auto-sync
// timer started by Init does not drain it.
func (e *Engine) QueueSync(fileID string, priority int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = append(e.queue, queueEntry{fileID: fileID, priority: priority})
}

// DrainQueue pushes every queued file in priority order (lowest first),
// stable on insertion order for equal priorities.
func (e *Engine) DrainQueue(ctx context.Context) []error {
	e.mu.Lock()
	entries := e.queue
	e.queue = nil
	e.mu.Unlock()

	sortByPriority(entries)

	var errs []error

	for _, entry := range entries {
		if err := e.SyncFile(ctx, entry.fileID); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func sortByPriority(entries []queueEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].priority > entries[j].priority; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
