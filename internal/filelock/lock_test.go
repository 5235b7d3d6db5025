package filelock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/filelock"
)

func TestWithLockSerializesSameFile(t *testing.T) {
	m := filelock.NewManager()

	var order []int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = m.WithLock("file-1", func() error {
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
	}

	wg.Wait()
	assert.Len(t, order, 5)
	assert.Equal(t, 0, m.ActiveLockCount())
}

func TestWithLockDoesNotSerializeDifferentFiles(t *testing.T) {
	m := filelock.NewManager()

	var concurrent int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		id := i

		go func() {
			defer wg.Done()
			_ = m.WithLock(filelockKey(id), func() error {
				cur := atomic.AddInt32(&concurrent, 1)
				for {
					max := atomic.LoadInt32(&maxConcurrent)
					if cur <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, cur) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&concurrent, -1)
				return nil
			})
		}()
	}

	wg.Wait()
	assert.Greater(t, atomic.LoadInt32(&maxConcurrent), int32(1))
}

func filelockKey(n int) string {
	return string(rune('a' + n))
}

func TestTryAcquireFailsWhileHeld(t *testing.T) {
	m := filelock.NewManager()

	release, ok := m.TryAcquire("f")
	require.True(t, ok)
	assert.True(t, m.IsLocked("f"))

	_, ok2 := m.TryAcquire("f")
	assert.False(t, ok2)

	release()
	assert.False(t, m.IsLocked("f"))
}

func TestWithLockReleasesOnError(t *testing.T) {
	m := filelock.NewManager()

	err := m.WithLock("f", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, m.IsLocked("f"))

	release, ok := m.TryAcquire("f")
	require.True(t, ok)
	release()
}

func TestLockedFilesAndReleaseAll(t *testing.T) {
	m := filelock.NewManager()

	r1, _ := m.TryAcquire("a")
	r2, _ := m.TryAcquire("b")
	defer r1()
	defer r2()

	assert.ElementsMatch(t, []string{"a", "b"}, m.LockedFiles())

	m.ReleaseAll()
	assert.Equal(t, 0, m.ActiveLockCount())
}
