package merging

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/legendsaurav/scramer/server/core/segments"
)

const lockRetryDelay = 100 * time.Millisecond

// BucketLocker serializes merges of the same bucket. Inside the process a
// keyed semaphore is used; across processes an advisory lock file in the
// bucket directory. A semaphore lives only while some caller holds or waits
// for it.
type BucketLocker struct {
	mu    sync.Mutex
	slots map[string]*bucketSlot
}

type bucketSlot struct {
	sem  chan struct{}
	refs int
}

// NewBucketLocker creates an empty locker
func NewBucketLocker() *BucketLocker {
	return &BucketLocker{slots: make(map[string]*bucketSlot)}
}

// acquireSlot returns the semaphore for key and registers the caller as a user of it
func (l *BucketLocker) acquireSlot(key string) *bucketSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &bucketSlot{sem: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

// releaseSlot drops the caller's reference and forgets the slot once unused
func (l *BucketLocker) releaseSlot(key string, slot *bucketSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// Lock blocks until the bucket in dir is exclusively held or ctx is done.
// The returned function releases both locks.
func (l *BucketLocker) Lock(ctx context.Context, b segments.Bucket, dir string) (func(), error) {
	key := b.String()
	slot := l.acquireSlot(key)

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key, slot)
		return nil, ctx.Err()
	}

	fileLock := flock.New(filepath.Join(dir, segments.LockName))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-slot.sem
		l.releaseSlot(key, slot)
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to lock bucket %s: %w", b, err)
	}

	return func() {
		fileLock.Unlock()
		<-slot.sem
		l.releaseSlot(key, slot)
	}, nil
}

// size reports how many buckets currently have a semaphore
func (l *BucketLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
