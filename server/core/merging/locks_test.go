package merging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/legendsaurav/scramer/server/core/segments"
)

func TestBucketLocker_SerializesSameBucket(t *testing.T) {
	dir := t.TempDir()
	bucket := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-01-01"}
	locker := NewBucketLocker()

	unlock, err := locker.Lock(context.Background(), bucket, dir)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".merge.lock")); err != nil {
		t.Errorf("Expected lock file in bucket dir: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, bucket, dir); err == nil {
		t.Fatal("Expected second lock of the same bucket to wait until the context expired")
	}

	unlock()

	unlock, err = locker.Lock(context.Background(), bucket, dir)
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	unlock()
}

func TestBucketLocker_DifferentBucketsDoNotBlock(t *testing.T) {
	locker := NewBucketLocker()
	first := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-01-01"}
	second := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-01-02"}

	unlockFirst, err := locker.Lock(context.Background(), first, t.TempDir())
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlockFirst()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockSecond, err := locker.Lock(ctx, second, t.TempDir())
	if err != nil {
		t.Fatalf("Expected a different bucket to lock immediately: %v", err)
	}
	unlockSecond()
}

func TestBucketLocker_WaiterProceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	bucket := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-01-01"}
	locker := NewBucketLocker()

	unlock, err := locker.Lock(context.Background(), bucket, dir)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		unlock, err := locker.Lock(ctx, bucket, dir)
		if err == nil {
			unlock()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("Expected waiter to block while the bucket is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	if err := <-acquired; err != nil {
		t.Errorf("Expected waiter to acquire the lock, got %v", err)
	}
}

func TestBucketLocker_ForgetsIdleBuckets(t *testing.T) {
	locker := NewBucketLocker()
	dir := t.TempDir()
	bucket := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-01-01"}

	for i := 0; i < 3; i++ {
		other := segments.Bucket{Project: "proj", Tool: "cam", Date: "2024-02-0" + string(rune('1'+i))}
		unlock, err := locker.Lock(context.Background(), other, t.TempDir())
		if err != nil {
			t.Fatalf("Lock failed: %v", err)
		}
		unlock()
	}
	if n := locker.size(); n != 0 {
		t.Fatalf("Expected no semaphores after release, got %d", n)
	}

	unlock, err := locker.Lock(context.Background(), bucket, dir)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// a waiter that gives up must not keep the entry alive either
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, bucket, dir); err == nil {
		t.Fatal("Expected waiter to time out")
	}
	if n := locker.size(); n != 1 {
		t.Errorf("Expected only the held bucket, got %d", n)
	}

	unlock()
	if n := locker.size(); n != 0 {
		t.Errorf("Expected no semaphores after release, got %d", n)
	}
}
