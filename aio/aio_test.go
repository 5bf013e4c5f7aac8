package aio

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"
)

// mongosql.Connection has no constructor that accepts a fake backend from
// outside its own package, so Execute/FetchAll wiring through to a real
// mongosql.Cursor is covered by the facade's own tests. This test covers
// the turnstile's serialization guarantee in isolation: only one acquirer
// may hold it at a time, matching how Cursor.Execute/FetchOne/FetchMany/
// FetchAll all acquire it before touching the underlying blocking Cursor.
func TestTurnstileSerializesOneAcquirerAtATime(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	ctx := context.Background()

	if err := sem.Acquire(ctx, 1); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the first holder had not released")
	case <-time.After(20 * time.Millisecond):
	}

	sem.Release(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not succeed after release")
	}
}
