package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributorQueue_EnqueueDrainsInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	send := func(ctx context.Context, distributor IssuerCredential, batch *Batch) error {
		mu.Lock()
		seen = append(seen, batch.Tag)
		mu.Unlock()
		return nil
	}
	q := NewDistributorQueue(1, IssuerCredential{}, send)

	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "a")))
	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "b")))
	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "c")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestDistributorQueue_RetriesFailedBatchAtHead(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}
	failOnce := map[string]bool{"b": true}

	send := func(ctx context.Context, distributor IssuerCredential, batch *Batch) error {
		mu.Lock()
		attempts[batch.Tag]++
		shouldFail := failOnce[batch.Tag] && attempts[batch.Tag] == 1
		mu.Unlock()
		if shouldFail {
			return assertError
		}
		return nil
	}
	q := NewDistributorQueue(2, IssuerCredential{}, send)

	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "a")))
	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "b")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts["a"] == 1 && attempts["b"] == 2
	}, 10*time.Second, 10*time.Millisecond)
}

func TestDistributorQueue_EnqueueAfterQuitReturnsClosed(t *testing.T) {
	q := NewDistributorQueue(3, IssuerCredential{}, func(context.Context, IssuerCredential, *Batch) error { return nil })
	q.Quit()
	err := q.Enqueue(NewBatch(nil, "", nil, "x"))
	assert.ErrorIs(t, err, QueueClosed)
}

func TestDistributorQueue_DoneClosesAfterWorkerExits(t *testing.T) {
	q := NewDistributorQueue(4, IssuerCredential{}, func(context.Context, IssuerCredential, *Batch) error { return nil })
	require.NoError(t, q.Enqueue(NewBatch(nil, "", nil, "only")))

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never finished")
	}
	assert.Equal(t, 0, q.Size())
}

var assertError = &DispatchError{Kind: ErrBatchPermanentlyFailed, Tag: "test"}
