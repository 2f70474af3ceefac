package dispatch

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
	"github.com/ethereum-optimism/distributor-dispatch/internal/metrics"
)

// idleGap is the short pause the worker takes between draining items,
// to avoid CPU spin and to let near-simultaneous arrivals cluster into
// one pass (spec.md §4.B step 1).
const idleGap = 100 * time.Millisecond

// retryBackoff is the pause after a failed batch send before the
// worker retries the same (now re-queued-at-head) batch (spec.md
// §4.B step 5).
const retryBackoff = 5 * time.Second

var queueDepth = metrics.NewRegisteredGaugeVec("dispatch_queue_depth", "pending batches per distributor queue", []string{"distributor_id"})

// SendFunc submits one batch on behalf of distributor and reports
// success or failure; DistributorQueue treats it as an opaque callback
// so BatchSender's internals stay independent of queue bookkeeping
// (the teacher's Miner similarly takes its transaction source as an
// injected dependency rather than owning it).
type SendFunc func(ctx context.Context, distributor IssuerCredential, batch *Batch) error

// DistributorQueue is a serial per-wallet worker with bounded retry
// (spec.md §4.B). At most one worker goroutine drains items at a time;
// enqueue starts that goroutine lazily and it exits as soon as the
// queue is either inactive or empty.
type DistributorQueue struct {
	ID         int
	Credential IssuerCredential

	send SendFunc

	mu       sync.Mutex
	items    []*Batch
	running  bool
	finished chan struct{}

	active   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDistributorQueue builds a queue bound to credential, draining via
// send.
func NewDistributorQueue(id int, credential IssuerCredential, send SendFunc) *DistributorQueue {
	finished := make(chan struct{})
	close(finished)
	q := &DistributorQueue{
		ID:         id,
		Credential: credential,
		send:       send,
		stopCh:     make(chan struct{}),
		finished:   finished,
	}
	q.active.Store(true)
	return q
}

// Enqueue appends batch to the queue and starts the worker if it is not
// already running. Returns QueueClosed once Quit has been called.
func (q *DistributorQueue) Enqueue(batch *Batch) error {
	q.mu.Lock()
	if !q.active.Load() {
		q.mu.Unlock()
		return QueueClosed
	}
	q.items = append(q.items, batch)
	start := !q.running
	if start {
		q.running = true
		q.finished = make(chan struct{})
	}
	depth := len(q.items)
	q.mu.Unlock()

	queueDepth.Set(float64(depth), strconv.Itoa(q.ID))
	if start {
		go q.runWorker()
	}
	return nil
}

// Size returns the current pending-batch count, used for load
// balancing by DispatcherRegistry (spec.md §4.F).
func (q *DistributorQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Active reports whether the queue still accepts work.
func (q *DistributorQueue) Active() bool { return q.active.Load() }

// Done returns a channel that closes once the current worker goroutine
// (if any) has exited; it is already-closed for a queue whose worker
// isn't running. Registry shutdown selects on this against a deadline.
func (q *DistributorQueue) Done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Quit marks the queue inactive; the worker finishes the send already
// in progress, an idle or backoff sleep in progress is cut short, and
// the worker exits without draining further. Quit does not touch the
// batches still queued: callers empty them with DrainDiscard, which
// returns the discarded count for logging.
func (q *DistributorQueue) Quit() {
	q.active.Store(false)
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// DrainDiscard empties the queue and returns how many batches were
// discarded; callers invoke this after a worker has observed
// Active()==false and exited.
func (q *DistributorQueue) DrainDiscard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *DistributorQueue) runWorker() {
	defer func() {
		q.mu.Lock()
		q.running = false
		close(q.finished)
		q.mu.Unlock()
	}()
	for {
		if !q.sleep(idleGap) {
			return
		}
		q.mu.Lock()
		if !q.active.Load() || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		batch := q.items[0]
		q.mu.Unlock()

		err := q.send(context.Background(), q.Credential, batch)
		if err == nil {
			q.popHead()
			continue
		}

		batch.RetryCount++
		if batch.RetryCount >= MaxItemRetries {
			log.Error("batch permanently failed, dropping", "distributor", q.ID, "tag", batch.Tag, "retryCount", batch.RetryCount, "err", err)
			q.popHead()
			continue
		}
		log.Warn("batch send failed, retrying at head", "distributor", q.ID, "tag", batch.Tag, "retryCount", batch.RetryCount, "err", err)
		if !q.sleep(retryBackoff) {
			return
		}
	}
}

func (q *DistributorQueue) popHead() {
	q.mu.Lock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	depth := len(q.items)
	q.mu.Unlock()
	queueDepth.Set(float64(depth), strconv.Itoa(q.ID))
}

// sleep pauses for d, returning false if the queue was asked to quit
// during the pause (spec.md §5 "all sleeps are interruptible by
// cancellation").
func (q *DistributorQueue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.stopCh:
		return false
	}
}
