package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
	"github.com/ethereum-optimism/distributor-dispatch/internal/metrics"
)

// refreshInterval is spec.md §4.F's periodic refresh period.
const refreshInterval = 60 * time.Second

// shutdownDeadline bounds how long Shutdown waits for in-flight workers
// to finish their current batch before giving up (spec.md §5
// "Registry shutdown... awaits worker completion with a deadline").
const shutdownDeadline = 30 * time.Second

var activeQueues = metrics.NewRegisteredGaugeVec("dispatch_active_queues", "currently active distributor queues", []string{})

// IssuerSet is the copy-on-read collaborator DispatcherRegistry refreshes
// from SettingsStore and hands to BatchSender on every submission
// (spec.md §5 "Issuer set: refresh task mutates, copy-on-read").
type IssuerSet interface {
	Replace(issuers []IssuerCredential)
	Snapshot() []IssuerCredential
}

// DispatcherRegistry is the fleet-management component (spec.md §4.F):
// it owns every DistributorQueue, load-balances admission across them,
// and periodically reconciles against the upstream DistributorRegistry
// capability. Grounded on the teacher's txpool subpool lifecycle
// (Init/Reset/Close, mutex-guarded maps in
// core/txpool/tx_vectorfee_pool.go).
type DispatcherRegistry struct {
	gateway  BlockchainGateway
	settings SettingsStore
	upstream DistributorRegistry
	decoder  CredentialDecoder
	issuers  IssuerSet
	sender   *BatchSender

	mu      sync.Mutex
	queues  map[int]*DistributorQueue
	pending []*Operation

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcherRegistry builds a registry bound to its collaborators.
// Callers must invoke Start to begin the periodic refresh task.
func NewDispatcherRegistry(gateway BlockchainGateway, settings SettingsStore, upstream DistributorRegistry, decoder CredentialDecoder, issuers IssuerSet) *DispatcherRegistry {
	return &DispatcherRegistry{
		gateway:  gateway,
		settings: settings,
		upstream: upstream,
		decoder:  decoder,
		issuers:  issuers,
		sender:   NewBatchSender(gateway, settings),
		queues:   make(map[int]*DistributorQueue),
		stopCh:   make(chan struct{}),
	}
}

// Start performs an initial synchronous refresh and then launches the
// periodic background refresh task.
func (r *DispatcherRegistry) Start(ctx context.Context) error {
	if err := r.refresh(ctx); err != nil {
		return err
	}
	r.wg.Add(1)
	go r.refreshLoop(ctx)
	return nil
}

func (r *DispatcherRegistry) refreshLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				log.Error("registry refresh failed", "err", err)
			}
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh reconciles the local queue set against the upstream
// DistributorRegistry and the issuer set against SettingsStore
// (spec.md §4.F "Periodic refresh").
func (r *DispatcherRegistry) refresh(ctx context.Context) error {
	descriptors, err := r.upstream.ActiveDistributors(ctx)
	if err != nil {
		return err
	}

	upstreamIDs := make(map[int]DistributorDescriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Active {
			upstreamIDs[d.ID] = d
		}
	}

	r.mu.Lock()
	var toEvict []*DistributorQueue
	for id, q := range r.queues {
		if _, ok := upstreamIDs[id]; !ok {
			toEvict = append(toEvict, q)
			delete(r.queues, id)
		}
	}
	var toAdd []DistributorDescriptor
	for id, d := range upstreamIDs {
		if _, ok := r.queues[id]; !ok {
			toAdd = append(toAdd, d)
		}
	}
	r.mu.Unlock()

	for _, q := range toEvict {
		q.Quit()
		discarded := q.DrainDiscard()
		log.Info("evicted distributor queue", "distributor", q.ID, "discarded", discarded)
	}

	for _, d := range toAdd {
		cred, err := r.decoder.Decode(d.CredentialSeed)
		if err != nil {
			log.Warn("skipping distributor with invalid credential", "distributor", d.ID, "err", err)
			continue
		}
		q := NewDistributorQueue(d.ID, cred, r.sendBatch)
		r.mu.Lock()
		r.queues[d.ID] = q
		r.mu.Unlock()
		log.Info("added distributor queue", "distributor", d.ID)
	}

	r.mu.Lock()
	activeQueues.Set(float64(len(r.queues)))
	r.mu.Unlock()

	if issuer, ok, err := r.settingsIssuers(ctx); err != nil {
		log.Warn("issuer refresh failed, keeping last-known set", "err", err)
	} else if ok {
		r.issuers.Replace(issuer)
	}
	return nil
}

// settingsIssuers pulls the current issuer credential from
// SettingsStore. SettingsStore exposes a single admin-configured
// issuer today; it is returned as a one-element slice so IssuerSet's
// shape tolerates a future multi-issuer SettingsStore without a
// breaking change to DispatcherRegistry.
func (r *DispatcherRegistry) settingsIssuers(ctx context.Context) ([]IssuerCredential, bool, error) {
	cred, ok, err := r.settings.IssuerCredential(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return []IssuerCredential{cred}, true, nil
}

// sendBatch is the SendFunc every DistributorQueue worker calls; it
// threads the current issuer snapshot through to BatchSender on every
// attempt, matching spec.md's copy-on-read discipline for the issuer
// set.
func (r *DispatcherRegistry) sendBatch(ctx context.Context, distributor IssuerCredential, batch *Batch) error {
	return r.sender.Send(ctx, distributor, batch.Ops, batch.Memo, r.issuers.Snapshot(), batch.Tag)
}

// Submit appends ops to the pending buffer and admits them in
// ≤MaxOpsPerBatch chunks to the least-loaded queue (spec.md §4.F
// "Contract"). The admission mutex is held for the entire call, so
// concurrent Submit calls serialize rather than interleave chunking
// decisions.
func (r *DispatcherRegistry) Submit(ctx context.Context, ops []*Operation, memo, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, ops...)
	for len(r.pending) > 0 {
		n := min(MaxOpsPerBatch, len(r.pending))
		chunk := r.pending[:n]

		q := r.pickQueueLocked()
		if q == nil {
			// No queue to admit into: leave pending unchanged from the
			// caller's perspective (spec.md §4.F B5).
			r.pending = append(append([]*Operation(nil), chunk...), r.pending[n:]...)
			return &DispatchError{Kind: ErrNoDistributorsAvailable, Tag: tag}
		}

		batch := NewBatch(append([]*Operation(nil), chunk...), memo, r.issuers.Snapshot(), tag)
		if err := q.Enqueue(batch); err != nil {
			// Restore the slice at the head of pending so a retry
			// re-admits it in the original order (spec.md §7
			// AdmissionFailed).
			r.pending = append(append([]*Operation(nil), chunk...), r.pending[n:]...)
			return &DispatchError{Kind: ErrAdmissionFailed, Tag: tag, Err: err}
		}
		r.pending = r.pending[n:]
	}
	return nil
}

// pickQueueLocked selects the queue with the smallest pending size,
// ties broken by lowest id (spec.md §4.F "Load-balancing invariant").
// Callers must hold r.mu.
func (r *DispatcherRegistry) pickQueueLocked() *DistributorQueue {
	var chosen *DistributorQueue
	var chosenSize int
	for id, q := range r.queues {
		if !q.Active() {
			continue
		}
		size := q.Size()
		if chosen == nil || size < chosenSize || (size == chosenSize && id < chosen.ID) {
			chosen, chosenSize = q, size
		}
	}
	return chosen
}

// Shutdown quits every queue and awaits their workers via an errgroup,
// bounded by shutdownDeadline; undrained batches are discarded with a
// logged count (spec.md §5 "Cancellation and shutdown").
func (r *DispatcherRegistry) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	queues := make([]*DistributorQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for _, q := range queues {
		q.Quit()
	}

	deadline, cancel := context.WithTimeout(ctx, shutdownDeadline)
	defer cancel()

	var g errgroup.Group
	for _, q := range queues {
		q := q
		g.Go(func() error {
			select {
			case <-q.Done():
			case <-deadline.Done():
				log.Warn("shutdown deadline hit before worker finished", "distributor", q.ID)
			}
			discarded := q.DrainDiscard()
			if discarded > 0 {
				log.Info("shutdown: discarded undrained batches", "distributor", q.ID, "discarded", discarded)
			}
			return nil
		})
	}

	r.wg.Wait()
	return g.Wait()
}
