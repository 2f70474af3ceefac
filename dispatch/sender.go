package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
	"github.com/ethereum-optimism/distributor-dispatch/internal/metrics"
)

// Constants from spec.md §4.E.
const (
	MaxOpRetries        = 5
	MaxTransientRetries = 3
	StopSendingPoll     = 60 * time.Second
	opRetryBackoff      = 1 * time.Second
)

var (
	batchesSubmitted   = metrics.NewRegisteredCounter("dispatch_batches_submitted_total", "batches successfully submitted")
	batchesFailed      = metrics.NewRegisteredCounter("dispatch_batches_failed_total", "batches that exhausted their retry budget")
	opsInvalid         = metrics.NewRegisteredCounter("dispatch_ops_invalid_total", "operations permanently dropped as invalid")
	opsMovedToEnd      = metrics.NewRegisteredCounter("dispatch_ops_moved_to_end_total", "operations requeued to the tail of the remaining work list")
	transientRetryCnt  = metrics.NewRegisteredCounter("dispatch_transient_retries_total", "transient retries performed across all sends")
	batchSubmitSeconds = metrics.NewRegisteredTimer("dispatch_batch_submit_seconds", "wall-clock time spent inside BatchSender.Send")
)

// NativeAsset is the gas-paying asset used by RefillGas.
var NativeAsset = Asset{Native: true}

// BatchSender drives the central retry/recovery loop of the dispatcher
// (spec.md §4.E): it repeatedly slices the remaining work into
// ≤MaxOpsPerBatch chunks, submits each through the gateway, and reacts
// to structured failures via ErrorClassifier and RecoveryActuator. Its
// outer/inner loop shape mirrors the teacher's
// fillTransactions/commitTransactions split (miner/worker.go): an outer
// loop over remaining work, an inner loop that pops/classifies/retries
// a single candidate batch.
type BatchSender struct {
	gateway  BlockchainGateway
	settings SettingsStore
	actuator *RecoveryActuator
}

// NewBatchSender builds a sender bound to gateway and settings.
func NewBatchSender(gateway BlockchainGateway, settings SettingsStore) *BatchSender {
	return &BatchSender{gateway: gateway, settings: settings, actuator: NewRecoveryActuator(gateway)}
}

// Send submits operations on behalf of distributor, returning nil iff
// every operation either landed on chain, was converted to a
// deferred-claim that landed, or was individually ruled Invalid; it
// returns an error iff the transport exceeded its retry budget with no
// progress (spec.md §4.E postconditions).
func (s *BatchSender) Send(ctx context.Context, distributor IssuerCredential, operations []*Operation, memo string, issuers []IssuerCredential, tag string) error {
	start := time.Now()
	defer batchSubmitSeconds.UpdateSince(start)

	remaining := append([]*Operation(nil), operations...)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Amount.Cmp(remaining[j].Amount) > 0
	})

	for len(remaining) > 0 {
		if err := s.sendOneBatch(ctx, distributor, &remaining, memo, issuers, tag); err != nil {
			return err
		}
	}
	return nil
}

// sendOneBatch runs the inner loop of spec.md §4.E for one leading
// chunk of *remaining, mutating *remaining in place (removals,
// tail-appends from moveToEnd) until that chunk either lands, is fully
// resolved into invalid/converted operations, or the function returns
// an error.
func (s *BatchSender) sendOneBatch(ctx context.Context, distributor IssuerCredential, remainingPtr *[]*Operation, memo string, issuers []IssuerCredential, tag string) error {
	currentLen := min(MaxOpsPerBatch, len(*remainingPtr))
	transientRetries := 0
	opRetries := 0

	for {
		enabled, err := s.settings.SendingEnabled(ctx)
		if err != nil {
			log.Warn("sending-enabled poll failed, assuming enabled", "tag", tag, "err", err)
			enabled = true
		}
		if !enabled {
			log.Info("sending disabled, polling", "tag", tag, "pollEvery", StopSendingPoll)
			if !sleepCtx(ctx, StopSendingPoll) {
				return ctx.Err()
			}
			continue
		}

		current := (*remainingPtr)[:currentLen]

		if idx := firstOversize(current); idx >= 0 {
			op := current[idx]
			clamped := &Operation{Destination: op.Destination, Asset: op.Asset, Amount: clampToHardLimitMinusOne(), Type: op.Type}
			if _, err := s.gateway.SendOne(ctx, distributor, clamped.Amount, clamped.Asset, clamped.Destination); err != nil {
				log.Warn("oversize split submission failed", "tag", tag, "err", err)
				return s.handleFailure(ctx, err, distributor, remainingPtr, &currentLen, &transientRetries, &opRetries, issuers, tag)
			}
			*remainingPtr = removeIndices(*remainingPtr, map[int]bool{idx: true})
			currentLen--
			continue
		}

		_, err = s.gateway.SendMany(ctx, distributor, current, memo)
		if err == nil {
			*remainingPtr = (*remainingPtr)[currentLen:]
			batchesSubmitted.Inc(1)
			return nil
		}

		if done, retErr := s.handleFailureOrContinue(ctx, err, distributor, remainingPtr, &currentLen, &transientRetries, &opRetries, issuers, tag); done {
			return retErr
		}
	}
}

// handleFailureOrContinue classifies err and applies the recovery
// plan, returning (true, err) when the inner loop must stop (terminal
// error or the in-flight slice was fully dropped), or (false, nil) to
// keep looping.
func (s *BatchSender) handleFailureOrContinue(ctx context.Context, err error, distributor IssuerCredential, remainingPtr *[]*Operation, currentLen, transientRetries, opRetries *int, issuers []IssuerCredential, tag string) (bool, error) {
	current := (*remainingPtr)[:*currentLen]
	plan := Classify(err, current)

	switch plan.TransactionAction {
	case ActionTransientRetry:
		*transientRetries++
		transientRetryCnt.Inc(1)
		if *transientRetries >= MaxTransientRetries {
			batchesFailed.Inc(1)
			return true, &DispatchError{Kind: ErrBatchPermanentlyFailed, Tag: tag, Err: err}
		}
		if plan.RefillGas {
			s.refillGasFor(ctx, distributor, tag)
		}
		backoff := time.Duration(pow3(*transientRetries)) * time.Second
		if !sleepCtx(ctx, backoff) {
			return true, ctx.Err()
		}
		return false, nil
	case ActionFatal:
		batchesFailed.Inc(1)
		return true, &DispatchError{Kind: ErrBatchPermanentlyFailed, Tag: tag, Err: err}
	}

	invalid := map[int]bool{}
	for _, i := range plan.Invalid {
		invalid[i] = true
	}
	for _, i := range plan.ConvertToClaim {
		if i < len(current) {
			ConvertToDeferredClaim(current[i])
		}
	}
	for i, asset := range plan.EstablishTrustAt {
		if !s.actuator.EstablishTrust(ctx, distributor, asset) {
			invalid[i] = true
		}
	}
	moveToEnd := map[int]bool{}
	for _, i := range plan.MoveToEnd {
		moveToEnd[i] = true
	}
	for i, asset := range plan.RefillAssetAt {
		if !s.actuator.RefillAsset(ctx, distributor, asset, issuers) {
			moveToEnd[i] = true
		}
	}

	// Apply the sticky-flag rule (spec.md §4.E): a first-time mover is
	// appended to the tail of the remaining list and its index leaves
	// `current`; a second-time mover is promoted to invalid instead.
	toRemove := map[int]bool{}
	for idx := range moveToEnd {
		if idx >= len(current) {
			continue
		}
		op := current[idx]
		if op.MovedToEnd {
			invalid[idx] = true
		} else {
			op.MarkMovedToEnd()
			*remainingPtr = append(*remainingPtr, op)
			opsMovedToEnd.Inc(1)
		}
		toRemove[idx] = true
	}
	for idx := range invalid {
		toRemove[idx] = true
	}
	opsInvalid.Inc(float64(len(invalid)))

	if len(toRemove) == 0 {
		*opRetries++
		if *opRetries >= MaxOpRetries {
			log.Error("op retries exhausted, dropping in-flight slice", "tag", tag, "size", *currentLen)
			*remainingPtr = append((*remainingPtr)[:0:0], (*remainingPtr)[*currentLen:]...)
			batchesFailed.Inc(1)
			return true, nil
		}
		if !sleepCtx(ctx, opRetryBackoff) {
			return true, ctx.Err()
		}
		return false, nil
	}

	*remainingPtr = removeIndices(*remainingPtr, toRemove)
	*currentLen -= len(toRemove)
	*opRetries = 0
	if *currentLen <= 0 {
		return true, nil
	}
	return false, nil
}

// handleFailure is the oversize-split path's error handling; it always
// terminates the inner loop's current attempt at the caller via the
// same classification machinery as the main submission path, since
// spec.md §4.E step f requires any unhandled branch to break the inner
// loop after dropping the in-flight slice to guarantee forward
// progress.
func (s *BatchSender) handleFailure(ctx context.Context, err error, distributor IssuerCredential, remainingPtr *[]*Operation, currentLen, transientRetries, opRetries *int, issuers []IssuerCredential, tag string) error {
	done, retErr := s.handleFailureOrContinue(ctx, err, distributor, remainingPtr, currentLen, transientRetries, opRetries, issuers, tag)
	if done {
		return retErr
	}
	log.Error("oversize split failed, dropping in-flight slice", "tag", tag, "size", *currentLen)
	*remainingPtr = append((*remainingPtr)[:0:0], (*remainingPtr)[*currentLen:]...)
	batchesFailed.Inc(1)
	return nil
}

func (s *BatchSender) refillGasFor(ctx context.Context, distributor IssuerCredential, tag string) {
	refillCred, ok, err := s.settings.RefillCredential(ctx)
	if err != nil || !ok {
		log.Warn("no refill credential configured, skipping gas refill", "tag", tag, "err", err)
		return
	}
	s.actuator.RefillGas(ctx, refillCred, distributor, NativeAsset)
}

func firstOversize(current []*Operation) int {
	for i, op := range current {
		if op.Amount.Cmp(HardAmountLimit) >= 0 {
			return i
		}
	}
	return -1
}

// removeIndices removes idxSet from ops in descending index order (so
// earlier removals don't invalidate later ones), preserving the
// relative order of the survivors.
func removeIndices(ops []*Operation, idxSet map[int]bool) []*Operation {
	sorted := sortedKeys(idxSet)
	for i := len(sorted) - 1; i >= 0; i-- {
		idx := sorted[i]
		if idx < 0 || idx >= len(ops) {
			continue
		}
		ops = append(ops[:idx], ops[idx+1:]...)
	}
	return ops
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func pow3(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 3
	}
	return result
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
