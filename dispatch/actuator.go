package dispatch

import (
	"context"

	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
	"github.com/ethereum-optimism/distributor-dispatch/internal/metrics"
)

var (
	refillAttempts  = metrics.NewRegisteredCounterVec("dispatch_refill_attempts_total", "refill attempts by kind and outcome", []string{"kind", "outcome"})
	trustEstablishd = metrics.NewRegisteredCounterVec("dispatch_trust_establish_total", "trust-line establishment attempts by outcome", []string{"outcome"})
)

// RecoveryActuator executes the side effects a Recovery plan describes.
// Every method surfaces failure as a plain bool/error return and logs
// it; none panics or propagates an exception out, matching spec.md
// §4.D's "actuator's contract is that any failure is surfaced as a
// boolean and logged."
type RecoveryActuator struct {
	gateway BlockchainGateway
}

// NewRecoveryActuator builds an actuator bound to gateway.
func NewRecoveryActuator(gateway BlockchainGateway) *RecoveryActuator {
	return &RecoveryActuator{gateway: gateway}
}

// RefillGas transfers a fixed small amount of the native gas asset from
// refillCred to distributor. Best-effort: failure is logged, not
// returned to the caller as fatal, since a failed gas refill still lets
// the classifier's TransientRetry path attempt the submission again
// later (spec.md §4.D).
func (a *RecoveryActuator) RefillGas(ctx context.Context, refillCred, distributor IssuerCredential, nativeAsset Asset) {
	_, err := a.gateway.SendOne(ctx, refillCred, GasRefillAmount, nativeAsset, distributor.PublicKey)
	if err != nil {
		log.Warn("gas refill failed", "distributor", distributor.PublicKey, "err", err)
		refillAttempts.WithLabelValues("gas", "failure")
		return
	}
	refillAttempts.WithLabelValues("gas", "success")
}

// EstablishTrust submits a trust-line creation for distributor on
// asset. Returns true on success; the caller reclassifies the affected
// index to Invalid on failure (spec.md §4.C/§4.D).
func (a *RecoveryActuator) EstablishTrust(ctx context.Context, distributor IssuerCredential, asset Asset) bool {
	if err := a.gateway.EstablishTrust(ctx, distributor, asset); err != nil {
		log.Warn("trust-line establishment failed", "distributor", distributor.PublicKey, "asset", asset.Code, "err", err)
		trustEstablishd.WithLabelValues("failure")
		return false
	}
	trustEstablishd.WithLabelValues("success")
	return true
}

// RefillAsset locates the issuer matching asset.Issuer among issuers,
// computes refill = SupplyRefillLimit - currentBalance, and mints that
// amount from the issuer to distributor. Returns false (caller
// MoveToEnd's the operation) when no issuer matches, the computed
// refill is non-positive, or the mint fails.
//
// The balance read and the mint are not transactional with respect to
// other queues refilling the same distributor concurrently; a brief
// double-refill under eventual consistency is accepted behavior
// (spec.md §9, DESIGN.md open-question #2), not a bug.
func (a *RecoveryActuator) RefillAsset(ctx context.Context, distributor IssuerCredential, asset Asset, issuers []IssuerCredential) bool {
	issuer, found := findIssuer(issuers, asset.Issuer.PublicKey)
	if !found {
		log.Warn("refill asset: no matching issuer", "asset", asset.Code, "issuer", asset.Issuer.PublicKey)
		refillAttempts.WithLabelValues("asset", "no_issuer")
		return false
	}
	current, err := a.gateway.BalanceOf(ctx, distributor.PublicKey, asset)
	if err != nil {
		log.Warn("refill asset: balance lookup failed", "distributor", distributor.PublicKey, "asset", asset.Code, "err", err)
		refillAttempts.WithLabelValues("asset", "balance_lookup_failed")
		return false
	}
	refill := SupplyRefillLimit.Sub(current)
	if !refill.IsPositive() {
		refillAttempts.WithLabelValues("asset", "already_sufficient")
		return false
	}
	if err := a.gateway.MintAndTransfer(ctx, asset, refill, issuer, distributor); err != nil {
		log.Warn("refill asset: mint/transfer failed", "distributor", distributor.PublicKey, "asset", asset.Code, "err", err)
		refillAttempts.WithLabelValues("asset", "mint_failed")
		return false
	}
	refillAttempts.WithLabelValues("asset", "success")
	return true
}

// ConvertToDeferredClaim mutates op in place so the next submission
// attempt carries it as a claimable artifact instead of a direct
// payment. Idempotent: applying it twice leaves op.Type unchanged
// (spec.md R2).
func ConvertToDeferredClaim(op *Operation) {
	op.Type = DeferredClaim
}

func findIssuer(issuers []IssuerCredential, publicKey string) (IssuerCredential, bool) {
	for _, iss := range issuers {
		if iss.PublicKey == publicKey {
			return iss, true
		}
	}
	return IssuerCredential{}, false
}
