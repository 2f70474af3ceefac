package dispatch

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limitedGateway wraps a BlockchainGateway with a token-bucket limiter
// (per spec.md §1's "external rate-limited system") and a weighted
// semaphore capping the number of in-flight requests fleet-wide, so a
// burst of distributor workers cannot overwhelm the gateway even when
// each one is individually within its own retry budget.
type limitedGateway struct {
	inner   BlockchainGateway
	limiter *rate.Limiter
	inFlight *semaphore.Weighted
}

// NewRateLimitedGateway wraps inner with a limiter allowing ratePerSec
// requests per second (burst requests immediately) and at most
// maxInFlight concurrent calls.
func NewRateLimitedGateway(inner BlockchainGateway, ratePerSec float64, burst, maxInFlight int) BlockchainGateway {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &limitedGateway{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		inFlight: semaphore.NewWeighted(int64(maxInFlight)),
	}
}

func (g *limitedGateway) acquire(ctx context.Context) error {
	if err := g.inFlight.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.inFlight.Release(1)
		return err
	}
	return nil
}

func (g *limitedGateway) SendMany(ctx context.Context, distributor IssuerCredential, ops []*Operation, memo string) (string, error) {
	if err := g.acquire(ctx); err != nil {
		return "", err
	}
	defer g.inFlight.Release(1)
	return g.inner.SendMany(ctx, distributor, ops, memo)
}

func (g *limitedGateway) SendOne(ctx context.Context, from IssuerCredential, amount Amount, asset Asset, to string) (string, error) {
	if err := g.acquire(ctx); err != nil {
		return "", err
	}
	defer g.inFlight.Release(1)
	return g.inner.SendOne(ctx, from, amount, asset, to)
}

func (g *limitedGateway) EstablishTrust(ctx context.Context, distributor IssuerCredential, asset Asset) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.inFlight.Release(1)
	return g.inner.EstablishTrust(ctx, distributor, asset)
}

func (g *limitedGateway) MintAndTransfer(ctx context.Context, asset Asset, amount Amount, issuer, distributor IssuerCredential) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.inFlight.Release(1)
	return g.inner.MintAndTransfer(ctx, asset, amount, issuer, distributor)
}

func (g *limitedGateway) BalanceOf(ctx context.Context, address string, asset Asset) (Amount, error) {
	if err := g.acquire(ctx); err != nil {
		return Amount{}, err
	}
	defer g.inFlight.Release(1)
	return g.inner.BalanceOf(ctx, address, asset)
}
