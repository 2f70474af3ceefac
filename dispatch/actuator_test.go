package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeGateway is an in-memory BlockchainGateway used across dispatch's
// tests, grounded on the teacher's testBlockChain fake in
// core/txpool/tx_vectorfee_pool_test.go.
type fakeGateway struct {
	balances map[string]Amount

	sendManyErr       error
	sendOneErr        error
	establishTrustErr error
	mintErr           error
	balanceErr        error

	sendManyCalls int
	sendOneCalls  int
	mintCalls     int
	trustCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{balances: map[string]Amount{}}
}

func (g *fakeGateway) SendMany(ctx context.Context, distributor IssuerCredential, ops []*Operation, memo string) (string, error) {
	g.sendManyCalls++
	if g.sendManyErr != nil {
		return "", g.sendManyErr
	}
	return "tx-many", nil
}

func (g *fakeGateway) SendOne(ctx context.Context, from IssuerCredential, amount Amount, asset Asset, to string) (string, error) {
	g.sendOneCalls++
	if g.sendOneErr != nil {
		return "", g.sendOneErr
	}
	return "tx-one", nil
}

func (g *fakeGateway) EstablishTrust(ctx context.Context, distributor IssuerCredential, asset Asset) error {
	g.trustCalls++
	return g.establishTrustErr
}

func (g *fakeGateway) MintAndTransfer(ctx context.Context, asset Asset, amount Amount, issuer, distributor IssuerCredential) error {
	g.mintCalls++
	return g.mintErr
}

func (g *fakeGateway) BalanceOf(ctx context.Context, address string, asset Asset) (Amount, error) {
	if g.balanceErr != nil {
		return Amount{}, g.balanceErr
	}
	return g.balances[address+":"+asset.Code], nil
}

func TestRecoveryActuator_EstablishTrust(t *testing.T) {
	gw := newFakeGateway()
	a := NewRecoveryActuator(gw)
	dist := IssuerCredential{PublicKey: "dist-1"}
	asset := Asset{Code: "USD"}

	assert.True(t, a.EstablishTrust(context.Background(), dist, asset))
	assert.Equal(t, 1, gw.trustCalls)

	gw.establishTrustErr = errors.New("rejected")
	assert.False(t, a.EstablishTrust(context.Background(), dist, asset))
}

func TestRecoveryActuator_RefillAsset(t *testing.T) {
	gw := newFakeGateway()
	a := NewRecoveryActuator(gw)
	dist := IssuerCredential{PublicKey: "dist-1"}
	issuer := IssuerCredential{PublicKey: "issuer-1"}
	asset := Asset{Code: "USD", Issuer: issuer}

	t.Run("no matching issuer", func(t *testing.T) {
		ok := a.RefillAsset(context.Background(), dist, asset, nil)
		assert.False(t, ok)
		assert.Zero(t, gw.mintCalls)
	})

	t.Run("already sufficient", func(t *testing.T) {
		gw.balances["dist-1:USD"] = SupplyRefillLimit
		ok := a.RefillAsset(context.Background(), dist, asset, []IssuerCredential{issuer})
		assert.False(t, ok)
		assert.Zero(t, gw.mintCalls)
	})

	t.Run("tops up the shortfall", func(t *testing.T) {
		gw.balances["dist-1:USD"] = NewAmountFromUnits(1, 0)
		ok := a.RefillAsset(context.Background(), dist, asset, []IssuerCredential{issuer})
		assert.True(t, ok)
		assert.Equal(t, 1, gw.mintCalls)
	})

	t.Run("mint failure surfaces as false", func(t *testing.T) {
		gw.balances["dist-1:USD"] = NewAmountFromUnits(1, 0)
		gw.mintErr = errors.New("mint rejected")
		ok := a.RefillAsset(context.Background(), dist, asset, []IssuerCredential{issuer})
		assert.False(t, ok)
	})
}

func TestConvertToDeferredClaim_Idempotent(t *testing.T) {
	op := &Operation{Type: DirectPayment}
	ConvertToDeferredClaim(op)
	assert.Equal(t, DeferredClaim, op.Type)
	ConvertToDeferredClaim(op)
	assert.Equal(t, DeferredClaim, op.Type)
}
