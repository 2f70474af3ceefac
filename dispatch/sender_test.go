package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	enabled    bool
	issuerCred IssuerCredential
	hasIssuer  bool
	refillCred IssuerCredential
	hasRefill  bool
}

func (s *fakeSettings) SendingEnabled(ctx context.Context) (bool, error) { return s.enabled, nil }
func (s *fakeSettings) IssuerCredential(ctx context.Context) (IssuerCredential, bool, error) {
	return s.issuerCred, s.hasIssuer, nil
}
func (s *fakeSettings) RefillCredential(ctx context.Context) (IssuerCredential, bool, error) {
	return s.refillCred, s.hasRefill, nil
}

func newFakeSettings() *fakeSettings { return &fakeSettings{enabled: true} }

func TestBatchSender_Send_SingleBatchSuccess(t *testing.T) {
	gw := newFakeGateway()
	settings := newFakeSettings()
	sender := NewBatchSender(gw, settings)

	ops := opsOfLen(3)
	err := sender.Send(context.Background(), IssuerCredential{PublicKey: "d1"}, ops, "memo", nil, "tag1")

	require.NoError(t, err)
	assert.Equal(t, 1, gw.sendManyCalls)
	assert.Zero(t, gw.sendOneCalls)
}

func TestBatchSender_Send_OversizeOperationIsSplitOff(t *testing.T) {
	gw := newFakeGateway()
	settings := newFakeSettings()
	sender := NewBatchSender(gw, settings)

	ops := opsOfLen(2)
	ops[0].Amount = HardAmountLimit // triggers the oversize-split path

	err := sender.Send(context.Background(), IssuerCredential{PublicKey: "d1"}, ops, "", nil, "tag2")

	require.NoError(t, err)
	assert.Equal(t, 1, gw.sendOneCalls, "the oversize op is submitted singly")
	assert.Equal(t, 1, gw.sendManyCalls, "the remaining op is submitted as a batch")
}

func TestBatchSender_Send_MalformedOpDropsAndContinues(t *testing.T) {
	gw := newFakeGateway()
	settings := newFakeSettings()
	sender := NewBatchSender(gw, settings)

	ops := opsOfLen(2)
	codeGW := &codedFailOnceGateway{fakeGateway: gw, codes: []string{codeOpMalformed, codeOpSuccess}}
	sender = NewBatchSender(codeGW, settings)

	err := sender.Send(context.Background(), IssuerCredential{PublicKey: "d1"}, ops, "", nil, "tag3")
	require.NoError(t, err)
	assert.Equal(t, 2, codeGW.sendManyCalls, "first call fails the malformed op, second resubmits the survivor")
}

// codedFailOnceGateway fails the first SendMany with the given
// per-operation result codes, then succeeds on retry.
type codedFailOnceGateway struct {
	*fakeGateway
	codes  []string
	failed bool
}

func (g *codedFailOnceGateway) SendMany(ctx context.Context, distributor IssuerCredential, ops []*Operation, memo string) (string, error) {
	g.sendManyCalls++
	if !g.failed {
		g.failed = true
		return "", &GatewayError{Codes: &ResultCodes{Operations: g.codes}}
	}
	return "tx-many", nil
}

func TestBatchSender_Send_EmptyOperationsIsANoop(t *testing.T) {
	gw := newFakeGateway()
	settings := newFakeSettings()
	sender := NewBatchSender(gw, settings)

	err := sender.Send(context.Background(), IssuerCredential{PublicKey: "d1"}, nil, "", nil, "tag4")
	require.NoError(t, err)
	assert.Zero(t, gw.sendManyCalls)
}
