package dispatch

import (
	"github.com/google/uuid"
)

// OperationType is the kind of on-chain effect an Operation requests.
type OperationType int

const (
	// DirectPayment sends funds straight to the destination. It is the
	// default for a freshly-submitted Operation.
	DirectPayment OperationType = iota
	// DeferredClaim converts an unroutable direct payment into a
	// claimable artifact the recipient must explicitly accept, used
	// when the destination lacks a trust line (spec.md glossary).
	DeferredClaim
)

// IssuerCredential is an opaque signing capability for an asset issuer,
// used by RecoveryActuator.RefillAsset to mint/transfer top-ups. Only
// PublicKey is ever logged.
type IssuerCredential struct {
	PublicKey string
	Signer    Signer
}

// Signer is the opaque signing capability injected for a distributor or
// issuer; the core never inspects its contents, only passes it through
// to BlockchainGateway.
type Signer interface {
	PublicKey() string
}

// Asset identifies a fungible unit transferred by an Operation.
type Asset struct {
	Code   string
	Issuer IssuerCredential
	Native bool
}

// Operation is a single requested transfer (spec.md §3).
type Operation struct {
	Destination string
	Asset       Asset
	Amount      Amount
	Type        OperationType

	// MovedToEnd is a sticky flag: false until the operation is
	// requeued to the tail of the remaining work list due to transient
	// under-funding (spec.md invariant: "set true exactly once").
	MovedToEnd bool
}

// MarkMovedToEnd sets the sticky requeue flag. It must only be called
// when the flag is currently false; BatchSender enforces the
// "promote to invalid instead" rule on a second attempt (spec.md §4.E).
func (op *Operation) MarkMovedToEnd() { op.MovedToEnd = true }

// MaxOpsPerBatch is spec.md §3's MAX_OPS_PER_BATCH.
const MaxOpsPerBatch = 100

// MaxItemRetries is spec.md §4.B's MAX_ITEM_RETRIES, the bound on a
// batch's retryCount — the only unbounded source of retry in the system.
const MaxItemRetries = 10

// Batch is an envelope carrying up to MaxOpsPerBatch operations
// destined for one distributor (spec.md §3).
type Batch struct {
	Ops        []*Operation
	Memo       string
	Issuers    []IssuerCredential
	Tag        string
	RetryCount int
}

// NewBatch constructs a Batch, defaulting Tag to a generated UUID when
// the caller supplies none, for log correlation across queue retries.
func NewBatch(ops []*Operation, memo string, issuers []IssuerCredential, tag string) *Batch {
	if tag == "" {
		tag = uuid.NewString()
	}
	return &Batch{Ops: ops, Memo: memo, Issuers: issuers, Tag: tag}
}
