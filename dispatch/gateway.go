package dispatch

import "context"

// ResultCodes is the structured failure payload a gateway attaches to a
// submission error (spec.md §6): a transaction-scope code plus one
// per-operation code, in the same order as the submitted batch.
type ResultCodes struct {
	Transaction string
	Operations  []string
}

// GatewayError is the error BlockchainGateway methods return on
// failure. A nil Codes models a bare transport failure with no parsed
// ledger result: a non-2xx response carries its status in
// TransportStatus, while a timeout or connection error leaves
// TransportStatus zero.
type GatewayError struct {
	TransportStatus int
	Codes           *ResultCodes
	Err             error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "gateway error"
}

func (e *GatewayError) Unwrap() error { return e.Err }

// BlockchainGateway is the out-of-scope "raw blockchain transport"
// collaborator (spec.md §1, §6): signing, fee bumping, and I/O against
// the ledger all live behind it.
type BlockchainGateway interface {
	// SendMany submits an atomic multi-operation batch from
	// distributor, returning the settled transaction hash or a
	// *GatewayError describing the failure.
	SendMany(ctx context.Context, distributor IssuerCredential, ops []*Operation, memo string) (txHash string, err error)
	// SendOne submits a single-operation transfer, used for the
	// oversize-split path (spec.md §4.E step b) and for RefillGas.
	SendOne(ctx context.Context, from IssuerCredential, amount Amount, asset Asset, to string) (txHash string, err error)
	// EstablishTrust submits a trust-line creation for distributor on
	// asset.
	EstablishTrust(ctx context.Context, distributor IssuerCredential, asset Asset) error
	// MintAndTransfer mints amount of asset from issuer directly to
	// distributor, used by RefillAsset.
	MintAndTransfer(ctx context.Context, asset Asset, amount Amount, issuer IssuerCredential, distributor IssuerCredential) error
	// BalanceOf returns the current balance of asset held by address.
	BalanceOf(ctx context.Context, address string, asset Asset) (Amount, error)
}

// SettingsStore is the admin-configuration collaborator (spec.md §6).
type SettingsStore interface {
	SendingEnabled(ctx context.Context) (bool, error)
	IssuerCredential(ctx context.Context) (IssuerCredential, bool, error)
	RefillCredential(ctx context.Context) (IssuerCredential, bool, error)
}

// DistributorRegistry is the fleet-membership collaborator (spec.md
// §6): it knows which wallets are currently active, independent of how
// busy their DistributorQueue is.
type DistributorRegistry interface {
	ActiveDistributors(ctx context.Context) ([]DistributorDescriptor, error)
}

// DistributorDescriptor is one entry from DistributorRegistry.
type DistributorDescriptor struct {
	ID             int
	CredentialSeed string
	Active         bool
}

// CredentialDecoder turns a registry-supplied credential seed into a
// signing IssuerCredential. Implementations that cannot parse the seed
// return an error that causes the caller to skip the distributor with a
// warning rather than fail the whole registry refresh (spec.md §7
// GatewayCredentialInvalid).
type CredentialDecoder interface {
	Decode(seed string) (IssuerCredential, error)
}
