// Package fleetregistry implements dispatch.DistributorRegistry and
// dispatch.CredentialDecoder against a simple JSON/HTTP directory of
// active distributor wallets, the third and last of spec.md §6's
// "consumed" capabilities (alongside BlockchainGateway and
// SettingsStore) to get a concrete wiring.
package fleetregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
)

// HTTPRegistry is a DistributorRegistry backed by a JSON directory
// endpoint returning the active distributor fleet.
type HTTPRegistry struct {
	url  string
	http *http.Client
}

// New builds an HTTPRegistry targeting url.
func New(url string) *HTTPRegistry {
	return &HTTPRegistry{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

type wireDistributor struct {
	ID             int    `json:"id"`
	CredentialSeed string `json:"credential_seed"`
	Active         bool   `json:"active"`
}

// ActiveDistributors fetches the current fleet listing.
func (r *HTTPRegistry) ActiveDistributors(ctx context.Context) ([]dispatch.DistributorDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fleet registry fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fleet registry returned status %d", resp.StatusCode)
	}
	var wire []wireDistributor
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("fleet registry decode: %w", err)
	}

	out := make([]dispatch.DistributorDescriptor, len(wire))
	for i, d := range wire {
		out[i] = dispatch.DistributorDescriptor{ID: d.ID, CredentialSeed: d.CredentialSeed, Active: d.Active}
	}
	return out, nil
}

// SeedDecoder is the simplest possible CredentialDecoder: it treats the
// seed string as already being the wallet's public key, with no
// signing capability attached. Real deployments supply a decoder that
// derives a Signer from the seed via whatever key-management scheme
// they use; that derivation is explicitly out of scope here (spec.md
// §1: "raw blockchain transport... all live behind it").
type SeedDecoder struct{}

// Decode implements dispatch.CredentialDecoder.
func (SeedDecoder) Decode(seed string) (dispatch.IssuerCredential, error) {
	if seed == "" {
		return dispatch.IssuerCredential{}, fmt.Errorf("empty credential seed")
	}
	return dispatch.IssuerCredential{PublicKey: seed}, nil
}
