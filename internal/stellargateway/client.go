// Package stellargateway implements dispatch.BlockchainGateway against
// a Horizon-style JSON/HTTP submission API. No teacher or pack
// dependency covers bespoke ledger transport, so this package is built
// on net/http + encoding/json (see DESIGN.md's standard-library
// justification for this one component).
package stellargateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
)

// requestTimeout bounds every gateway call; exceeding it surfaces as a
// transport error, which ErrorClassifier maps to TransientRetry
// (spec.md §5 "Timeouts").
const requestTimeout = 15 * time.Second

// Client is a BlockchainGateway backed by a Horizon-compatible server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client targeting baseURL (e.g. "https://horizon.example.com").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// wireOperation is the JSON shape of one payment operation on the wire.
type wireOperation struct {
	Destination string `json:"destination"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Native      bool   `json:"native,omitempty"`
	Amount      string `json:"amount"`
	Deferred    bool   `json:"deferred_claim,omitempty"`
}

type sendManyRequest struct {
	From string          `json:"from"`
	Memo string          `json:"memo,omitempty"`
	Ops  []wireOperation `json:"operations"`
}

type sendResponse struct {
	Hash string `json:"hash"`
}

// wireError is the structured failure body Horizon-style gateways
// return; ResultCodes mirrors spec.md §6's
// "result_codes.transaction / result_codes.operations[]" shape.
type wireError struct {
	Status      int      `json:"status"`
	Title       string   `json:"title"`
	ResultCodes *struct {
		Transaction string   `json:"transaction"`
		Operations  []string `json:"operations"`
	} `json:"result_codes"`
}

func toWireOps(ops []*dispatch.Operation) []wireOperation {
	out := make([]wireOperation, len(ops))
	for i, op := range ops {
		w := wireOperation{
			Destination: op.Destination,
			Amount:      op.Amount.String(),
			Deferred:    op.Type == dispatch.DeferredClaim,
		}
		if op.Asset.Native {
			w.Native = true
		} else {
			w.AssetCode = op.Asset.Code
			w.AssetIssuer = op.Asset.Issuer.PublicKey
		}
		out[i] = w
	}
	return out
}

// SendMany submits ops atomically from distributor (dispatch.BlockchainGateway).
func (c *Client) SendMany(ctx context.Context, distributor dispatch.IssuerCredential, ops []*dispatch.Operation, memo string) (string, error) {
	req := sendManyRequest{From: distributor.PublicKey, Memo: memo, Ops: toWireOps(ops)}
	var resp sendResponse
	if err := c.post(ctx, "/transactions", req, &resp); err != nil {
		return "", err
	}
	return resp.Hash, nil
}

// SendOne submits a single-operation transfer.
func (c *Client) SendOne(ctx context.Context, from dispatch.IssuerCredential, amount dispatch.Amount, asset dispatch.Asset, to string) (string, error) {
	op := &dispatch.Operation{Destination: to, Asset: asset, Amount: amount}
	return c.SendMany(ctx, from, []*dispatch.Operation{op}, "")
}

type establishTrustRequest struct {
	Account     string `json:"account"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// EstablishTrust submits a trust-line creation for distributor on asset.
func (c *Client) EstablishTrust(ctx context.Context, distributor dispatch.IssuerCredential, asset dispatch.Asset) error {
	req := establishTrustRequest{Account: distributor.PublicKey, AssetCode: asset.Code, AssetIssuer: asset.Issuer.PublicKey}
	return c.post(ctx, "/trustlines", req, nil)
}

type mintRequest struct {
	Issuer      string `json:"issuer"`
	Distributor string `json:"distributor"`
	AssetCode   string `json:"asset_code"`
	Amount      string `json:"amount"`
}

// MintAndTransfer mints amount of asset from issuer directly to distributor.
func (c *Client) MintAndTransfer(ctx context.Context, asset dispatch.Asset, amount dispatch.Amount, issuer, distributor dispatch.IssuerCredential) error {
	req := mintRequest{Issuer: issuer.PublicKey, Distributor: distributor.PublicKey, AssetCode: asset.Code, Amount: amount.String()}
	return c.post(ctx, "/mint", req, nil)
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// BalanceOf returns the current balance of asset held by address.
func (c *Client) BalanceOf(ctx context.Context, address string, asset dispatch.Asset) (dispatch.Amount, error) {
	url := fmt.Sprintf("%s/accounts/%s/balances/%s", c.baseURL, address, asset.Code)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dispatch.Amount{}, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return dispatch.Amount{}, &dispatch.GatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return dispatch.Amount{}, c.decodeError(resp)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return dispatch.Amount{}, &dispatch.GatewayError{Err: err}
	}
	amount, err := dispatch.ParseAmount(body.Balance)
	if err != nil {
		return dispatch.Amount{}, &dispatch.GatewayError{Err: err}
	}
	return amount, nil
}

// post issues a JSON POST to path and decodes the response into out (a
// nil out skips body decoding, for endpoints with no payload).
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &dispatch.GatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &dispatch.GatewayError{Err: err}
	}
	return nil
}

// decodeError parses a non-2xx response into a *dispatch.GatewayError,
// preserving result_codes when the gateway supplied them and falling
// back to a bare transport-status error otherwise.
func (c *Client) decodeError(resp *http.Response) error {
	var wire wireError
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		log.Warn("gateway error body did not parse", "status", resp.StatusCode, "err", err)
		return &dispatch.GatewayError{TransportStatus: resp.StatusCode, Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}
	gwErr := &dispatch.GatewayError{
		TransportStatus: resp.StatusCode,
		Err:             fmt.Errorf("gateway error: %s", wire.Title),
	}
	if wire.ResultCodes != nil {
		gwErr.Codes = &dispatch.ResultCodes{
			Transaction: wire.ResultCodes.Transaction,
			Operations:  wire.ResultCodes.Operations,
		}
	}
	return gwErr
}
