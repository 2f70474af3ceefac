// Package settingsstore implements dispatch.SettingsStore by polling a
// YAML settings document over HTTP and caching the last successfully
// parsed value, so a transient fetch failure never blocks
// BatchSender's per-batch SendingEnabled check (spec.md §4.E "poll
// SendingEnabled at every batch submission").
package settingsstore

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
)

// pollInterval is how often Poller refreshes its cached document.
const pollInterval = 10 * time.Second

// document is the wire shape of the remote settings document.
type document struct {
	SendingEnabled      bool   `yaml:"sending_enabled"`
	IssuerPublicKey     string `yaml:"issuer_public_key"`
	RefillCredPublicKey string `yaml:"refill_public_key"`
}

// Poller is a SettingsStore backed by a periodically-refetched YAML
// document.
type Poller struct {
	url  string
	http *http.Client

	mu  sync.RWMutex
	doc document
	ok  bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Poller targeting url. Callers must invoke Start to begin
// polling; until the first successful fetch, SendingEnabled defaults to
// true (fail open, per spec.md's admin-kill-switch semantics: a
// settings outage should never silently halt dispatch).
func New(url string) *Poller {
	return &Poller{
		url:    url,
		http:   &http.Client{Timeout: 10 * time.Second},
		stopCh: make(chan struct{}),
	}
}

// Start performs an initial synchronous fetch and launches the
// background poll loop.
func (p *Poller) Start(ctx context.Context) {
	p.refresh(ctx)
	go p.loop(ctx)
}

// Stop ends the poll loop.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		log.Warn("settings poll request build failed", "err", err)
		return
	}
	resp, err := p.http.Do(req)
	if err != nil {
		log.Warn("settings poll failed, keeping last-known value", "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn("settings poll returned non-2xx, keeping last-known value", "status", resp.StatusCode)
		return
	}

	var doc document
	if err := yaml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		log.Warn("settings document did not parse, keeping last-known value", "err", err)
		return
	}

	p.mu.Lock()
	p.doc = doc
	p.ok = true
	p.mu.Unlock()
}

// SendingEnabled reads the cached admin kill switch.
func (p *Poller) SendingEnabled(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok {
		return true, nil
	}
	return p.doc.SendingEnabled, nil
}

// IssuerCredential returns the cached default issuer credential, if the
// document named one.
func (p *Poller) IssuerCredential(ctx context.Context) (dispatch.IssuerCredential, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok || p.doc.IssuerPublicKey == "" {
		return dispatch.IssuerCredential{}, false, nil
	}
	return dispatch.IssuerCredential{PublicKey: p.doc.IssuerPublicKey}, true, nil
}

// RefillCredential returns the cached gas-refill credential, if the
// document named one.
func (p *Poller) RefillCredential(ctx context.Context) (dispatch.IssuerCredential, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ok || p.doc.RefillCredPublicKey == "" {
		return dispatch.IssuerCredential{}, false, nil
	}
	return dispatch.IssuerCredential{PublicKey: p.doc.RefillCredPublicKey}, true, nil
}
