// Command distributor-dispatch runs the standalone dispatch core: it
// wires a BlockchainGateway, SettingsStore and DistributorRegistry to a
// DispatcherRegistry and serves Prometheus metrics, following the
// teacher's cmd/geth flag-driven bootstrap shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
	"github.com/ethereum-optimism/distributor-dispatch/internal/config"
	"github.com/ethereum-optimism/distributor-dispatch/internal/fleetregistry"
	"github.com/ethereum-optimism/distributor-dispatch/internal/issuerstore"
	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
	"github.com/ethereum-optimism/distributor-dispatch/internal/settingsstore"
	"github.com/ethereum-optimism/distributor-dispatch/internal/stellargateway"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to the dispatcher's TOML config file",
		Value: "./dispatch.toml",
	}
	gatewayFlag = &cli.StringFlag{
		Name:  "gateway.endpoint",
		Usage: "Horizon-compatible blockchain gateway base URL, overrides the config file",
	}
	fleetFlag = &cli.StringFlag{
		Name:  "fleet.endpoint",
		Usage: "distributor fleet directory endpoint",
		Value: "http://localhost:8081/distributors",
	}
)

func main() {
	app := &cli.App{
		Name:   "distributor-dispatch",
		Usage:  "multi-distributor blockchain transaction dispatcher",
		Flags:  []cli.Flag{configFlag, gatewayFlag, fleetFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("fatal error", "err", err)
	}
}

func run(cliCtx *cli.Context) error {
	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("failed to set GOMAXPROCS from cgroup limits", "err", err)
	}
	defer undoMaxProcs()

	cfgPath := cliCtx.String(configFlag.Name)
	cfg := config.Default()
	var watcher *config.Watcher
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Warn("no config file loaded, using defaults", "path", cfgPath, "err", err)
		} else {
			cfg = loaded
			if w, err := config.NewWatcher(cfgPath, cfg); err != nil {
				log.Warn("config hot-reload disabled", "path", cfgPath, "err", err)
			} else {
				watcher = w
			}
		}
	}
	if v := cliCtx.String(gatewayFlag.Name); v != "" {
		cfg.GatewayEndpoint = v
	}

	log.SetLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		log.SetOutputFile(cfg.LogFile, 100, 5, 30)
	}

	lock, locked, err := acquireSingleInstanceLock(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("acquiring single-instance lock: %w", err)
	}
	if !locked {
		return errors.New("another distributor-dispatch instance already holds the data directory lock")
	}
	defer lock.Unlock()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gateway := dispatch.NewRateLimitedGateway(
		stellargateway.New(cfg.GatewayEndpoint),
		cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.MaxInFlightRequests,
	)

	remoteSettings := settingsstore.New(cfg.SettingsDocumentURL)
	remoteSettings.Start(ctx)
	defer remoteSettings.Stop()
	settings := &layeredSettings{remote: remoteSettings, watcher: watcher}

	upstream := fleetregistry.New(cliCtx.String(fleetFlag.Name))
	issuers := issuerstore.New()

	registry := dispatch.NewDispatcherRegistry(gateway, settings, upstream, fleetregistry.SeedDecoder{}, issuers)
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher registry: %w", err)
	}

	go serveMetrics(cfg.MetricsAddr)

	log.Info("distributor-dispatch started", "gateway", cfg.GatewayEndpoint, "metrics", cfg.MetricsAddr)
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return registry.Shutdown(shutdownCtx)
}

const shutdownGrace = 35 * time.Second

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", "err", err)
	}
}

// acquireSingleInstanceLock takes an exclusive file lock on dataDir to
// prevent two dispatcher processes from double-submitting against the
// same distributor fleet, matching the teacher's datadir-locking
// utility (node.Node's flock usage).
func acquireSingleInstanceLock(dataDir string) (*flock.Flock, bool, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, false, err
	}
	lock := flock.New(dataDir + "/LOCK")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, err
	}
	return lock, locked, nil
}

// layeredSettings combines the remote-polled SettingsStore with the
// local config file's hot-reloaded kill switch: sending is enabled only
// when both agree, so an operator can halt the dispatcher immediately
// via either channel without waiting on the other's poll interval.
type layeredSettings struct {
	remote  *settingsstore.Poller
	watcher *config.Watcher
}

func (s *layeredSettings) SendingEnabled(ctx context.Context) (bool, error) {
	enabled, err := s.remote.SendingEnabled(ctx)
	if err != nil || !enabled {
		return enabled, err
	}
	if s.watcher != nil && !s.watcher.Current().SendingEnabled {
		return false, nil
	}
	return true, nil
}

func (s *layeredSettings) IssuerCredential(ctx context.Context) (dispatch.IssuerCredential, bool, error) {
	return s.remote.IssuerCredential(ctx)
}

func (s *layeredSettings) RefillCredential(ctx context.Context) (dispatch.IssuerCredential, bool, error) {
	return s.remote.RefillCredential(ctx)
}
