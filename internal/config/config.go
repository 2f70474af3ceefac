// Package config loads the dispatcher's static configuration, following
// the teacher's layered approach (cmd/geth: a TOML file decoded with
// tolerant field matching, overridable by CLI flags) and hot-reloading
// the file via an fsnotify watch so operators can flip the admin kill
// switch at runtime.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	fsnotify "github.com/fsnotify/fsnotify"
	naoina "github.com/naoina/toml"

	"github.com/ethereum-optimism/distributor-dispatch/internal/log"
)

// Config is the dispatcher's static configuration.
type Config struct {
	GatewayEndpoint     string        `toml:"gateway_endpoint"`
	SettingsDocumentURL string        `toml:"settings_document_url"`
	SettingsPollEvery   time.Duration `toml:"settings_poll_every"`
	RegistryPollEvery   time.Duration `toml:"registry_poll_every"`
	RefillCredentialEnv string        `toml:"refill_credential_env"`
	RateLimitPerSecond  float64       `toml:"rate_limit_per_second"`
	RateLimitBurst      int           `toml:"rate_limit_burst"`
	MaxInFlightRequests int           `toml:"max_in_flight_requests"`
	LogLevel            string        `toml:"log_level"`
	LogFile             string        `toml:"log_file"`
	MetricsAddr         string        `toml:"metrics_addr"`
	DataDir             string        `toml:"data_dir"`

	// SendingEnabled is the admin kill switch. It is the one field the
	// registry re-reads on every file change without a process restart.
	SendingEnabled bool `toml:"sending_enabled"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		SettingsPollEvery:   30 * time.Second,
		RegistryPollEvery:   60 * time.Second,
		RateLimitPerSecond:  5,
		RateLimitBurst:      10,
		MaxInFlightRequests: 4,
		LogLevel:            "info",
		MetricsAddr:         ":9095",
		DataDir:             "./datadir",
		SendingEnabled:      true,
	}
}

// Load decodes path (tolerant field matching via naoina/toml, matching
// cmd/utils' config style) and then re-validates the same bytes with
// BurntSushi/toml in strict mode so an operator typo in a field name is
// caught at boot instead of silently ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := naoina.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config %s: %w", path, err)
	}

	var strict Config
	meta, err := toml.Decode(string(data), &strict)
	if err != nil {
		return cfg, fmt.Errorf("strict-decoding config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config %s has unrecognized keys: %v", path, undecoded)
	}
	return cfg, nil
}

// Watcher hot-reloads the whole config file on every write, logging and
// keeping the last-good value on a parse failure rather than
// propagating it into the running dispatcher.
type Watcher struct {
	mu   sync.RWMutex
	path string
	cur  Config
}

// NewWatcher starts watching path for changes; initial must already have
// been loaded via Load.
func NewWatcher(path string, initial Config) (*Watcher, error) {
	w := &Watcher{path: path, cur: initial}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config %s: %w", path, err)
	}
	go w.loop(watcher)
	return w, nil
}

func (w *Watcher) loop(watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for event := range watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		next, err := Load(w.path)
		if err != nil {
			log.Warn("config reload failed, keeping last-good value", "path", w.path, "err", err)
			continue
		}
		w.mu.Lock()
		w.cur = next
		w.mu.Unlock()
		log.Info("config reloaded", "path", w.path, "sendingEnabled", next.SendingEnabled)
	}
}

// Current returns the most recently successfully loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}
