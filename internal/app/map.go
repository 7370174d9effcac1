package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sitealert/internal/config"
	"sitealert/internal/delivery"
	"sitealert/internal/feed"
	"sitealert/internal/observability/debughttp"
	"sitealert/internal/remote"
	"sitealert/internal/retention"
	"sitealert/internal/session"
	"sitealert/internal/storage"
	logx "sitealert/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// mapStorageConfig returns ok=false when persistence is off; the app then
// keeps state in memory only.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	out := storage.Config{Driver: driver, Path: path, JournalKeep: sc.JournalKeep}
	switch driver {
	case "memory", "file":
		return out, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
		return out, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	dc := cfg.Delivery
	timeout, err := config.ParseDurationField("delivery.send_timeout", dc.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Workers:     dc.Workers,
		QueueSize:   dc.QueueSize,
		RatePerSec:  dc.RatePerSec,
		SendTimeout: timeout,
	}, nil
}

func mapFeedConfig(cfg *config.Config) (feed.Config, error) {
	fc := cfg.Feed
	out := feed.Config{
		URL:               strings.TrimSpace(fc.URL),
		MaxAttempts:       fc.MaxAttempts,
		DisableAutoRejoin: fc.DisableAutoRejoin,
	}
	var err error
	if out.Heartbeat, err = config.ParseDurationField("feed.heartbeat", fc.Heartbeat); err != nil {
		return feed.Config{}, err
	}
	if out.ReconnectBase, err = config.ParseDurationField("feed.reconnect_base", fc.ReconnectBase); err != nil {
		return feed.Config{}, err
	}
	if out.HandshakeTimeout, err = config.ParseDurationField("feed.handshake_timeout", fc.HandshakeTimeout); err != nil {
		return feed.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("feed.write_timeout", fc.WriteTimeout); err != nil {
		return feed.Config{}, err
	}
	return out, nil
}

func mapRetentionConfig(cfg *config.Config) retention.Config {
	return retention.Config{
		Enabled:  cfg.Retention.Enabled,
		Schedule: strings.TrimSpace(cfg.Retention.Schedule),
		Days:     cfg.Retention.Days,
		Timezone: cfg.Timezone,
	}
}

// mapRemoteConfig returns ok=false when no base url is configured.
func mapRemoteConfig(cfg *config.Config) (remote.Config, bool, error) {
	base := strings.TrimSpace(cfg.Remote.BaseURL)
	if base == "" {
		return remote.Config{}, false, nil
	}
	timeout, err := config.ParseDurationField("remote.timeout", cfg.Remote.Timeout)
	if err != nil {
		return remote.Config{}, false, err
	}
	return remote.Config{BaseURL: base, Timeout: timeout}, true, nil
}

func mapDebugConfig(cfg *config.Config) (debughttp.Config, error) {
	dc := cfg.Debug
	out := debughttp.Config{
		Enabled:              dc.Enabled,
		Addr:                 strings.TrimSpace(dc.Addr),
		Token:                strings.TrimSpace(dc.Token),
		AllowInsecure:        dc.AllowInsecure,
		Pprof:                dc.Pprof,
		PprofPrefix:          dc.PprofPrefix,
		MutexProfileFraction: dc.MutexProfileFraction,
		BlockProfileRate:     dc.BlockProfileRate,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 10*time.Second); err != nil {
		return debughttp.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("debug.write_timeout", dc.WriteTimeout); err != nil {
		return debughttp.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, time.Minute); err != nil {
		return debughttp.Config{}, err
	}
	return out, nil
}

// mapSession returns the configured user and token. ok=false means nobody
// is logged in at startup.
func mapSession(cfg *config.Config) (session.User, string, bool, error) {
	sc := cfg.Session
	token := strings.TrimSpace(sc.Token)
	if f := strings.TrimSpace(sc.TokenFile); f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			return session.User{}, "", false, fmt.Errorf("session.token_file: %w", err)
		}
		token = strings.TrimSpace(string(b))
	}
	if token == "" {
		return session.User{}, "", false, nil
	}
	return session.User{ID: sc.UserID, Name: sc.Name, Email: sc.Email, Role: sc.Role}, token, true, nil
}
