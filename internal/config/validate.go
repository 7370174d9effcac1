package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sitealert/internal/retention"
)

func defaultValidator(_ context.Context, cfg *Config) error { return Validate(cfg) }

// Validate rejects configs that would fail when applied. It never touches the network.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: invalid %q: %w", tz, err)
		}
	}

	durations := []struct{ path, raw string }{
		{"feed.heartbeat", cfg.Feed.Heartbeat},
		{"feed.reconnect_base", cfg.Feed.ReconnectBase},
		{"feed.handshake_timeout", cfg.Feed.HandshakeTimeout},
		{"feed.write_timeout", cfg.Feed.WriteTimeout},
		{"delivery.send_timeout", cfg.Delivery.SendTimeout},
		{"remote.timeout", cfg.Remote.Timeout},
		{"debug.read_timeout", cfg.Debug.ReadTimeout},
		{"debug.write_timeout", cfg.Debug.WriteTimeout},
		{"debug.idle_timeout", cfg.Debug.IdleTimeout},
	}
	if cfg.Storage != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", cfg.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if cfg.Feed.Enabled {
		if err := checkURL("feed.url", cfg.Feed.URL, "ws", "wss"); err != nil {
			return err
		}
	}
	if cfg.Feed.MaxAttempts < 0 {
		return errors.New("feed.max_attempts must be >= 0")
	}

	dc := cfg.Delivery
	if dc.Workers < 0 || dc.QueueSize < 0 || dc.RatePerSec < 0 {
		return errors.New("delivery.workers, queue_size and rate_per_sec must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(dc.Desktop.Platform)) {
	case "", "dbus", "log", "none":
	default:
		return fmt.Errorf("delivery.desktop.platform: unknown %q", dc.Desktop.Platform)
	}
	switch strings.ToLower(strings.TrimSpace(dc.Sound.Player)) {
	case "", "command", "bell", "none":
	default:
		return fmt.Errorf("delivery.sound.player: unknown %q", dc.Sound.Player)
	}
	if dc.Push != nil {
		if strings.TrimSpace(dc.Push.Token) == "" {
			return errors.New("delivery.push.token is required")
		}
		if dc.Push.ChatID == 0 {
			return errors.New("delivery.push.chat_id is required")
		}
	}
	if u := strings.TrimSpace(dc.DashboardURL); u != "" {
		if err := checkURL("delivery.dashboard_url", u, "http", "https"); err != nil {
			return err
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "memory", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				return errors.New("storage.path is required when storage.driver=sqlite")
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", st.Driver)
		}
		if st.JournalKeep < 0 {
			return errors.New("storage.journal_keep must be >= 0")
		}
	}

	if cfg.Retention.Days < 0 {
		return errors.New("retention.days must be >= 0")
	}
	if s := strings.TrimSpace(cfg.Retention.Schedule); s != "" {
		if err := retention.ValidateSchedule(s); err != nil {
			return err
		}
	}

	if u := strings.TrimSpace(cfg.Remote.BaseURL); u != "" {
		if err := checkURL("remote.base_url", u, "http", "https"); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(path, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: want %s url, got %q", path, strings.Join(schemes, "/"), raw)
}
