package config

import (
	"reflect"
	"sort"
	"strings"

	logx "sitealert/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and log
// fields describing them. Secrets are reported only as "*_set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.json", newCfg.Logging.JSON),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		mark("timezone", logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	oSess, nSess := oldCfg.Session, newCfg.Session
	if oSess != nSess {
		mark("session",
			logx.String("session.user_id", nSess.UserID),
			logx.String("session.role", nSess.Role),
			logx.Bool("session.token_set", nSess.Token != "" || nSess.TokenFile != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		mark("feed",
			logx.Bool("feed.enabled", newCfg.Feed.Enabled),
			logx.String("feed.url", strings.TrimSpace(newCfg.Feed.URL)),
			logx.Int("feed.max_attempts", newCfg.Feed.MaxAttempts),
		)
	}

	od, nd := oldCfg.Delivery, newCfg.Delivery
	if !reflect.DeepEqual(od, nd) {
		mark("delivery",
			logx.Int("delivery.workers", nd.Workers),
			logx.Int("delivery.queue_size", nd.QueueSize),
			logx.Int("delivery.rate_per_sec", nd.RatePerSec),
			logx.String("delivery.desktop", nd.Desktop.Platform),
			logx.String("delivery.sound", nd.Sound.Player),
			logx.Bool("delivery.push_set", nd.Push != nil),
		)
	}

	var oDriver, nDriver string
	var oPath, nPath string
	if oldCfg.Storage != nil {
		oDriver, oPath = strings.TrimSpace(oldCfg.Storage.Driver), strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nDriver, nPath = strings.TrimSpace(newCfg.Storage.Driver), strings.TrimSpace(newCfg.Storage.Path)
	}
	if oDriver != nDriver || oPath != nPath {
		mark("storage", logx.String("storage.driver", nDriver), logx.Bool("storage.path_set", nPath != ""))
	}

	if oldCfg.Retention != newCfg.Retention {
		mark("retention",
			logx.Bool("retention.enabled", newCfg.Retention.Enabled),
			logx.String("retention.schedule", newCfg.Retention.Schedule),
			logx.Int("retention.days", newCfg.Retention.Days),
		)
	}

	if oldCfg.Remote != newCfg.Remote {
		mark("remote",
			logx.String("remote.base_url", newCfg.Remote.BaseURL),
			logx.Bool("remote.pull_preferences", newCfg.Remote.PullPreferences),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		mark("debug",
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.pprof", newCfg.Debug.Pprof),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "feed", "session", "remote", "timezone":
			out = append(out, s)
		}
	}
	return out
}
