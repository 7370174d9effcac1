package config

// Config is the sitealert configuration file. All durations are Go duration
// strings ("500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Timezone is used for quiet hours and the retention schedule. Empty means local.
	Timezone string `json:"timezone,omitempty"`

	Session   SessionConfig   `json:"session"`
	Feed      FeedConfig      `json:"feed"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Retention RetentionConfig `json:"retention"`
	Remote    RemoteConfig    `json:"remote"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SessionConfig logs a user in at startup. Token and TokenFile are
// alternatives; TokenFile wins when both are set.
type SessionConfig struct {
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"` // do not log
	TokenFile string `json:"token_file,omitempty"`
}

// FeedConfig controls the realtime feed.
//
// Defaults:
//   - heartbeat: "30s"
//   - reconnect_base: "2s"
//   - max_attempts: 5
//   - handshake_timeout: "10s"
//   - write_timeout: "5s"
type FeedConfig struct {
	Enabled           bool   `json:"enabled"`
	URL               string `json:"url"`
	Heartbeat         string `json:"heartbeat,omitempty"`
	ReconnectBase     string `json:"reconnect_base,omitempty"`
	MaxAttempts       int    `json:"max_attempts,omitempty"`
	HandshakeTimeout  string `json:"handshake_timeout,omitempty"`
	WriteTimeout      string `json:"write_timeout,omitempty"`
	DisableAutoRejoin bool   `json:"disable_auto_rejoin,omitempty"`
}

// DeliveryConfig controls the async channel pipeline.
type DeliveryConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`

	// DashboardURL resolves relative action targets.
	DashboardURL string `json:"dashboard_url,omitempty"`

	Desktop DesktopConfig `json:"desktop"`
	Sound   SoundConfig   `json:"sound"`
	Push    *PushConfig   `json:"push,omitempty"`
}

// DesktopConfig selects the desktop platform: "dbus" (default), "log" or "none".
type DesktopConfig struct {
	Platform string `json:"platform,omitempty"`
	AppName  string `json:"app_name,omitempty"`
	AssetDir string `json:"asset_dir,omitempty"`
	// Opener is the command used to open action targets on click. Default: xdg-open.
	Opener string `json:"opener,omitempty"`
}

// SoundConfig selects the player: "command" (default), "bell" or "none".
type SoundConfig struct {
	Player   string `json:"player,omitempty"`
	Command  string `json:"command,omitempty"`
	AssetDir string `json:"asset_dir,omitempty"`
}

// PushConfig enables Telegram push when present.
type PushConfig struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./sitealert.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	JournalKeep int    `json:"journal_keep,omitempty"`
}

// RetentionConfig controls the periodic prune.
type RetentionConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec or descriptor; default "@every 1h"
	Days     int    `json:"days,omitempty"`     // default 30
}

// RemoteConfig points at the backend REST API. Empty BaseURL disables it.
type RemoteConfig struct {
	BaseURL         string `json:"base_url,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
	PullPreferences bool   `json:"pull_preferences,omitempty"`
}

// DebugConfig controls the optional debug HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:7070").
//   - A non-loopback address needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
