package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitealert/internal/compose"
	"sitealert/internal/config"
	"sitealert/internal/delivery"
	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{"absent", nil, false, "", 0, false},
		{"none", &config.StorageConfig{Driver: "none"}, false, "", 0, false},
		{"file", &config.StorageConfig{Driver: "File", Path: "./state"}, true, "file", 0, false},
		{"sqlite default busy", &config.StorageConfig{Driver: "sqlite", Path: "x.db"}, true, "sqlite", time.Second, false},
		{"sqlite busy", &config.StorageConfig{Driver: "sqlite3", Path: "x.db", BusyTimeout: "3s"}, true, "sqlite3", 3 * time.Second, false},
		{"sqlite no path", &config.StorageConfig{Driver: "sqlite"}, false, "", 0, true},
		{"bad busy", &config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "later"}, false, "", 0, true},
		{"unknown", &config.StorageConfig{Driver: "etcd"}, false, "", 0, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			assert.Equal(t, tc.driver, sc.Driver)
			assert.Equal(t, tc.busy, sc.BusyTimeout)
		})
	}
}

func TestMapFeedAndDebugConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Feed:  config.FeedConfig{URL: " wss://x/ws ", Heartbeat: "15s", MaxAttempts: 3},
		Debug: config.DebugConfig{Enabled: true, Addr: "127.0.0.1:0", WriteTimeout: "30s"},
	}
	fc, err := mapFeedConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "wss://x/ws", fc.URL)
	assert.Equal(t, 15*time.Second, fc.Heartbeat)
	assert.Equal(t, 3, fc.MaxAttempts)
	assert.Zero(t, fc.ReconnectBase, "left for the adapter default")

	dc, err := mapDebugConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, dc.ReadTimeout)
	assert.Equal(t, 30*time.Second, dc.WriteTimeout)
	assert.Equal(t, time.Minute, dc.IdleTimeout)

	cfg.Feed.WriteTimeout = "fast"
	_, err = mapFeedConfig(cfg)
	assert.Error(t, err)
}

func TestMapSession(t *testing.T) {
	t.Parallel()
	_, _, ok, err := mapSession(&config.Config{})
	require.NoError(t, err)
	assert.False(t, ok)

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file\n"), 0o600))
	u, token, ok, err := mapSession(&config.Config{Session: config.SessionConfig{UserID: "u1", Token: "inline", TokenFile: tokenFile}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from-file", token)
	assert.Equal(t, "u1", u.ID)

	_, _, _, err = mapSession(&config.Config{Session: config.SessionConfig{TokenFile: filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Timezone: "UTC",
		Storage:  &config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "sitealert.db")},
		Delivery: config.DeliveryConfig{
			Desktop: config.DesktopConfig{Platform: "log"},
			Sound:   config.SoundConfig{Player: "none"},
		},
	}
}

func TestOpenLocalDeliversAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := localConfig(t)

	l, err := OpenLocal(ctx, cfg, logx.Nop(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []notification.Channel{notification.ChannelDesktop}, l.Dispatcher.Channels())

	l.Dispatcher.Start(ctx)
	rec, err := compose.New(l.Store, logx.Nop()).StageDelayed("Framing", "Harbor View", 9, "rain")
	require.NoError(t, err)
	assert.Equal(t, notification.PriorityUrgent, rec.Priority)

	require.Eventually(t, func() bool {
		for _, h := range l.Dispatcher.Snapshot() {
			if h.Channel == notification.ChannelDesktop && h.Outcome == delivery.OutcomeSent {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Close(ctx))

	again, err := OpenLocal(ctx, cfg, logx.Nop(), nil)
	require.NoError(t, err)
	defer func() { _ = again.Close(ctx) }()

	got, ok := again.Store.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.Title, got.Title)
	assert.False(t, got.Read)

	entries, err := again.State.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	var channels []string
	for _, e := range entries {
		assert.Equal(t, rec.ID, e.RecordID)
		channels = append(channels, e.Channel)
	}
	assert.ElementsMatch(t, []string{"desktop", "sound"}, channels, "sound is journaled as skipped")
}

func TestOpenLocalRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cfg := localConfig(t)
	cfg.Timezone = "Atlantis/Capital"
	_, err := OpenLocal(context.Background(), cfg, logx.Nop(), nil)
	assert.Error(t, err)

	cfg = localConfig(t)
	cfg.Delivery.Push = &config.PushConfig{ChatID: 1}
	_, err = OpenLocal(context.Background(), cfg, logx.Nop(), nil)
	assert.Error(t, err)
}

func remotePrefsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications/preferences/me" || r.Header.Get("Authorization") != "Bearer t0k" {
			http.Error(w, `{"detail":"nope"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"enable_desktop_notifications": true,
			"enable_sound_notifications":   false,
			"quiet_hours_enabled":          true,
			"quiet_hours_start":            "21:00",
			"quiet_hours_end":              "06:30",
			"allow_urgent_in_quiet_hours":  true,
			"grouping_enabled":             true,
			"grouping_time_window":         10,
			"type_preferences": map[string]any{
				"comment": map[string]any{"enabled": true, "desktop": true, "minimum_priority": "low"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAppLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	srv := remotePrefsServer(t)
	cfgPath := filepath.Join(dir, "sitealert.json")
	body := fmt.Sprintf(`{
  "logging": {"level": "error", "console": false, "file": {"enabled": false, "path": ""}},
  "timezone": "UTC",
  "session": {"user_id": "u-7", "token": "t0k"},
  "feed": {"enabled": false, "url": ""},
  "delivery": {"desktop": {"platform": "log"}, "sound": {"player": "none"}},
  "storage": {"driver": "file", "path": %q},
  "retention": {"enabled": true, "schedule": "@daily", "days": 30},
  "remote": {"base_url": %q, "pull_preferences": true},
  "debug": {"enabled": true, "addr": "127.0.0.1:0"}
}`, filepath.Join(dir, "state"), srv.URL+"/api/v1")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	a, err := New(cfgPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		return a.Local().Store.Preferences().QuietHours.Start == "21:00"
	}, 3*time.Second, 20*time.Millisecond)
	prefs := a.Local().Store.Preferences()
	assert.False(t, prefs.SoundEnabled)
	assert.Equal(t, 10, prefs.Grouping.WindowMinutes)
	assert.True(t, prefs.Categories[notification.CategoryComment].Desktop)

	_, err = compose.New(a.Local().Store, logx.Nop()).Mention("Dana", "the pour schedule", "Harbor View")
	require.NoError(t, err)

	select {
	case <-a.debug.Bound():
	case <-time.After(2 * time.Second):
		t.Fatal("debug server did not bind")
	}
	resp, err := http.Get("http://" + a.debug.Addr() + "/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	_ = resp.Body.Close()
	assert.Equal(t, 1, st.Records)
	assert.Equal(t, 1, st.Unread)
	assert.True(t, st.Session.Authenticated)
	assert.Equal(t, "u-7", st.Session.UserID)
	assert.Equal(t, delivery.PermissionGranted, st.Permission)
	assert.Nil(t, st.Feed)
	assert.False(t, st.Retention.NextRun.IsZero())

	var raw []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.debug.Addr() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, _ = io.ReadAll(resp.Body)
		return strings.Contains(string(raw), `sitealert_notifications_ingested_total{category="mention",priority="medium"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(raw), "go_goroutines")

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx, StopCommand))

	// state survives the restart
	l, err := OpenLocal(ctx, a.Config(), logx.Nop(), nil)
	require.NoError(t, err)
	defer func() { _ = l.Close(ctx) }()
	assert.Equal(t, 1, l.Store.Len())
	assert.Equal(t, "21:00", l.Store.Preferences().QuietHours.Start)
}

func TestApplyConfigHotReloadsDelivery(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sitealert.yaml")
	write := func(rate int) {
		body := fmt.Sprintf(`
logging: {level: error, console: false, file: {enabled: false, path: ""}}
feed: {enabled: false, url: ""}
delivery:
  rate_per_sec: %d
  desktop: {platform: none}
  sound: {player: none}
retention: {enabled: false}
`, rate)
		require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	}
	write(2)

	a, err := New(cfgPath)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, 2, a.Local().Dispatcher.Config().RatePerSec)

	write(9)
	require.Eventually(t, func() bool {
		return a.Local().Dispatcher.Config().RatePerSec == 9
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx, StopCommand))
}
