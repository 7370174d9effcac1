package app

import (
	"io"
	"os"
	"strings"

	"sitealert/internal/config"
	"sitealert/internal/delivery"
	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

// channels holds the deliverers built from config plus what must be closed
// on shutdown.
type channels struct {
	desktop *delivery.Desktop
	opts    []delivery.DispatcherOption
	closers []io.Closer
}

func buildChannels(cfg *config.Config, reader delivery.Reader, log logx.Logger) (*channels, error) {
	dc := cfg.Delivery
	out := &channels{}

	var platform delivery.Platform
	switch strings.ToLower(strings.TrimSpace(dc.Desktop.Platform)) {
	case "", "dbus":
		p := delivery.NewDBusPlatform(dc.Desktop.AppName, dc.Desktop.AssetDir, log)
		out.closers = append(out.closers, p)
		platform = p
	case "log":
		platform = delivery.LogPlatform{Log: log}
	case "none":
	}
	nav := delivery.URLOpener{BaseURL: dc.DashboardURL, Command: dc.Desktop.Opener}
	out.desktop = delivery.NewDesktop(platform, reader, nav, log)
	out.opts = append(out.opts, delivery.WithChannel(notification.ChannelDesktop, out.desktop))

	var player delivery.Player
	switch strings.ToLower(strings.TrimSpace(dc.Sound.Player)) {
	case "", "command":
		player = delivery.CommandPlayer{Command: dc.Sound.Command, AssetDir: dc.Sound.AssetDir}
	case "bell":
		player = delivery.BellPlayer{W: os.Stderr}
	case "none":
	}
	if player != nil {
		out.opts = append(out.opts, delivery.WithChannel(notification.ChannelSound, delivery.NewSound(player, log)))
	}

	if pc := dc.Push; pc != nil {
		push, err := delivery.NewTelegramPush(delivery.PushConfig{
			Token:        pc.Token,
			ChatID:       pc.ChatID,
			ThreadID:     pc.ThreadID,
			DashboardURL: dc.DashboardURL,
		}, log)
		if err != nil {
			return nil, err
		}
		out.opts = append(out.opts, delivery.WithChannel(notification.ChannelPush, push))
	}
	return out, nil
}

func (c *channels) Close() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
}
