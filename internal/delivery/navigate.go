package delivery

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// URLOpener opens action targets relative to the dashboard base URL with a
// desktop opener such as xdg-open.
type URLOpener struct {
	BaseURL string
	Command string
}

func (o URLOpener) Navigate(target string) error {
	full, err := o.resolve(target)
	if err != nil {
		return err
	}
	cmd := o.Command
	if cmd == "" {
		cmd = "xdg-open"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, cmd, full).CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", cmd, full, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (o URLOpener) resolve(target string) (string, error) {
	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("action target: %w", err)
	}
	if t.IsAbs() || o.BaseURL == "" {
		return t.String(), nil
	}
	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("dashboard url: %w", err)
	}
	return base.ResolveReference(t).String(), nil
}
