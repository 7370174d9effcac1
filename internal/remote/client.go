// Package remote is a typed client for the dashboard backend's notification
// API under /notifications.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "sitealert/pkg/logx"
)

var ErrStatus = errors.New("remote: unexpected status")

// StatusError carries a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote: %s %s: %d: %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("remote: %s %s: %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Config points the client at the API root, e.g. https://dash.example.com/api/v1.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TokenSource supplies the bearer token. *session.Manager satisfies it.
type TokenSource interface {
	Token() string
}

type Client struct {
	base   *url.URL
	hc     *http.Client
	tokens TokenSource
	log    logx.Logger
}

func New(cfg Config, tokens TokenSource, log logx.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("remote: base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:   u,
		hc:     &http.Client{Timeout: timeout},
		tokens: tokens,
		log:    log.With(logx.String("comp", "remote")),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base.JoinPath(strings.Split(strings.Trim(path, "/"), "/")...)
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("remote call",
		logx.String("method", method),
		logx.String("path", path),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return nil
}

// errorDetail extracts {"detail": "..."} when the body has one.
func errorDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var v struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(b, &v) == nil && v.Detail != nil {
		if s, ok := v.Detail.(string); ok {
			return s
		}
		d, _ := json.Marshal(v.Detail)
		return string(d)
	}
	return strings.TrimSpace(string(b))
}
