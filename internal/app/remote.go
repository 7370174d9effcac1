package app

import (
	"errors"

	"sitealert/internal/config"
	"sitealert/internal/remote"
	logx "sitealert/pkg/logx"
)

var ErrRemoteDisabled = errors.New("remote.base_url is not configured")

type staticToken string

func (s staticToken) Token() string { return string(s) }

// OpenRemote builds a dashboard API client authenticated with the
// configured session token. It does not need a running App.
func OpenRemote(cfg *config.Config, log logx.Logger) (*remote.Client, error) {
	rc, ok, err := mapRemoteConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRemoteDisabled
	}
	_, token, _, err := mapSession(cfg)
	if err != nil {
		return nil, err
	}
	return remote.New(rc, staticToken(token), log)
}
