package delivery

import (
	"context"

	logx "sitealert/pkg/logx"
)

// LogPlatform writes alerts to the log. It is the headless fallback and is
// always granted.
type LogPlatform struct {
	Log logx.Logger
}

func (LogPlatform) Permission(context.Context) (Permission, error)        { return PermissionGranted, nil }
func (LogPlatform) RequestPermission(context.Context) (Permission, error) { return PermissionGranted, nil }

func (p LogPlatform) Show(_ context.Context, pl Payload, _ func()) (func(), error) {
	p.Log.Info("desktop alert",
		logx.String("title", pl.Title),
		logx.String("body", pl.Body),
		logx.String("tag", pl.Tag),
		logx.Bool("require_interaction", pl.RequireInteraction),
		logx.String("url", pl.URL),
	)
	return func() {}, nil
}
