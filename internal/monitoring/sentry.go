package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

type Options struct {
	DSN         string
	Environment string
	Release     string
}

func clientOptions(o Options) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              o.DSN,
		Environment:      o.Environment,
		Release:          o.Release,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags["bot_version"] = o.Release
			return event
		},
	}
}

// Reporter sends errors and panics to Sentry. A nil Reporter drops
// everything, so callers never check whether tracking is configured.
type Reporter struct {
	hub *sentry.Hub
}

// New returns nil when no DSN is configured.
func New(o Options) (*Reporter, error) {
	if o.DSN == "" {
		return nil, nil
	}
	client, err := sentry.NewClient(clientOptions(o))
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return newReporter(client), nil
}

func newReporter(client *sentry.Client) *Reporter {
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}
}

func (r *Reporter) CaptureError(err error) {
	if r == nil || err == nil {
		return
	}
	r.hub.CaptureException(err)
}

func (r *Reporter) CaptureMessage(msg string, level sentry.Level) {
	if r == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		r.hub.CaptureMessage(msg)
	})
}

// Recover reports a recovered panic value tagged with the gateway event
// whose handler panicked.
func (r *Reporter) Recover(v any, event string) {
	if r == nil || v == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event", event)
		r.hub.Recover(v)
	})
}

func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	return r.hub.Flush(timeout)
}

// Hook forwards log lines to Sentry: error and above become events, info
// and warn become breadcrumbs attached to the next event.
func (r *Reporter) Hook() zerolog.Hook {
	if r == nil {
		return zerolog.HookFunc(func(*zerolog.Event, zerolog.Level, string) {})
	}
	return logHook{hub: r.hub}
}

type logHook struct {
	hub *sentry.Hub
}

func (h logHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if msg == "" {
		return
	}
	switch {
	case level >= zerolog.ErrorLevel && level <= zerolog.PanicLevel:
		h.hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentryLevel(level))
			scope.SetTag("logger", "zerolog")
			h.hub.CaptureMessage(msg)
		})
	case level == zerolog.InfoLevel || level == zerolog.WarnLevel:
		h.hub.AddBreadcrumb(&sentry.Breadcrumb{
			Category:  "log",
			Level:     sentryLevel(level),
			Message:   msg,
			Timestamp: time.Now(),
		}, nil)
	}
}

func sentryLevel(level zerolog.Level) sentry.Level {
	switch level {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return sentry.LevelDebug
	case zerolog.WarnLevel:
		return sentry.LevelWarning
	case zerolog.ErrorLevel:
		return sentry.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
