package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"notehub/internal/config"
)

// InitSentry is a no-op when no DSN is configured.
func InitSentry(cfg config.SentryConfig, environment string, release string) error {
	if cfg.DSN == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err on the hub bound to ctx, falling back to the
// global hub.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		event.Request.Headers = RedactHeaders(event.Request.Headers)
		event.Request.Cookies = ""
		event.Request.Data = ""
	}
	for key, value := range event.Extra {
		if isSensitive(key) {
			event.Extra[key] = redacted
		} else if nested, ok := value.(map[string]any); ok {
			event.Extra[key] = RedactFields(nested)
		}
	}
	return event
}
