// Package webhook posts one-shot chat notifications (submission summaries)
// to an incoming-webhook URL. Failures are logged and never reach the caller.
package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

type Notifier struct {
	client *resty.Client
	url    string
	logger zerolog.Logger
}

func NewNotifier(url string, timeout time.Duration, logger zerolog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// Notify posts content as the form field "content".
func (n *Notifier) Notify(ctx context.Context, content string) {
	if n.url == "" {
		n.logger.Debug().Msg("webhook url not configured, notification skipped")
		return
	}

	// The request may already be finishing; the notification must not be
	// cancelled with it.
	ctx = context.WithoutCancel(ctx)

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"content": content}).
		Post(n.url)
	if err != nil {
		n.logger.Error().Err(err).Msg("webhook delivery failed")
		return
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		n.logger.Error().Int("status_code", resp.StatusCode()).Msg("webhook endpoint rejected notification")
		return
	}
	n.logger.Info().Int("status_code", resp.StatusCode()).Msg("webhook delivered")
}
