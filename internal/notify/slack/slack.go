// Package slack posts notifications through a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/dailyread/internal/notify"
)

// maxRetries is the max number of retries for rate-limited webhook posts.
const maxRetries = 3

// webhookPoster abstracts slackapi.PostWebhookContext, enabling test mocks.
type webhookPoster func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// Notifier implements notify.Notifier for a Slack incoming webhook.
type Notifier struct {
	url  string
	post webhookPoster
}

// Opts holds parameters for creating a Slack Notifier.
type Opts struct {
	WebhookURL string
	// For testing: inject a poster instead of the real webhook call.
	Post webhookPoster
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	post := opts.Post
	if post == nil {
		post = slackapi.PostWebhookContext
	}
	return &Notifier{url: opts.WebhookURL, post: post}, nil
}

// Notify posts msg as a single attachment.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	wh := buildWebhookMessage(msg)
	err := retryOnRateLimit(ctx, func() error {
		return n.post(ctx, n.url, wh)
	})
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

// buildWebhookMessage translates a Message into a Slack webhook payload.
func buildWebhookMessage(msg notify.Message) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return &slackapi.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slackapi.Attachment{att},
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
