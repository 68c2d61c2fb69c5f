package notify

import (
	"context"
	"fmt"
	"seatwatch-backend/lib/telemetry"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/notify")

const embedColor = 0x0c6b41

type WebhookOptions struct {
	// DefaultUrl receives notifications for destinations without an entry
	// in Destinations.
	DefaultUrl   string
	Destinations map[string]string
	Username     string
	Timeout      time.Duration
}

// Webhook posts notifications to chat webhooks using the Discord message
// format.
type Webhook struct {
	http    *resty.Client
	options WebhookOptions
}

func NewWebhook(opts WebhookOptions) Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Content-Type", "application/json")
	telemetry.InstrumentResty(client, "internal/notify/http")

	return Webhook{http: client, options: opts}
}

func (w Webhook) resolve(destination string) (string, error) {
	url, ok := w.options.Destinations[destination]
	if ok && url != "" {
		return url, nil
	}
	if w.options.DefaultUrl != "" {
		return w.options.DefaultUrl, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownDestination, destination)
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type allowedMentions struct {
	Users []string `json:"users"`
}

type webhookMessage struct {
	Content         string          `json:"content"`
	Username        string          `json:"username,omitempty"`
	Embeds          []embed         `json:"embeds"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

func mentions(subscribers []string) string {
	out := make([]string, len(subscribers))
	for i, s := range subscribers {
		out[i] = fmt.Sprintf("<@%s>", s)
	}
	return strings.Join(out, " ")
}

func buildWebhookMessage(n Notification, username string) webhookMessage {
	msg := webhookMessage{
		Content:  mentions(n.Subscribers),
		Username: username,
		Embeds: []embed{{
			Title:       "Seats Available!",
			Description: fmt.Sprintf("**%s %s** (CRN: %s)", n.Course.Subject, n.Course.CourseNumber, n.Section),
			Color:       embedColor,
			Fields: []embedField{
				{Name: "Available Seats", Value: strconv.Itoa(n.Seats), Inline: true},
				{Name: "Term", Value: n.TermLabel(), Inline: true},
			},
			Footer: &embedFooter{Text: "seatwatch"},
		}},
		AllowedMentions: allowedMentions{Users: append([]string{}, n.Subscribers...)},
	}
	if !n.Time.IsZero() {
		msg.Embeds[0].Timestamp = n.Time.UTC().Format(time.RFC3339)
	}
	return msg
}

func (w Webhook) Notify(ctx context.Context, n Notification) error {
	ctx, span := tracer.Start(ctx, "Webhook.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.destination", n.Destination),
	)

	url, err := w.resolve(n.Destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown destination")
		return err
	}

	res, err := w.http.R().
		SetContext(ctx).
		SetBody(buildWebhookMessage(n, w.options.Username)).
		Post(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post webhook")
		return fmt.Errorf("post webhook: %w", err)
	}
	if res.IsError() {
		err = fmt.Errorf("post webhook: unexpected status %s", res.Status())
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook rejected message")
		return err
	}
	return nil
}
