package notify

import (
	"context"
	"errors"
	"net/http"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/lib/telemetry"
	"seatwatch-backend/lib/testutil"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleNotification() Notification {
	return Notification{
		ID:          "n-1",
		Tenant:      1,
		Destination: "channel-1",
		Subscribers: []string{"111", "222"},
		Course: registry.Course{
			Subject:      "CMPT",
			CourseNumber: "145",
			Year:         2024,
			Term:         "FALL",
		},
		Section: "12345",
		Seats:   3,
		Time:    time.Date(2024, time.September, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotify(t *testing.T) {
	telemetry.SetupForTesting(t)
	sink := testutil.NewWebhookSink(t)

	webhook := NewWebhook(WebhookOptions{
		DefaultUrl:   sink.URL("/default"),
		Destinations: map[string]string{"channel-1": sink.URL("/channel-1")},
		Username:     "seatwatch",
	})

	require.NoError(t, webhook.Notify(context.Background(), sampleNotification()))

	other := sampleNotification()
	other.Destination = "channel-9"
	require.NoError(t, webhook.Notify(context.Background(), other))

	messages := sink.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "/channel-1", messages[0].Path)
	require.Equal(t, "<@111> <@222>", messages[0].Content)
	require.Equal(t, "seatwatch", messages[0].Username)
	require.Equal(t, "/default", messages[1].Path)
}

func TestWebhookUnknownDestination(t *testing.T) {
	webhook := NewWebhook(WebhookOptions{})
	err := webhook.Notify(context.Background(), sampleNotification())
	require.ErrorIs(t, err, ErrUnknownDestination)
}

func TestWebhookRejected(t *testing.T) {
	sink := testutil.NewWebhookSink(t)
	sink.SetStatus(http.StatusTooManyRequests)

	webhook := NewWebhook(WebhookOptions{DefaultUrl: sink.URL("/")})
	err := webhook.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	require.Empty(t, sink.Messages())
}

func TestBuildWebhookMessage(t *testing.T) {
	msg := buildWebhookMessage(sampleNotification(), "")
	require.Len(t, msg.Embeds, 1)
	require.Equal(t, "Seats Available!", msg.Embeds[0].Title)
	require.Equal(t, "**CMPT 145** (CRN: 12345)", msg.Embeds[0].Description)
	require.Equal(t, []embedField{
		{Name: "Available Seats", Value: "3", Inline: true},
		{Name: "Term", Value: "FALL 2024", Inline: true},
	}, msg.Embeds[0].Fields)
	require.Equal(t, "2024-09-03T09:00:00Z", msg.Embeds[0].Timestamp)
	require.Equal(t, []string{"111", "222"}, msg.AllowedMentions.Users)
}

func TestEmailCompose(t *testing.T) {
	e := NewEmail(EmailOptions{
		Server:  "smtp.example.com",
		Port:    587,
		Address: "bot@example.com",
		To:      []string{"ops@example.com"},
	})
	mail := e.compose(sampleNotification())
	require.Equal(t, "seatwatch <bot@example.com>", mail.From)
	require.Equal(t, []string{"ops@example.com"}, mail.To)
	require.Equal(t, "Seats available: CMPT 145", mail.Subject)
	require.True(t, strings.Contains(string(mail.Text), "Available seats: 3"))

	// no recipients means nothing to send
	require.NoError(t, NewEmail(EmailOptions{}).Notify(context.Background(), sampleNotification()))
}

func TestMulti(t *testing.T) {
	var delivered []string
	ok := DispatcherFunc(func(ctx context.Context, n Notification) error {
		delivered = append(delivered, n.ID)
		return nil
	})
	failing := DispatcherFunc(func(ctx context.Context, n Notification) error {
		return errors.New("boom")
	})

	err := Multi{failing, ok, Log{}}.Notify(context.Background(), sampleNotification())
	require.ErrorContains(t, err, "boom")
	require.Equal(t, []string{"n-1"}, delivered)

	require.NoError(t, Multi{ok, Log{}}.Notify(context.Background(), sampleNotification()))
}
