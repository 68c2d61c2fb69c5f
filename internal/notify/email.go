package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type EmailOptions struct {
	Server   string
	Port     int
	Address  string
	Password string
	To       []string
}

// Email sends notifications to a fixed list of recipients over SMTP.
type Email struct {
	options EmailOptions
}

func NewEmail(opts EmailOptions) Email {
	return Email{options: opts}
}

func (e Email) compose(n Notification) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("seatwatch <%s>", e.options.Address)
	mail.To = append([]string(nil), e.options.To...)
	mail.Subject = fmt.Sprintf("Seats available: %s %s", n.Course.Subject, n.Course.CourseNumber)

	body := fmt.Sprintf(`%s

Available seats: %d
Term: %s
Watching: %d subscriber(s)
`, n.Title(), n.Seats, n.TermLabel(), len(n.Subscribers))
	mail.Text = []byte(body)
	return mail
}

func (e Email) Notify(ctx context.Context, n Notification) error {
	_, span := tracer.Start(ctx, "Email.Notify")
	defer span.End()

	if len(e.options.To) == 0 {
		return nil
	}

	mail := e.compose(n)
	addr := fmt.Sprintf("%s:%d", e.options.Server, e.options.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.options.Address, e.options.Password, e.options.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
