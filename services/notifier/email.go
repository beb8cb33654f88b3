package notifier

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// Dialer sends composed messages; *gomail.Dialer satisfies it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email mails a copy of every alert
type Email struct {
	dialer Dialer
	from   string
	to     string
}

// NewEmail creates the transport for an SMTP server
func NewEmail(host string, port int, username, password, from, to string) *Email {
	if from == "" {
		from = username
	}
	return NewEmailWithDialer(gomail.NewDialer(host, port, username, password), from, to)
}

// NewEmailWithDialer creates the transport with a custom dialer
func NewEmailWithDialer(d Dialer, from, to string) *Email {
	return &Email{dialer: d, from: from, to: to}
}

// Name implements Transport
func (e *Email) Name() string {
	return "email"
}

// Send implements Transport
func (e *Email) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := alert.Listing
	subject := fmt.Sprintf("%s -%d%%: %s", l.Source.Label(), alert.Discount, TruncateTitle(l.Title))

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainText(alert))
	m.AddAlternative("text/html", strings.ReplaceAll(alert.Text, "\n", "<br>"))

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func plainText(alert Alert) string {
	l := alert.Listing
	return fmt.Sprintf("%s | -%d%%\n\n%s\n%d ₽ -> %d ₽\n%s\n",
		l.Source.Label(), alert.Discount, TruncateTitle(l.Title), l.OldPrice, l.Price, l.ID)
}
