package notifier

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sjsage522/discountworker/internal/crawler"
	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/pkg/errors"
)

// MaxTitleLength is the longest title shown in an alert, in characters
const MaxTitleLength = 100

// Alert is one formatted notification for a qualifying listing
type Alert struct {
	Listing  crawler.Listing
	Discount int
	Text     string
	SentAt   time.Time
}

// Transport delivers alerts to one destination
type Transport interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// PauseFunc waits for d or until ctx is done
type PauseFunc func(ctx context.Context, d time.Duration) error

// Notifier formats alerts and fans them out to every transport
type Notifier struct {
	transports []Transport
	delay      time.Duration
	pause      PauseFunc
	now        func() time.Time
	log        *logger.Logger
}

// New creates a notifier that waits delay after each alert
func New(delay time.Duration, transports ...Transport) *Notifier {
	return &Notifier{
		transports: transports,
		delay:      delay,
		pause:      sleepContext,
		now:        time.Now,
		log:        logger.ForNotifier(),
	}
}

// WithLogger replaces the notifier logger
func (n *Notifier) WithLogger(l *logger.Logger) *Notifier {
	n.log = l
	return n
}

// WithPause replaces the pacing wait, e.g. with a test clock
func (n *Notifier) WithPause(pause PauseFunc) *Notifier {
	n.pause = pause
	return n
}

// Transports returns the configured transport names
func (n *Notifier) Transports() []string {
	names := make([]string, len(n.transports))
	for i, t := range n.transports {
		names[i] = t.Name()
	}
	return names
}

// Notify sends l through every transport. Delivery failures are logged and
// never returned: the caller records the listing either way.
func (n *Notifier) Notify(ctx context.Context, l crawler.Listing) {
	alert := Alert{
		Listing:  l,
		Discount: l.Discount(),
		Text:     FormatAlert(l),
		SentAt:   n.now(),
	}

	event := n.log.Info().
		Str("source", string(l.Source)).
		Str("id", l.ID).
		Int("discount", alert.Discount).
		Int("price", l.Price)
	if len(n.transports) == 0 {
		// The log is the only copy of the message
		event = event.Str("text", alert.Text)
	}
	event.Msg("Alert")

	if len(n.transports) > 0 {
		n.log.Debug().Str("id", l.ID).Str("text", alert.Text).Msg("Alert text")
	}

	for _, t := range n.transports {
		if err := t.Send(ctx, alert); err != nil {
			n.log.Error().
				Err(errors.NewTransport(t.Name(), "delivery failed", err)).
				Str("id", l.ID).
				Msg("Failed to deliver alert")
		}
	}

	if n.delay > 0 {
		// Cancellation only shortens the pause
		_ = n.pause(ctx, n.delay)
	}
}

// FormatAlert renders the HTML message for l
func FormatAlert(l crawler.Listing) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s <b>%s | -%d%%</b>\n\n", l.Source.Icon(), l.Source.Label(), l.Discount())
	fmt.Fprintf(&b, "📦 <b>%s</b>\n", html.EscapeString(TruncateTitle(l.Title)))
	b.WriteString(ratingLine(l))
	b.WriteString("\n")
	fmt.Fprintf(&b, "❌ %d ₽\n", l.OldPrice)
	fmt.Fprintf(&b, "✅ <b>%d ₽</b>\n", l.Price)
	fmt.Fprintf(&b, "🔗 <a href='%s'>КУПИТЬ</a>", html.EscapeString(l.ID))

	return b.String()
}

// TruncateTitle shortens title to MaxTitleLength characters plus "..."
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxTitleLength]) + "..."
}

func ratingLine(l crawler.Listing) string {
	if l.Rating == nil || *l.Rating == 0 {
		return "🆕 new"
	}

	line := "⭐ " + strconv.FormatFloat(*l.Rating, 'f', 1, 64)
	if l.Reviews != nil && *l.Reviews > 0 {
		line += fmt.Sprintf(" (%d)", *l.Reviews)
	}
	return line
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
