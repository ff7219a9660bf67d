// Package notify mails the delta report of a run to a list of recipients.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"comebackwatch/internal/model"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Options struct {
	Smtp       SmtpConfig `json:"smtp"`
	Recipients []string   `json:"recipients"`
}

// Enabled reports whether there is somewhere to send mail to.
func (o Options) Enabled() bool {
	return o.Smtp.Server != "" && len(o.Recipients) > 0
}

type Mailer struct {
	config Options
}

func NewMailer(options Options) Mailer {
	return Mailer{config: options}
}

func describe(e *model.Event) string {
	if e == nil {
		return "-"
	}
	when := e.Date
	if e.Undated() {
		when = "TBA"
	}
	if e.Time != "" {
		when += " " + e.Time
	}
	return fmt.Sprintf("%s %s (%s)", when, e.Kind, e.RawText)
}

// Compose renders the delta as a plain text mail.
func (m Mailer) Compose(delta model.Delta, names map[string]string) *email.Email {
	counts := delta.Counts()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Comeback Watch <%s>", m.config.Smtp.EmailAddress)
	mail.To = m.config.Recipients
	mail.Subject = fmt.Sprintf(
		"Comeback schedule: %d added, %d updated, %d removed",
		counts.EventsAdded, counts.EventsUpdated, counts.EventsRemoved,
	)

	var body strings.Builder
	fmt.Fprintf(&body, "Commit %s (previous %s)\n\n", delta.Commit, delta.PreviousCommit)
	for _, change := range delta.EventChanges {
		subject := change.After
		if subject == nil {
			subject = change.Before
		}
		name := names[subject.EntityKey]
		if name == "" {
			name = subject.EntityKey
		}

		switch {
		case change.Before == nil:
			fmt.Fprintf(&body, "+ %s: %s\n", name, describe(change.After))
		case change.After == nil:
			fmt.Fprintf(&body, "- %s: %s\n", name, describe(change.Before))
		default:
			fmt.Fprintf(&body, "~ %s: %s -> %s\n", name, describe(change.Before), describe(change.After))
		}
	}
	fmt.Fprintf(
		&body, "\nEntities: %d added, %d updated, %d removed\n",
		counts.EntitiesAdded, counts.EntitiesUpdated, counts.EntitiesRemoved,
	)
	mail.Text = []byte(body.String())
	return mail
}

// Send mails the delta, servers without AUTH are retried without
// credentials.
func (m Mailer) Send(ctx context.Context, delta model.Delta, names map[string]string) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := m.Compose(delta, names)
	addr := fmt.Sprintf("%s:%d", m.config.Smtp.Server, m.config.Smtp.Port)

	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.Smtp.EmailAddress, m.config.Smtp.Password, m.config.Smtp.Server),
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
