// internal/notify/email.go
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	maxMailedErrors = 5
	timestampLayout = "2006-01-02 15:04:05"
	screenshotName  = "screenshot.png"
)

// mailView is the data both templates render from.
type mailView struct {
	Company      string
	Position     string
	JobURL       string
	FieldsFilled int
	TotalFields  int
	Headline     string
	Errors       []string
	At           string
}

// EmailNotifier sends one message per run over SMTP with mandatory STARTTLS.
type EmailNotifier struct {
	from             string
	to               string
	attachScreenshot bool
	logger           *zap.Logger
	sanitizer        *bluemonday.Policy

	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmailNotifier(cfg config.NotifyConfig, logger *zap.Logger) (*EmailNotifier, error) {
	smtp := cfg.SMTP
	if err := smtp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp configuration: %w", err)
	}

	client, err := mail.NewClient(smtp.Host,
		mail.WithPort(smtp.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(smtp.Username),
		mail.WithPassword(smtp.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &EmailNotifier{
		from:             smtp.Username,
		to:               smtp.RecipientOrSender(),
		attachScreenshot: cfg.AttachScreenshot,
		logger:           logger.Named("notify.email"),
		sanitizer:        bluemonday.StrictPolicy(),
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (e *EmailNotifier) Send(ctx context.Context, event schemas.ApplicationEvent) error {
	msg, err := e.compose(event)
	if err != nil {
		return err
	}
	if err := e.send(ctx, msg); err != nil {
		return fmt.Errorf("send notification email: %w", err)
	}
	e.logger.Info("Notification email sent.", zap.String("to", e.to), zap.Bool("success", event.Report.Success))
	return nil
}

// Subject returns the mail subject for a report.
func Subject(event schemas.ApplicationEvent) string {
	if event.Report.Success {
		return "✅ Job Application Submitted Successfully - " + event.Job.Company
	}
	return "❌ Job Application Failed - " + event.Job.Company
}

func (e *EmailNotifier) compose(event schemas.ApplicationEvent) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.EncodingB64))
	if err := msg.From(e.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(e.to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(Subject(event))
	msg.SetDate()

	view := e.view(event)
	if event.Report.Success {
		if err := msg.SetBodyTextTemplate(successTextTmpl, view); err != nil {
			return nil, fmt.Errorf("render text body: %w", err)
		}
		if err := msg.AddAlternativeHTMLTemplate(successHTMLTmpl, view); err != nil {
			return nil, fmt.Errorf("render html body: %w", err)
		}
	} else {
		if err := msg.SetBodyTextTemplate(failureTextTmpl, view); err != nil {
			return nil, fmt.Errorf("render text body: %w", err)
		}
		if err := msg.AddAlternativeHTMLTemplate(failureHTMLTmpl, view); err != nil {
			return nil, fmt.Errorf("render html body: %w", err)
		}
	}

	if e.attachScreenshot && len(event.Screenshot) > 0 {
		if err := msg.AttachReader(screenshotName, bytes.NewReader(event.Screenshot),
			mail.WithFileContentType(mail.ContentType("image/png"))); err != nil {
			return nil, fmt.Errorf("attach screenshot: %w", err)
		}
	}
	return msg, nil
}

// view strips markup from page-sourced strings before they reach either body.
func (e *EmailNotifier) view(event schemas.ApplicationEvent) mailView {
	r := event.Report
	v := mailView{
		Company:      e.clean(event.Job.Company),
		Position:     e.clean(event.Job.Position),
		JobURL:       event.JobURL,
		FieldsFilled: r.FieldsFilled,
		TotalFields:  r.TotalFields,
		At:           event.OccurredAt.Format(timestampLayout),
	}
	if r.Success {
		return v
	}

	errs := r.Errors
	if len(errs) > maxMailedErrors {
		errs = errs[:maxMailedErrors]
	}
	for _, msg := range errs {
		if msg = e.clean(msg); msg != "" {
			v.Errors = append(v.Errors, msg)
		}
	}
	v.Headline = "Unknown error"
	if len(v.Errors) > 0 {
		v.Headline = v.Errors[0]
	}
	return v
}

// clean drops tags and returns plain text; the templates do their own escaping.
func (e *EmailNotifier) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(e.sanitizer.Sanitize(s)))
}
