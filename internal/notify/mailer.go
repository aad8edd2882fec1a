package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/docsift/mailscan/internal/config"
	gomail "gopkg.in/gomail.v2"
)

// Mailer turns notification jobs into outbound emails. It is the handler the
// notify-worker command plugs into a Consumer.
type Mailer struct {
	cfg config.SMTP
}

// NewMailer creates a mailer using the given SMTP settings.
func NewMailer(cfg config.SMTP) *Mailer {
	return &Mailer{cfg: cfg}
}

// HandleJob composes and sends the email for one notification job.
func (m *Mailer) HandleJob(_ context.Context, job Job) error {
	to, subject, body, err := composeEmail(job)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.cfg.Server, m.cfg.Port, m.cfg.Username, m.cfg.Password)

	if m.cfg.Security == "ssl" {
		dialer.SSL = true
	} else {
		dialer.TLSConfig = &tls.Config{ServerName: m.cfg.Server}
	}

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Info("sent notification mail", "to", to, "type", job.Type)
	return nil
}

// composeEmail maps a job to recipient, subject and body. Unknown job types
// are an error so a queue schema drift shows up in the worker logs.
func composeEmail(job Job) (to, subject, body string, err error) {
	name := job.Data["user_name"]
	if name == "" {
		name = "there"
	}
	kind := job.Data["kind"]

	switch job.Type {
	case TypeUserDoesNotExist:
		to = job.Data["sender"]
		subject = "No account found for your request"
		body = fmt.Sprintf("Hi,\n\nwe received a document request from %s, but no account is registered "+
			"for this address. Please sign up first, then resend your document.\n", to)

	case TypeAddAttachment:
		to = job.Data["user_email"]
		subject = "Your request is missing an attachment"
		body = fmt.Sprintf("Hi %s,\n\nyour %s request did not contain any attachment. "+
			"Please resend your email with the document attached.\n", name, kind)

	case TypeAttachmentLimitExceeded:
		to = job.Data["user_email"]
		subject = "Too many attachments"
		body = fmt.Sprintf("Hi %s,\n\nyour %s request contained more than 4 attachments. "+
			"Please send at most 4 documents per email.\n", name, kind)

	case TypeAttachmentValidation:
		to = job.Data["user_email"]
		subject = "No valid attachments found"
		body = fmt.Sprintf("Hi %s,\n\nnone of the attachments in your %s request could be accepted. "+
			"We support PDF, plain text and Word (docx) documents up to 10 MiB.\n", name, kind)

	case TypeQuickReply:
		to = job.Data["user_email"]
		subject = "We received your request"
		body = fmt.Sprintf("Hi %s,\n\nyour %s request has been received and is being processed. "+
			"You will get another email once the report is ready.\n", name, kind)

	case TypeAnalysisComplete, TypeEvaluationComplete:
		to = job.Data["user_email"]
		subject = fmt.Sprintf("Your %s report is ready", kind)
		body = fmt.Sprintf("Hi %s,\n\nthe report for %q has been completed.\n\nDownload: %s\n",
			name, job.Data["filename"], job.Data["output_path"])

	default:
		return "", "", "", fmt.Errorf("unknown notification type %q", job.Type)
	}

	if to == "" {
		return "", "", "", fmt.Errorf("notification job %s has no recipient", job.ID)
	}

	return to, subject, body, nil
}
