package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docsift/mailscan/internal/config"
	"github.com/docsift/mailscan/internal/directory"
	"github.com/docsift/mailscan/internal/mailbox"
	"github.com/docsift/mailscan/internal/models"
	"github.com/docsift/mailscan/internal/notify"
)

const (
	// maxAttachments is the per-message attachment limit.
	maxAttachments = 4

	// maxAttachmentSize is the per-attachment size limit in bytes (10 MiB).
	maxAttachmentSize = 10 << 20
)

// allowedContentTypes are the document formats the analysis service accepts.
var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Notifier queues one outbound notification job.
type Notifier interface {
	Publish(ctx context.Context, job notify.Job) error
}

// Dispatcher receives a validated attachment set for processing. Dispatch
// must return quickly; processing happens in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, email *models.Email, kind models.Kind, user *models.User, attachments []models.Attachment)
}

// Filter classifies inbound mail as analyze or evaluate requests, resolves
// the sending user and validates the attachment set against business rules.
// A message failing validation is rejected with a specific notification;
// processing continues with the next message.
type Filter struct {
	cfg        config.Intake
	users      directory.Resolver
	notifier   Notifier
	dispatcher Dispatcher
}

// NewFilter wires an intake filter.
func NewFilter(cfg config.Intake, users directory.Resolver, notifier Notifier, dispatcher Dispatcher) *Filter {
	return &Filter{
		cfg:        cfg,
		users:      users,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

// Process runs one intake pass over the open mailbox: search unseen request
// mail per kind, fetch and decode matches, claim them on the server, then
// validate and dispatch. Only transport failures are returned; anything
// message-local is logged and skipped.
func (f *Filter) Process(ctx context.Context, tr mailbox.Transport) error {
	kinds := []struct {
		kind    models.Kind
		subject string
	}{
		{models.KindAnalyze, f.cfg.AnalyzeSubject},
		{models.KindEvaluate, f.cfg.EvaluateSubject},
	}

	for _, kc := range kinds {
		uids, err := tr.SearchUnseenBySubject(kc.subject)
		if err != nil {
			return fmt.Errorf("search %s requests: %w", kc.kind, err)
		}
		if len(uids) == 0 {
			continue
		}

		slog.Info("found request messages", "kind", kc.kind, "count", len(uids))

		msgs, err := tr.FetchFull(uids)
		if err != nil {
			return fmt.Errorf("fetch %s requests: %w", kc.kind, err)
		}

		for _, m := range msgs {
			email, err := DecodeMessage(m)
			if err != nil {
				slog.Error("failed to decode message", "uid", m.UID, "error", err)
				continue
			}

			// Claim the message before processing. A crash from here on
			// loses the request: intake is at most once.
			if err := tr.MarkDeleted(m.UID); err != nil {
				slog.Error("failed to mark message deleted", "uid", m.UID, "error", err)
			}

			f.admit(ctx, email, kc.kind)
		}

		if err := tr.Expunge(); err != nil {
			slog.Warn("failed to expunge claimed messages", "error", err)
		}
	}

	return nil
}

// admit validates one decoded request and either rejects it with a
// notification or hands its validated attachments to the pipeline.
func (f *Filter) admit(ctx context.Context, email *models.Email, kind models.Kind) {
	log := slog.With("kind", kind, "from", email.FromAddress, "uid", email.UID)

	user, err := f.users.ResolveByEmail(ctx, email.FromAddress)
	if errors.Is(err, directory.ErrUserNotFound) {
		log.Info("rejecting request from unknown sender")
		f.publish(ctx, notify.Job{
			Type: notify.TypeUserDoesNotExist,
			Data: map[string]string{"sender": email.FromAddress, "kind": string(kind)},
		})
		return
	}
	if err != nil {
		log.Error("failed to resolve sender", "error", err)
		return
	}

	userData := func() map[string]string {
		return map[string]string{
			"user_name":  user.Name,
			"user_email": user.Email,
			"kind":       string(kind),
		}
	}

	if len(email.Attachments) == 0 {
		log.Info("rejecting request without attachments")
		f.publish(ctx, notify.Job{Type: notify.TypeAddAttachment, Data: userData()})
		return
	}

	if len(email.Attachments) > maxAttachments {
		log.Info("rejecting request with too many attachments", "count", len(email.Attachments))
		f.publish(ctx, notify.Job{Type: notify.TypeAttachmentLimitExceeded, Data: userData()})
		return
	}

	valid := validAttachments(email.Attachments)
	if len(valid) == 0 {
		log.Info("rejecting request, no attachment passed validation", "count", len(email.Attachments))
		f.publish(ctx, notify.Job{Type: notify.TypeAttachmentValidation, Data: userData()})
		return
	}

	// Acknowledge first so the user hears back even if processing is slow.
	f.publish(ctx, notify.Job{Type: notify.TypeQuickReply, Data: userData()})

	log.Info("admitting request", "attachments", len(valid), "user_id", user.ID)
	f.dispatcher.Dispatch(ctx, email, kind, user, valid)
}

// validAttachments keeps attachments under the size limit with an accepted
// content type.
func validAttachments(attachments []models.Attachment) []models.Attachment {
	var valid []models.Attachment
	for _, att := range attachments {
		if att.Size < maxAttachmentSize && allowedContentTypes[att.ContentType] {
			valid = append(valid, att)
		}
	}
	return valid
}

func (f *Filter) publish(ctx context.Context, job notify.Job) {
	if err := f.notifier.Publish(ctx, job); err != nil {
		slog.Error("failed to queue notification", "type", job.Type, "error", err)
	}
}
