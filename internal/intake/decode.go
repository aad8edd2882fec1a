// Package intake turns raw mailbox events into admissible analysis requests:
// it searches for request mail, decodes it, validates the sender and the
// attachment set, and hands validated work to the pipeline.
package intake

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"

	"github.com/docsift/mailscan/internal/mailbox"
	"github.com/docsift/mailscan/internal/models"
)

// DecodeMessage parses a fetched message into an Email value. The sender
// address is lower-cased here so all later matching is case-insensitive.
func DecodeMessage(m mailbox.FetchedMessage) (*models.Email, error) {
	entity, err := message.Read(bytes.NewReader(m.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIME message: %w", err)
	}

	email := &models.Email{
		SeqNum: m.SeqNum,
		UID:    m.UID,
		// The server's receipt time; the Date header is sender-controlled.
		ReceivedAt: m.InternalDate,
	}

	if env := m.Envelope; env != nil {
		email.Subject = env.Subject
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = env.Date
		}
		if len(env.From) > 0 && env.From[0] != nil {
			email.FromName = env.From[0].PersonalName
			email.FromAddress = strings.ToLower(env.From[0].Address())
		}
	}

	email.BodyText, email.Attachments = extractContent(entity)

	return email, nil
}

// extractContent walks a MIME entity and pulls out the plain-text body and
// the attachment parts.
func extractContent(entity *message.Entity) (string, []models.Attachment) {
	var text string
	var attachments []models.Attachment

	mediaType, _, _ := entity.Header.ContentType()

	// Single-part message: the body is the content.
	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			slog.Error("failed to read message body", "error", err)
			return "", nil
		}
		if mediaType == "text/plain" {
			text = string(body)
		}
		return text, nil
	}

	mr := entity.MultipartReader()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break // skip faulty parts
		}

		partMediaType, _, _ := part.Header.ContentType()
		disposition, dispParams, _ := part.Header.ContentDisposition()

		data, err := io.ReadAll(part.Body)
		if err != nil {
			slog.Warn("failed to read part body", "error", err)
			continue
		}

		if disposition == "attachment" {
			filename := dispParams["filename"]
			if filename == "" {
				filename = "attachment"
			}

			attachments = append(attachments, models.Attachment{
				Filename:    filename,
				ContentType: partMediaType,
				Size:        len(data),
				Data:        data,
			})
			continue
		}

		if partMediaType == "text/plain" {
			text = string(data)
		}
	}

	return text, attachments
}
