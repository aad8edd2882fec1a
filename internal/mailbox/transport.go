// Package mailbox owns the IMAP connection: dialing, the lifecycle state
// machine, and the watch loop that hands new-mail events to intake.
package mailbox

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/textproto"
	"time"

	"github.com/emersion/go-imap"
	idle "github.com/emersion/go-imap-idle"
	"github.com/emersion/go-imap/client"

	"github.com/docsift/mailscan/internal/config"
)

// FetchedMessage is one fully fetched message: envelope plus the raw
// RFC 822 body, ready for MIME decoding. InternalDate is the server's
// receipt time, as opposed to the sender-controlled Date header.
type FetchedMessage struct {
	UID          uint32
	SeqNum       uint32
	Envelope     *imap.Envelope
	InternalDate time.Time
	Body         []byte
}

// Transport is the slice of the IMAP protocol this service uses. The
// Supervisor drives Select/Idle/Logout; intake drives search, fetch and
// deletion. Abstracted so the state machine is testable without sockets.
type Transport interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	SearchUnseenBySubject(subject string) ([]uint32, error)
	FetchFull(uids []uint32) ([]FetchedMessage, error)
	MarkDeleted(uid uint32) error
	Expunge() error

	// Idle blocks watching for server updates until stop is closed or the
	// connection fails. Updates arrive on the Updates channel.
	Idle(stop <-chan struct{}) error
	Updates() <-chan client.Update
	Logout() error
}

// DialFunc opens a fresh authenticated Transport.
type DialFunc func() (Transport, error)

// imapTransport implements Transport over an emersion go-imap client.
type imapTransport struct {
	c       *client.Client
	idle    *idle.Client
	updates chan client.Update
}

// Dial connects over TLS, authenticates and returns the transport. The
// mailbox itself is selected later by the supervisor.
func Dial(cfg config.IMAP) (Transport, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Server}

	c, err := client.DialTLS(cfg.Addr(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	// Buffered so the server can push unilateral updates while a command
	// or message processing is in flight.
	updates := make(chan client.Update, 64)
	c.Updates = updates

	return &imapTransport{
		c:       c,
		idle:    idle.NewClient(c),
		updates: updates,
	}, nil
}

func (t *imapTransport) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	status, err := t.c.Select(name, readOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", name, err)
	}
	return status, nil
}

// SearchUnseenBySubject finds unseen messages whose Subject header equals
// the given constant.
func (t *imapTransport) SearchUnseenBySubject(subject string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header = textproto.MIMEHeader{}
	criteria.Header.Add("Subject", subject)

	uids, err := t.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

// FetchFull retrieves envelope and full body for each UID.
func (t *imapTransport) FetchFull(uids []uint32) ([]FetchedMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	if err := t.c.UidFetch(seqset, items, messages); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	results := make([]FetchedMessage, 0, len(uids))
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		body, err := io.ReadAll(literal)
		if err != nil {
			continue
		}
		results = append(results, FetchedMessage{
			UID:          msg.Uid,
			SeqNum:       msg.SeqNum,
			Envelope:     msg.Envelope,
			InternalDate: msg.InternalDate,
			Body:         body,
		})
	}

	return results, nil
}

// MarkDeleted flags the message for deletion on the server. The message is
// not removed until Expunge runs.
func (t *imapTransport) MarkDeleted(uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true) // true = silent update
	flags := []any{imap.DeletedFlag}

	if err := t.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d as \\Deleted: %w", uid, err)
	}
	return nil
}

// Expunge removes messages flagged \Deleted. The untagged EXPUNGE responses
// are diverted into a drained channel: routed through the shared updates
// channel they would wedge the client's reader goroutine on a large pass,
// since nothing reads updates while a command is in flight.
func (t *imapTransport) Expunge() error {
	expunged := make(chan uint32, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range expunged {
		}
	}()

	err := t.c.Expunge(expunged)
	<-drained
	if err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// Idle watches for updates, polling as a fallback on servers without IDLE.
func (t *imapTransport) Idle(stop <-chan struct{}) error {
	return t.idle.IdleWithFallback(stop, time.Minute)
}

func (t *imapTransport) Updates() <-chan client.Update {
	return t.updates
}

func (t *imapTransport) Logout() error {
	return t.c.Logout()
}
