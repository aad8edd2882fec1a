package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/docsift/mailscan/internal/ops"
)

// Handler is invoked with a live transport whenever the mailbox may contain
// new messages: once after every (re)connect and on each new-mail update.
type Handler func(ctx context.Context, tr Transport) error

// Config wires a Supervisor.
type Config struct {
	Dial    DialFunc
	Mailbox string
	Signal  ops.Signal
	Handler Handler

	// RetryBase scales the reconnect backoff. Zero means 10 seconds.
	RetryBase time.Duration
}

// Supervisor keeps exactly one live, authenticated connection to the mailbox
// open and restarts the watch loop transparently on disconnection. It is the
// sole owner of the connection and of the lifecycle state.
type Supervisor struct {
	dial      DialFunc
	mailbox   string
	signal    ops.Signal
	handler   Handler
	retryBase time.Duration

	mu    sync.Mutex
	state State
	opens int
}

// NewSupervisor builds a supervisor from the config.
func NewSupervisor(cfg Config) *Supervisor {
	retryBase := cfg.RetryBase
	if retryBase == 0 {
		retryBase = 10 * time.Second
	}
	return &Supervisor{
		dial:      cfg.Dial,
		mailbox:   cfg.Mailbox,
		signal:    cfg.Signal,
		handler:   cfg.Handler,
		retryBase: retryBase,
		state:     StateDisconnected,
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	old := s.state
	s.state = st
	s.mu.Unlock()

	if old != st {
		slog.Debug("mailbox connection state changed", "from", old.String(), "to", st.String())
	}
}

// Run drives the connection until the context is cancelled. Connection
// faults are reported to the operations signal and retried with backoff;
// a clean remote end triggers an immediate reconnect.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return nil
		default:
		}

		attempt++
		s.setState(StateConnecting)
		slog.Info("connecting to IMAP server", "attempt", attempt)

		tr, err := s.dial()
		if err != nil {
			s.fault(ctx, fmt.Sprintf("mailbox connect failed: %v", err))
			if !s.sleep(ctx, attempt) {
				return nil
			}
			continue
		}

		s.setState(StateReady)

		if _, err := tr.Select(s.mailbox, false); err != nil {
			_ = tr.Logout()
			s.fault(ctx, fmt.Sprintf("failed to open mailbox %s: %v", s.mailbox, err))
			if !s.sleep(ctx, attempt) {
				return nil
			}
			continue
		}

		s.setState(StateMailboxOpen)
		attempt = 0

		s.mu.Lock()
		s.opens++
		opens := s.opens
		s.mu.Unlock()

		// Notice on every open so operators can detect flapping.
		s.signal.Notify(ctx, fmt.Sprintf("mailbox %s open, listening for requests (connection #%d)", s.mailbox, opens))
		slog.Info("mailbox open", "mailbox", s.mailbox, "connection", opens)

		cancelled, werr := s.watch(ctx, tr)
		if cancelled {
			return nil
		}

		// Connection ended; re-enter connect immediately. An error counts
		// as a fault, a clean server end does not.
		_ = tr.Logout()
		if werr != nil {
			s.fault(ctx, fmt.Sprintf("mailbox %s connection lost: %v, reconnecting", s.mailbox, werr))
		} else {
			s.setState(StateDisconnected)
			s.signal.Notify(ctx, fmt.Sprintf("mailbox %s connection lost, reconnecting", s.mailbox))
		}
	}
}

// watch runs the idle/process loop on one live connection. It reports
// whether the context was cancelled; otherwise the connection died and the
// caller should reconnect, with err carrying the transport fault if any.
func (s *Supervisor) watch(ctx context.Context, tr Transport) (cancelled bool, err error) {
	// Catch messages that arrived while we were away. New mail landing
	// mid-pass triggers another pass before IDLE starts.
	for s.runHandler(ctx, tr, "initial check") {
	}

	updates := tr.Updates()

	idleStop := make(chan struct{})
	idleDone := make(chan error, 1)
	go func() { idleDone <- tr.Idle(idleStop) }()

	for {
		select {
		case <-ctx.Done():
			close(idleStop)
			<-idleDone
			_ = tr.Logout()
			slog.Info("mailbox watch cancelled")
			return true, nil

		case err := <-idleDone:
			// We did not ask IDLE to stop: the server hung up or the
			// connection faulted.
			if err != nil {
				slog.Error("mailbox connection dropped", "error", err)
				return false, err
			}
			slog.Info("mailbox connection ended by server")
			return false, nil

		case update := <-updates:
			mbu, ok := update.(*client.MailboxUpdate)
			if !ok {
				continue
			}
			slog.Info("new mail detected", "exists", mbu.Mailbox.Messages, "recent", mbu.Mailbox.Recent)

			// Suspend IDLE while the handler issues commands on the
			// same connection.
			close(idleStop)
			if err := <-idleDone; err != nil {
				slog.Error("failed to stop IDLE", "error", err)
				return false, err
			}

			for s.runHandler(ctx, tr, "new mail") {
			}

			idleStop = make(chan struct{})
			go func(stop <-chan struct{}) { idleDone <- tr.Idle(stop) }(idleStop)
		}
	}
}

// runHandler runs the handler while keeping the updates channel drained.
// The server keeps pushing unilateral responses while the handler issues
// commands, and the client's reader goroutine blocks once the channel
// buffer fills, which would wedge the in-flight command for good. Reports
// whether new mail arrived while the handler was running, so the caller
// can run another pass before going back to IDLE.
func (s *Supervisor) runHandler(ctx context.Context, tr Transport, reason string) bool {
	updates := tr.Updates()
	stop := make(chan struct{})
	sawMail := make(chan bool, 1)
	go func() {
		newMail := false
		for {
			select {
			case update := <-updates:
				if _, ok := update.(*client.MailboxUpdate); ok {
					newMail = true
				}
			case <-stop:
				sawMail <- newMail
				return
			}
		}
	}()

	if err := s.handler(ctx, tr); err != nil {
		slog.Error("error processing messages", "context", reason, "error", err)
	}

	close(stop)
	return <-sawMail
}

// fault records a Faulted transition and alerts operations.
func (s *Supervisor) fault(ctx context.Context, msg string) {
	s.setState(StateFaulted)
	slog.Error("mailbox connection faulted", "detail", msg)
	s.signal.Notify(ctx, msg)
}

// sleep waits out the reconnect backoff. It returns false when the context
// was cancelled while waiting.
func (s *Supervisor) sleep(ctx context.Context, attempt int) bool {
	if attempt > 6 {
		attempt = 6
	}
	delay := time.Duration(attempt) * s.retryBase

	slog.Info("retrying connection after delay", "delay", delay)

	select {
	case <-ctx.Done():
		s.setState(StateDisconnected)
		return false
	case <-time.After(delay):
		return true
	}
}
