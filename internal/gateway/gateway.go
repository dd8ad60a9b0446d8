// Package gateway implements the mailbox-polling workers that watch for
// operator commands in incoming messages.
package gateway

import (
	"github.com/lineworks/depotmail/internal/command"
	"github.com/lineworks/depotmail/internal/tempfile"
)

// Callbacks is the event sink a gateway reports through. Every callback is
// optional; a nil callback silently drops that event class.
type Callbacks struct {
	// Notification reports notable lifecycle events.
	Notification func(g Gateway, message string)
	// Warning reports recoverable anomalies.
	Warning func(g Gateway, message string)
	// Error reports failures that were contained to one message, pass or
	// session.
	Error func(g Gateway, message string)
	// UnauthorizedAccess reports a sender denied by the access control
	// policy. The message is left in place.
	UnauthorizedAccess func(g Gateway, originator, subject string)
	// CommandReceived delivers one classified command with its payload. The
	// payload files are owned by the receiver only for the duration of the
	// call; the gateway deletes them afterwards regardless of outcome.
	// Returning true claims the message, authorizing its deletion from the
	// source mailbox; returning false leaves it for a future poll.
	CommandReceived func(g Gateway, cmd command.Command, originator, text string, payload []*tempfile.File) bool
}

// Gateway is one mailbox-polling worker bound to one set of credentials and
// access control lists. Callers hold this interface, never a concrete type.
type Gateway interface {
	// ID identifies the gateway in reports; empty until Start succeeds.
	ID() string
	InputContact() string
	AdminContact() string
	KillswitchKey() string

	Running() bool
	Polling() bool

	// Start validates the configuration and establishes the inbound and
	// outbound sessions. It returns false on any failure; each connection
	// failure is reported through the error callback.
	Start() bool
	// Stop pauses polling if active and releases all session resources.
	// It is idempotent.
	Stop()
	// Pause signals the poll loop to exit at its next check point and
	// blocks until it has fully exited. It is idempotent.
	Pause()
	// Poll runs the polling loop on the calling goroutine until paused.
	Poll()
	// PollAsync launches Poll on a background goroutine. It is a no-op when
	// already polling or not running.
	PollAsync()

	// MessageUser sends an outbound notification. Failures are reported via
	// the error callback, never returned.
	MessageUser(recipient, subject, body string)
	MessageAdmin(subject, body string)
	MessageLastPoster(subject, body string)
}
