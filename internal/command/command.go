// Package command classifies operator instructions carried by message
// subjects and enforces their payload requirements.
package command

import (
	"strings"

	"github.com/pkg/errors"
)

// Command is the instruction derived from one message.
type Command int

const (
	// None means no command has been issued, or the last one was processed.
	None Command = iota
	// ImplicitPost is a posted payload with no explicit command keyword.
	ImplicitPost
	// ExplicitPost is a payload posted with the 'post' keyword.
	ExplicitPost
	// Repost replaces the last posted payload with the attached one.
	Repost
	// Remove undoes the result of the last post.
	Remove
	// KillswitchPending means a killswitch was requested and must be issued
	// once cleanup and notifications are done.
	KillswitchPending
	// Killswitch terminates the gateway's polling for this session.
	Killswitch
	// Subscribe adds the originator to the notification audience.
	Subscribe
	// Unsubscribe removes the originator from the notification audience.
	Unsubscribe
)

func (c Command) String() string {
	switch c {
	case ImplicitPost, ExplicitPost:
		return "post"
	case Repost:
		return "re-post"
	case Remove:
		return "remove"
	case Killswitch, KillswitchPending:
		return "killswitch"
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	}
	return ""
}

// Classify maps a message subject to a Command. The match is a
// case-insensitive comparison of the whole subject against the keyword set;
// anything unrecognized is an implicit post. Classify is total: it always
// returns a Command.
func Classify(subject string) Command {
	switch strings.ToLower(strings.TrimSpace(subject)) {
	case "post":
		return ExplicitPost
	case "repost", "re-post":
		return Repost
	case "delete", "remove":
		return Remove
	case "killswitch":
		return Killswitch
	}
	return ImplicitPost
}

// ErrMissingPayload reports a post command that arrived without the
// attachment it requires.
var ErrMissingPayload = errors.New("no viable payload attached")

// RequiresPayload reports whether cmd must arrive with at least one staged
// attachment.
func RequiresPayload(cmd Command) bool {
	return cmd == ExplicitPost || cmd == Repost
}

// ValidatePayload checks the payload-presence rule: only ExplicitPost and
// Repost require a non-zero attachment count, every other command passes
// unconditionally.
func ValidatePayload(cmd Command, attachments int) error {
	if RequiresPayload(cmd) && attachments == 0 {
		return ErrMissingPayload
	}
	return nil
}
