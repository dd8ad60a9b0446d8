// Package dispatch connects gateway events to their depot: it records them
// in the depot log and acts on the commands the gateways deliver.
package dispatch

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lineworks/depotmail/internal/command"
	"github.com/lineworks/depotmail/internal/depot"
	"github.com/lineworks/depotmail/internal/gateway"
	"github.com/lineworks/depotmail/internal/tempfile"
)

// Handler reacts to the events of every gateway belonging to one depot.
type Handler struct {
	depot    *depot.Depot
	spoolDir string
	logger   *slog.Logger
}

// NewHandler builds a handler for one depot. spoolDir may be empty, in
// which case post payloads are not persisted and their messages are left in
// the mailbox.
func NewHandler(d *depot.Depot, spoolDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{depot: d, spoolDir: spoolDir, logger: logger}
}

// Callbacks returns the event sink to install on the depot's gateways.
func (h *Handler) Callbacks() gateway.Callbacks {
	return gateway.Callbacks{
		Notification:       h.onNotification,
		Warning:            h.onWarning,
		Error:              h.onError,
		UnauthorizedAccess: h.onUnauthorizedAccess,
		CommandReceived:    h.onCommand,
	}
}

func (h *Handler) onNotification(_ gateway.Gateway, message string) {
	h.depot.AppendLogMessage(message)
}

func (h *Handler) onWarning(_ gateway.Gateway, message string) {
	h.depot.AppendLogMessage(message)
	h.logger.Warn(message, slog.String("depot", h.depot.Name()))
}

func (h *Handler) onError(_ gateway.Gateway, message string) {
	h.depot.AppendLogMessage(message)
	h.logger.Error(message, slog.String("depot", h.depot.Name()))
}

func (h *Handler) onUnauthorizedAccess(g gateway.Gateway, originator, subject string) {
	h.depot.AppendLogMessage(fmt.Sprintf(
		"Unauthorised interaction detected and blocked from '%s' in %s", originator, g.ID()))
	h.logger.Warn("unauthorised interaction blocked",
		slog.String("depot", h.depot.Name()),
		slog.String("originator", originator),
		slog.String("subject", subject),
	)
}

func (h *Handler) onCommand(g gateway.Gateway, cmd command.Command, originator, text string, payload []*tempfile.File) bool {
	h.depot.AppendLogMessage(fmt.Sprintf(
		"Command '%s' received from '%s' via %s", cmd, originator, g.ID()))

	switch cmd {
	case command.Killswitch, command.KillswitchPending:
		return h.handleKillswitch(g, originator, text)
	case command.ImplicitPost, command.ExplicitPost, command.Repost:
		return h.handlePost(g, cmd, originator, payload)
	case command.Remove:
		// Removal is resolved against the posted archive, which lives with
		// a downstream consumer. Leave the message for it.
		return false
	default:
		return false
	}
}

// handleKillswitch verifies the key carried in the first line of the message
// body. A match shuts the whole depot down; a mismatch alerts the
// administrator. Either way the message is claimed so the attempt is not
// replayed on the next pass.
func (h *Handler) handleKillswitch(g gateway.Gateway, originator, text string) bool {
	key, _, _ := strings.Cut(text, "\n")
	if strings.TrimSpace(key) != g.KillswitchKey() {
		h.depot.AppendLogMessage(fmt.Sprintf(
			"Killswitch attempt with a bad key from '%s' via %s", originator, g.ID()))
		g.MessageAdmin(
			fmt.Sprintf("Killswitch attempt rejected on the %s dispatcher", g.InputContact()),
			fmt.Sprintf("A killswitch command from '%s' carried an incorrect key and was ignored.", originator))
		return true
	}

	h.depot.AppendLogMessage(fmt.Sprintf(
		"Killswitch engaged by '%s' via %s", originator, g.ID()))
	// The gateway is inside its own poll loop here; stopping the depot
	// synchronously would deadlock on the loop's exit.
	h.depot.StopGatewaysAsync()
	return true
}

// handlePost moves the staged payload files into the depot spool. Without a
// spool directory the message stays in the mailbox for a capable consumer.
func (h *Handler) handlePost(g gateway.Gateway, cmd command.Command, originator string, payload []*tempfile.File) bool {
	if h.spoolDir == "" {
		return false
	}
	if err := os.MkdirAll(h.spoolDir, 0o750); err != nil {
		h.onError(g, fmt.Sprintf("%s could not prepare the spool directory: %v", g.ID(), err))
		return false
	}

	for _, f := range payload {
		dest := filepath.Join(h.spoolDir, uuid.NewString()+extensionFor(f.MediaType()))
		if err := f.MoveTo(dest); err != nil {
			h.onError(g, fmt.Sprintf("%s could not spool a payload file: %v", g.ID(), err))
			return false
		}
		h.depot.AppendLogMessage(fmt.Sprintf(
			"Payload from '%s' ('%s') spooled as %s", originator, cmd, filepath.Base(dest)))
	}
	return true
}

func extensionFor(mediaType string) string {
	if mediaType == "application/pdf" {
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
