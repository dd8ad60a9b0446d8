package gateway

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lineworks/depotmail/internal/acl"
	"github.com/lineworks/depotmail/internal/command"
	"github.com/lineworks/depotmail/internal/mailbox"
	"github.com/lineworks/depotmail/internal/outbound"
	"github.com/lineworks/depotmail/internal/tempfile"
)

const (
	// messageMaxAge is the cutoff beyond which a poll pass stops scanning.
	// Messages are enumerated newest first, so the first message past the
	// cutoff short-circuits the rest of the pass.
	messageMaxAge = 36 * time.Hour

	defaultPassInterval = time.Minute
	sleepGranularity    = 100 * time.Millisecond

	unknownSenderName = "Unknown sender"
	noSubjectSentinel = "No subject"
	defaultFetchPort  = 993
	defaultSubmitPort = 587
)

// Config carries the credentials and policy for one MailGateway. It is read
// only after Start has validated it; a running gateway never mutates it.
type Config struct {
	Fetch mailbox.Endpoint
	Send  outbound.Endpoint

	AdminContact  string
	InputContact  string
	KillswitchKey string

	Senders      *acl.List
	SenderPolicy acl.Policy
	MimeTypes    *acl.List
	MimePolicy   acl.Policy
}

func (c *Config) validate() error {
	switch {
	case c.Fetch.Username == "":
		return errors.New("fetch username is required")
	case c.Fetch.Password == "":
		return errors.New("fetch password is required")
	case c.Fetch.Host == "":
		return errors.New("fetch host is required")
	case c.Fetch.Port == 0:
		return errors.New("fetch port is required")
	case c.Send.Username == "":
		return errors.New("send username is required")
	case c.Send.Password == "":
		return errors.New("send password is required")
	case c.Send.Host == "":
		return errors.New("send host is required")
	case c.Send.Port == 0:
		return errors.New("send port is required")
	}
	if !acl.ValidPair(c.Senders, c.SenderPolicy) {
		return errors.New("sender allow policy over an empty list denies all traffic")
	}
	if !acl.ValidPair(c.MimeTypes, c.MimePolicy) {
		return errors.New("mime allow policy over an empty list denies all attachments")
	}
	switch {
	case c.AdminContact == "":
		return errors.New("admin contact is required")
	case c.InputContact == "":
		return errors.New("input contact is required")
	case c.KillswitchKey == "":
		return errors.New("killswitch key is required")
	}
	return nil
}

// MailGateway implements Gateway over an opaque mailbox session and an
// outbound sender. Its lifecycle states are Idle, Running and Polling;
// Polling is only reachable while Running.
type MailGateway struct {
	cfg       Config
	callbacks Callbacks
	logger    *slog.Logger

	dialMailbox mailbox.Dialer
	dialSender  outbound.Dialer
	now         func() time.Time

	passInterval time.Duration

	mu       sync.Mutex
	running  bool
	session  mailbox.Session
	sender   outbound.Sender
	id       string
	sendID   string
	polling  atomic.Bool
	pollDone chan struct{}

	lastMu         sync.Mutex
	lastSender     string
	lastSenderName string
}

// Option configures optional MailGateway collaborators.
type Option func(*MailGateway)

func WithCallbacks(cb Callbacks) Option {
	return func(g *MailGateway) { g.callbacks = cb }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *MailGateway) { g.logger = logger }
}

// WithMailboxDialer replaces the IMAP dialer, primarily for tests.
func WithMailboxDialer(d mailbox.Dialer) Option {
	return func(g *MailGateway) { g.dialMailbox = d }
}

// WithSenderDialer replaces the SMTP dialer, primarily for tests.
func WithSenderDialer(d outbound.Dialer) Option {
	return func(g *MailGateway) { g.dialSender = d }
}

// WithClock replaces the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(g *MailGateway) { g.now = now }
}

// WithPassInterval overrides the sleep between poll passes.
func WithPassInterval(d time.Duration) Option {
	return func(g *MailGateway) { g.passInterval = d }
}

// New builds an idle MailGateway. Validation happens at Start.
func New(cfg Config, opts ...Option) *MailGateway {
	if cfg.Fetch.Port == 0 {
		cfg.Fetch.Port = defaultFetchPort
	}
	if cfg.Send.Port == 0 {
		cfg.Send.Port = defaultSubmitPort
	}
	g := &MailGateway{
		cfg:          cfg,
		logger:       slog.Default(),
		dialMailbox:  mailbox.DialIMAP,
		dialSender:   outbound.DialSMTP,
		now:          time.Now,
		passInterval: defaultPassInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetCallbacks installs the event sink. It must be called before Start;
// changing the sink on a running gateway races with the poll loop.
func (g *MailGateway) SetCallbacks(cb Callbacks) {
	g.callbacks = cb
}

func (g *MailGateway) ID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *MailGateway) InputContact() string  { return g.cfg.InputContact }
func (g *MailGateway) AdminContact() string  { return g.cfg.AdminContact }
func (g *MailGateway) KillswitchKey() string { return g.cfg.KillswitchKey }

func (g *MailGateway) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *MailGateway) Polling() bool {
	return g.polling.Load()
}

// Start validates the configuration, then establishes the inbound mailbox
// session and the outbound sender, in that order. An inbound failure aborts
// before the outbound attempt. An outbound failure reports and returns false
// but leaves the inbound session connected; the caller decides whether to
// force a Stop, which releases it.
func (g *MailGateway) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return true
	}

	if err := g.cfg.validate(); err != nil {
		g.logger.Error("gateway configuration rejected", slog.Any("error", err))
		return false
	}

	g.id = fmt.Sprintf("IMAP session (%s:%s)", g.cfg.Fetch.Host, g.cfg.InputContact)
	g.sendID = fmt.Sprintf("SMTP session (%s:%s)", g.cfg.Send.Host, g.cfg.InputContact)

	session, err := g.dialMailbox(g.cfg.Fetch)
	if err != nil {
		g.reportError(g.id + " failed to start: " + err.Error())
		return false
	}
	g.session = session
	g.notify(g.id + " is running")

	sender, err := g.dialSender(g.cfg.Send)
	if err != nil {
		g.reportError(g.sendID + " failed to start: " + err.Error())
		return false
	}
	g.sender = sender
	g.notify(g.sendID + " is running")

	g.running = true
	return true
}

// Stop pauses polling if active and releases every held session. It also
// cleans up after a half-completed Start.
func (g *MailGateway) Stop() {
	g.Pause()

	g.mu.Lock()
	wasRunning := g.running
	session, sender := g.session, g.sender
	g.session, g.sender = nil, nil
	g.running = false
	g.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			g.warn(g.id + " did not close cleanly: " + err.Error())
		}
	}
	if sender != nil {
		if err := sender.Close(); err != nil {
			g.warn(g.sendID + " did not close cleanly: " + err.Error())
		}
	}

	if wasRunning {
		g.notify(g.id + " has stopped running")
		g.notify(g.sendID + " has stopped running")
	}
}

// Pause signals the poll loop to exit at its next check point and blocks
// until it has fully exited.
func (g *MailGateway) Pause() {
	g.mu.Lock()
	if !g.running || !g.polling.Load() {
		g.mu.Unlock()
		return
	}
	done := g.pollDone
	g.polling.Store(false)
	g.mu.Unlock()

	if done != nil {
		<-done
	}
	g.notify(g.id + " is no longer polling for incoming requests")
}

// PollAsync launches the poll loop on a background goroutine. The polling
// slot is claimed before the goroutine starts, so a Pause issued right after
// PollAsync returns already has a loop exit to wait for.
func (g *MailGateway) PollAsync() {
	if !g.claimPolling() {
		return
	}
	go g.pollLoop()
}

// Poll scans the mailbox repeatedly until paused. Any error during one pass
// is reported and the loop continues with the next pass.
func (g *MailGateway) Poll() {
	if !g.claimPolling() {
		return
	}
	g.pollLoop()
}

// claimPolling takes the polling slot. It returns false when the gateway is
// not running or the slot is already held.
func (g *MailGateway) claimPolling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running || g.polling.Load() {
		return false
	}
	g.pollDone = make(chan struct{})
	g.polling.Store(true)
	return true
}

func (g *MailGateway) pollLoop() {
	g.mu.Lock()
	session := g.session
	done := g.pollDone
	g.mu.Unlock()

	defer close(done)

	g.notify(g.id + " is preparing to start polling for incoming requests")

	for g.polling.Load() {
		if err := g.pass(session); err != nil {
			g.reportError(g.id + " encountered an error checking for new mail: " + err.Error())
		}
		g.sleepBetweenPasses()
	}
}

// pass performs one scan of the mailbox, newest message first.
func (g *MailGateway) pass(session mailbox.Session) (err error) {
	folder, err := session.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := folder.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cutoff := g.now().Add(-messageMaxAge)

	for seq := folder.Count(); seq >= 1; seq-- {
		if !g.polling.Load() {
			break
		}

		msg, err := folder.Message(seq)
		if err != nil {
			return err
		}

		// Messages are assumed chronologically ordered by arrival, so the
		// first one past the cutoff ends the pass.
		if msg.Date.Before(cutoff) {
			break
		}

		if !addressedTo(msg.Recipients, g.cfg.InputContact) {
			continue
		}

		sender := strings.TrimSpace(msg.From.Address)
		if sender == "" {
			continue
		}
		senderName := msg.From.Name
		if senderName == "" {
			senderName = unknownSenderName
		}

		subject := msg.Subject
		if strings.TrimSpace(subject) == "" {
			subject = noSubjectSentinel
		}

		g.setLastSender(sender, senderName)

		if !acl.Permitted(sender, g.cfg.Senders, g.cfg.SenderPolicy) {
			g.reportUnauthorized(sender, subject)
			continue
		}

		payload, err := g.stageAttachments(msg)
		if err != nil {
			return err
		}

		cmd := command.Classify(subject)
		if verr := command.ValidatePayload(cmd, len(payload)); verr != nil {
			g.rejectMissingPayload(cmd, sender)
			tempfile.RemoveAll(payload)
			continue
		}

		claimed := g.dispatch(cmd, sender, msg.Text, payload)
		tempfile.RemoveAll(payload)

		if claimed {
			if derr := folder.Delete(seq); derr != nil {
				return derr
			}
		}
	}

	return nil
}

// stageAttachments extracts every attachment the mime policy permits into a
// staging file. On error every file staged so far is deleted.
func (g *MailGateway) stageAttachments(msg *mailbox.Message) ([]*tempfile.File, error) {
	var files []*tempfile.File
	for _, att := range msg.Attachments {
		if !acl.Permitted(att.MediaType, g.cfg.MimeTypes, g.cfg.MimePolicy) {
			continue
		}
		f, err := tempfile.New(bytes.NewReader(att.Data), att.MediaType)
		if err != nil {
			tempfile.RemoveAll(files)
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// dispatch hands one command to the command callback. A panicking callback
// is contained: the error is reported and the message is left unclaimed.
func (g *MailGateway) dispatch(cmd command.Command, sender, text string, payload []*tempfile.File) (claimed bool) {
	cb := g.callbacks.CommandReceived
	if cb == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			g.reportError(fmt.Sprintf("%s command handler failed on '%s' from '%s': %v", g.id, cmd, sender, r))
			claimed = false
		}
	}()
	return cb(g, cmd, sender, text, payload)
}

// rejectMissingPayload notifies the poster and the log that a post command
// arrived without its attachment. The message stays in the mailbox.
func (g *MailGateway) rejectMissingPayload(cmd command.Command, sender string) {
	g.MessageUser(sender,
		fmt.Sprintf("The last '%s' command to the %s dispatcher failed!", cmd, g.cfg.InputContact),
		"There was no payload file attached to this email.\n\nDid you forget to attach the PDF file?")
	g.warn(fmt.Sprintf("The last '%s' command received from '%s' via %s failed because there was no viable payload attached to the email.", cmd, sender, g.id))
}

func (g *MailGateway) sleepBetweenPasses() {
	step := sleepGranularity
	if g.passInterval < step {
		step = g.passInterval
	}
	deadline := time.Now().Add(g.passInterval)
	for g.polling.Load() && time.Now().Before(deadline) {
		time.Sleep(step)
	}
}

// MessageUser sends an outbound notification from the input contact.
// Failures are reported via the error callback, never returned.
func (g *MailGateway) MessageUser(recipient, subject, body string) {
	g.mu.Lock()
	sender := g.sender
	g.mu.Unlock()

	if sender == nil {
		g.reportError(g.sendID + " sending message to '" + recipient + "' failed: outbound session is not connected")
		return
	}
	if err := sender.Send(g.cfg.InputContact, recipient, subject, body); err != nil {
		g.reportError(g.sendID + " sending message to '" + recipient + "' failed: " + err.Error())
	}
}

// MessageAdmin notifies the administrative contact.
func (g *MailGateway) MessageAdmin(subject, body string) {
	g.MessageUser(g.cfg.AdminContact, subject, body)
}

// MessageLastPoster notifies the sender of the most recently processed
// message.
func (g *MailGateway) MessageLastPoster(subject, body string) {
	g.lastMu.Lock()
	recipient := g.lastSender
	g.lastMu.Unlock()
	if recipient == "" {
		return
	}
	g.MessageUser(recipient, subject, body)
}

// LastSender returns the address and display name of the most recently
// processed message's sender.
func (g *MailGateway) LastSender() (address, name string) {
	g.lastMu.Lock()
	defer g.lastMu.Unlock()
	return g.lastSender, g.lastSenderName
}

func (g *MailGateway) setLastSender(address, name string) {
	g.lastMu.Lock()
	g.lastSender = address
	g.lastSenderName = name
	g.lastMu.Unlock()
}

func (g *MailGateway) notify(message string) {
	if g.callbacks.Notification != nil {
		g.callbacks.Notification(g, message)
	}
}

func (g *MailGateway) warn(message string) {
	if g.callbacks.Warning != nil {
		g.callbacks.Warning(g, message)
	}
}

func (g *MailGateway) reportError(message string) {
	if g.callbacks.Error != nil {
		g.callbacks.Error(g, message)
	}
}

func (g *MailGateway) reportUnauthorized(originator, subject string) {
	if g.callbacks.UnauthorizedAccess != nil {
		g.callbacks.UnauthorizedAccess(g, originator, subject)
	}
}

func addressedTo(recipients []string, contact string) bool {
	for _, r := range recipients {
		if strings.EqualFold(r, contact) {
			return true
		}
	}
	return false
}
