// Package depot groups the gateways serving one physical line into a single
// orchestrated unit with an all-or-nothing lifecycle.
package depot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lineworks/depotmail/internal/gateway"
)

// State describes where a depot is in its lifecycle.
type State int

const (
	// InvalidConfiguration marks a depot built without any usable gateway.
	// The state is terminal; every lifecycle operation on such a depot is a
	// no-op.
	InvalidConfiguration State = iota
	Stopped
	Starting
	Started
	Stopping
	// NetworkIssue is reserved for a depot-level connectivity verdict.
	// Gateways currently report connectivity failures through their error
	// callbacks instead, so nothing assigns it yet.
	NetworkIssue
)

func (s State) String() string {
	switch s {
	case InvalidConfiguration:
		return "invalid configuration"
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case NetworkIssue:
		return "network issue"
	default:
		return "unknown"
	}
}

const logTimestampFormat = "2006-01-02 15:04:05"

// Depot owns the gateways of one line. Lifecycle transitions are serialized:
// a stop requested while an asynchronous start is in flight waits for the
// start to finish before it runs.
type Depot struct {
	company            string
	name               string
	organisationalUnit string
	line               string

	gateways []gateway.Gateway
	logger   *slog.Logger
	now      func() time.Time

	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	log     []string
	logSink func(string)
}

// Option configures optional Depot collaborators.
type Option func(*Depot)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Depot) { d.logger = logger }
}

// WithClock replaces the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Depot) { d.now = now }
}

// New builds a depot over the given gateways. A depot without gateways is
// permanently invalid.
func New(company, name, organisationalUnit, line string, gateways []gateway.Gateway, opts ...Option) *Depot {
	d := &Depot{
		company:            company,
		name:               name,
		organisationalUnit: organisationalUnit,
		line:               line,
		gateways:           gateways,
		logger:             slog.Default(),
		now:                time.Now,
		state:              Stopped,
	}
	if len(gateways) == 0 {
		d.state = InvalidConfiguration
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Depot) Company() string            { return d.company }
func (d *Depot) Name() string               { return d.name }
func (d *Depot) OrganisationalUnit() string { return d.organisationalUnit }
func (d *Depot) Line() string               { return d.line }

func (d *Depot) Gateways() []gateway.Gateway { return d.gateways }

func (d *Depot) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Polling reports whether any of the depot's gateways is polling.
func (d *Depot) Polling() bool {
	for _, g := range d.gateways {
		if g.Polling() {
			return true
		}
	}
	return false
}

// StartGateways brings up every gateway, all or nothing. If any gateway
// fails to start, those already up are torn down and the depot returns to
// Stopped.
func (d *Depot) StartGateways() bool {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.State() != Stopped {
		return d.State() == Started
	}
	d.setState(Starting)

	for i, g := range d.gateways {
		if g.Start() {
			continue
		}
		for _, started := range d.gateways[:i] {
			started.Pause()
			started.Stop()
		}
		g.Stop()
		d.setState(Stopped)
		d.AppendLogMessage("Server failed to start")
		return false
	}

	d.setState(Started)
	d.AppendLogMessage("Server started")
	return true
}

// StartGatewaysAsync runs StartGateways on a background goroutine.
func (d *Depot) StartGatewaysAsync() {
	go d.StartGateways()
}

// StopGateways pauses polling and releases every gateway. It waits for any
// in-flight start or stop before running.
func (d *Depot) StopGateways() {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.State() != Started {
		return
	}
	d.setState(Stopping)

	for _, g := range d.gateways {
		g.Pause()
		g.Stop()
	}

	d.setState(Stopped)
	d.AppendLogMessage("Server stopped")
}

// StopGatewaysAsync runs StopGateways on a background goroutine.
func (d *Depot) StopGatewaysAsync() {
	go d.StopGateways()
}

// StartPollingAsync sets every gateway polling. The depot must be Started;
// a start or stop still in flight completes first.
func (d *Depot) StartPollingAsync() {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.State() != Started {
		return
	}
	for _, g := range d.gateways {
		g.PollAsync()
	}
	d.AppendLogMessage("Polling for telemetry")
}

// StopPolling pauses every polling gateway and blocks until each loop has
// exited. The gateways stay connected. A start or stop still in flight
// completes first.
func (d *Depot) StopPolling() {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	wasPolling := d.Polling()
	for _, g := range d.gateways {
		g.Pause()
	}
	if wasPolling {
		d.AppendLogMessage("Polling concluded")
	}
}

// AppendLogMessage records a timestamped line in the depot's message log and
// forwards it to the claimed sink, if any.
func (d *Depot) AppendLogMessage(message string) {
	line := d.now().Format(logTimestampFormat) + " " + message

	d.mu.Lock()
	d.log = append(d.log, line)
	sink := d.logSink
	d.mu.Unlock()

	d.logger.Info(message,
		slog.String("depot", d.name),
		slog.String("line", d.line),
	)
	if sink != nil {
		sink(line)
	}
}

// MessageLog returns a copy of the accumulated log lines.
func (d *Depot) MessageLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.log))
	copy(out, d.log)
	return out
}

func (d *Depot) ClearMessageLog() {
	d.mu.Lock()
	d.log = nil
	d.mu.Unlock()
}

// ClaimLogSink registers a receiver for future log lines. Only one sink is
// held at a time; a new claim displaces the previous one.
func (d *Depot) ClaimLogSink(sink func(string)) {
	d.mu.Lock()
	d.logSink = sink
	d.mu.Unlock()
}

func (d *Depot) DisclaimLogSink() {
	d.mu.Lock()
	d.logSink = nil
	d.mu.Unlock()
}

func (d *Depot) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}
