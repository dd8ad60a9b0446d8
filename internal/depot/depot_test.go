package depot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineworks/depotmail/internal/gateway"
)

type fakeGateway struct {
	startOK    bool
	startDelay time.Duration

	mu      sync.Mutex
	running bool
	polling bool
	starts  int
	stops   int
}

func (f *fakeGateway) ID() string            { return "fake gateway" }
func (f *fakeGateway) InputContact() string  { return "depot@example.com" }
func (f *fakeGateway) AdminContact() string  { return "admin@example.com" }
func (f *fakeGateway) KillswitchKey() string { return "open-sesame" }

func (f *fakeGateway) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeGateway) Polling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polling
}

func (f *fakeGateway) Start() bool {
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = f.startOK
	return f.startOK
}

func (f *fakeGateway) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	f.polling = false
}

func (f *fakeGateway) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polling = false
}

func (f *fakeGateway) Poll() {}

func (f *fakeGateway) PollAsync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.polling = true
	}
}

func (f *fakeGateway) MessageUser(recipient, subject, body string) {}
func (f *fakeGateway) MessageAdmin(subject, body string)           {}
func (f *fakeGateway) MessageLastPoster(subject, body string)      {}

func newFakes(ok ...bool) ([]*fakeGateway, []gateway.Gateway) {
	fakes := make([]*fakeGateway, len(ok))
	gws := make([]gateway.Gateway, len(ok))
	for i, v := range ok {
		fakes[i] = &fakeGateway{startOK: v}
		gws[i] = fakes[i]
	}
	return fakes, gws
}

func TestNewWithoutGatewaysIsInvalid(t *testing.T) {
	d := New("Lineworks", "Northgate", "Operations", "Line 4", nil)
	assert.Equal(t, InvalidConfiguration, d.State())

	// Terminal state: lifecycle operations are no-ops.
	assert.False(t, d.StartGateways())
	assert.Equal(t, InvalidConfiguration, d.State())
	d.StopGateways()
	assert.Equal(t, InvalidConfiguration, d.State())
}

func TestStartGatewaysAllOrNothing(t *testing.T) {
	fakes, gws := newFakes(true, false, true)
	d := New("Lineworks", "Northgate", "Operations", "Line 4", gws)

	assert.False(t, d.StartGateways())
	assert.Equal(t, Stopped, d.State())

	// The first gateway came up and was torn down again; the third was
	// never attempted.
	assert.Equal(t, 1, fakes[0].starts)
	assert.Equal(t, 1, fakes[0].stops)
	assert.Equal(t, 0, fakes[2].starts)
	assert.False(t, fakes[0].Running())

	log := d.MessageLog()
	require.Len(t, log, 1)
	assert.Contains(t, log[0], "Server failed to start")
}

func TestStartStopGateways(t *testing.T) {
	fakes, gws := newFakes(true, true)
	d := New("Lineworks", "Northgate", "Operations", "Line 4", gws)

	assert.True(t, d.StartGateways())
	assert.Equal(t, Started, d.State())
	assert.True(t, fakes[0].Running())
	assert.True(t, fakes[1].Running())

	// Starting an already started depot is a no-op reporting success.
	assert.True(t, d.StartGateways())
	assert.Equal(t, 1, fakes[0].starts)

	d.StopGateways()
	assert.Equal(t, Stopped, d.State())
	assert.False(t, fakes[0].Running())

	log := d.MessageLog()
	require.Len(t, log, 2)
	assert.Contains(t, log[0], "Server started")
	assert.Contains(t, log[1], "Server stopped")
}

func TestPollingLifecycle(t *testing.T) {
	fakes, gws := newFakes(true, true)
	d := New("Lineworks", "Northgate", "Operations", "Line 4", gws)

	// Polling before the depot is started is refused.
	d.StartPollingAsync()
	assert.False(t, d.Polling())

	require.True(t, d.StartGateways())
	d.StartPollingAsync()
	assert.True(t, d.Polling())
	assert.True(t, fakes[0].Polling())
	assert.True(t, fakes[1].Polling())

	d.StopPolling()
	assert.False(t, d.Polling())
	assert.True(t, fakes[0].Running())

	log := d.MessageLog()
	require.Len(t, log, 3)
	assert.Contains(t, log[1], "Polling for telemetry")
	assert.Contains(t, log[2], "Polling concluded")
}

func TestPollingWaitsForInFlightStart(t *testing.T) {
	slow := &fakeGateway{startOK: true, startDelay: 30 * time.Millisecond}
	d := New("Lineworks", "Northgate", "Operations", "Line 4",
		[]gateway.Gateway{slow})

	d.StartGatewaysAsync()
	require.Eventually(t, func() bool { return d.State() == Starting },
		time.Second, time.Millisecond)

	// The start is still in flight; polling must queue behind it rather
	// than bounce off the transitional state.
	d.StartPollingAsync()
	assert.Equal(t, Started, d.State())
	assert.True(t, d.Polling())

	d.StopPolling()
	assert.False(t, d.Polling())
	assert.True(t, slow.Running())
}

func TestAppendLogMessage(t *testing.T) {
	_, gws := newFakes(true)
	fixed := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	d := New("Lineworks", "Northgate", "Operations", "Line 4", gws,
		WithClock(func() time.Time { return fixed }))

	var sunk []string
	d.ClaimLogSink(func(line string) { sunk = append(sunk, line) })

	d.AppendLogMessage("hello")

	require.Len(t, d.MessageLog(), 1)
	assert.Equal(t, "2026-03-14 09:26:53 hello", d.MessageLog()[0])
	assert.Equal(t, d.MessageLog(), sunk)

	d.DisclaimLogSink()
	d.AppendLogMessage("quiet")
	assert.Len(t, sunk, 1)
	assert.Len(t, d.MessageLog(), 2)

	d.ClearMessageLog()
	assert.Empty(t, d.MessageLog())
}
