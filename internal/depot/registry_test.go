package depot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineworks/depotmail/internal/gateway"
)

func newTestRegistry() (*Registry, []*fakeGateway) {
	f1, g1 := newFakes(true)
	f2, g2 := newFakes(true)

	invalid := New("Lineworks", "Ghost", "Operations", "Line 0", nil)
	north := New("Lineworks", "Northgate", "Operations", "Line 4", g1)
	south := New("Lineworks", "Southgate", "Operations", "Line 7", g2)

	return NewRegistry(invalid, north, south), []*fakeGateway{f1[0], f2[0]}
}

func waitIdle(t *testing.T, r *Registry) {
	t.Helper()
	r.Wait()
	require.False(t, r.Busy())
}

func TestRegistryFind(t *testing.T) {
	r, _ := newTestRegistry()

	assert.Equal(t, 3, r.Len())
	require.NotNil(t, r.Find("Northgate"))
	assert.Equal(t, "Line 4", r.Find("Northgate").Line())
	assert.Nil(t, r.Find("Missing"))

	_, g := newFakes(true)
	r.Add(New("Lineworks", "Eastgate", "Operations", "Line 9", g))
	assert.Equal(t, 4, r.Len())
}

func TestStartAllPollingSkipsInvalidDepots(t *testing.T) {
	r, fakes := newTestRegistry()

	r.StartAllPollingAsync()
	waitIdle(t, r)

	assert.True(t, fakes[0].Polling())
	assert.True(t, fakes[1].Polling())
	assert.Equal(t, InvalidConfiguration, r.Find("Ghost").State())
	assert.Equal(t, Started, r.Find("Northgate").State())
	assert.Equal(t, Started, r.Find("Southgate").State())
}

func TestStopAllPollingLeavesGatewaysConnected(t *testing.T) {
	r, fakes := newTestRegistry()
	r.StartAllPollingAsync()
	waitIdle(t, r)

	r.StopAllPollingAsync()
	waitIdle(t, r)

	assert.False(t, fakes[0].Polling())
	assert.True(t, fakes[0].Running())
	assert.Equal(t, Started, r.Find("Northgate").State())
}

func TestHaltAllReleasesEverything(t *testing.T) {
	r, fakes := newTestRegistry()
	r.StartAllPollingAsync()
	waitIdle(t, r)

	r.HaltAllAsync()
	waitIdle(t, r)

	assert.False(t, fakes[0].Polling())
	assert.False(t, fakes[0].Running())
	assert.True(t, r.AllStopped())
}

func TestConflictingBulkOperationsSerialize(t *testing.T) {
	r, _ := newTestRegistry()

	r.StartAllPollingAsync()
	r.HaltAllAsync()
	waitIdle(t, r)

	// The halt waited for the start to finish, then ran.
	assert.True(t, r.AllStopped())
	assert.False(t, r.AnyPolling())
}

func TestRegistryPredicates(t *testing.T) {
	r, _ := newTestRegistry()

	assert.True(t, r.AnyInvalid())
	assert.False(t, r.AllInvalid())
	assert.True(t, r.AllStopped())
	assert.True(t, r.AnyStopped())
	assert.False(t, r.AnyStarted())
	assert.False(t, r.AnyPolling())
	assert.True(t, r.StillStarting())
	assert.False(t, r.StillStopping())

	r.StartAllPollingAsync()
	waitIdle(t, r)

	assert.True(t, r.AllStarted())
	assert.True(t, r.AnyStarted())
	assert.True(t, r.AllPolling())
	assert.True(t, r.AnyPolling())
	assert.False(t, r.StillStarting())
	assert.True(t, r.StillStopping())

	r.HaltAllAsync()
	waitIdle(t, r)

	assert.True(t, r.AllStopped())
	assert.False(t, r.AllPolling())
}

func TestPredicatesOverEmptyRegistry(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.AllStarted())
	assert.False(t, r.AllStopped())
	assert.False(t, r.AnyPolling())
	assert.False(t, r.AnyInvalid())
}

func TestWaitWithNoOperationReturnsImmediately(t *testing.T) {
	r := NewRegistry(New("Lineworks", "Northgate", "Operations", "Line 4",
		[]gateway.Gateway{&fakeGateway{startOK: true}}))

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked with no operation in flight")
	}
}
