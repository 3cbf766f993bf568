// ABOUTME: Engine tests against a fake multicast client
// ABOUTME: Covers the session state machine, deduplication, and resolution flows
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser records cancellation.
type fakeBrowser struct {
	mu        sync.Mutex
	cancelled bool
}

func (b *fakeBrowser) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
}

func (b *fakeBrowser) isCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// fakeClient implements Client in-process. Tests drive browser callbacks by
// hand and control what Resolve returns per instance name.
type fakeClient struct {
	mu        sync.Mutex
	browses   map[string]int
	handlers  map[string]BrowseHandler
	browsers  map[string]*fakeBrowser
	records   map[string]*ServiceRecord
	browseErr map[string]error
	blocking  map[string]bool
	closed    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		browses:   make(map[string]int),
		handlers:  make(map[string]BrowseHandler),
		browsers:  make(map[string]*fakeBrowser),
		records:   make(map[string]*ServiceRecord),
		browseErr: make(map[string]error),
		blocking:  make(map[string]bool),
	}
}

func (c *fakeClient) open(string) (Client, error) { return c, nil }

func (c *fakeClient) Browse(serviceType string, h BrowseHandler) (Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.browses[serviceType]++
	if err := c.browseErr[serviceType]; err != nil {
		return nil, err
	}

	br := &fakeBrowser{}
	c.handlers[serviceType] = h
	c.browsers[serviceType] = br
	return br, nil
}

func (c *fakeClient) Resolve(ctx context.Context, serviceType, instanceName string, timeout time.Duration) (*ServiceRecord, error) {
	c.mu.Lock()
	block := c.blocking[instanceName]
	rec := c.records[instanceName]
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %s: %v", ErrResolveFailed, instanceName, ctx.Err())
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceName)
	}
	return rec, nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) browseCount(serviceType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browses[serviceType]
}

func (c *fakeClient) setRecord(name string, rec *ServiceRecord) {
	c.mu.Lock()
	c.records[name] = rec
	c.mu.Unlock()
}

// fire invokes the registered handler for a type, as the real primitive
// would from one of its goroutines.
func (c *fakeClient) fire(t *testing.T, serviceType, name string, change StateChange) {
	t.Helper()
	c.mu.Lock()
	h := c.handlers[serviceType]
	c.mu.Unlock()
	require.NotNil(t, h, "no browser registered for %s", serviceType)
	h(name, change)
}

func printerRecord(name string) *ServiceRecord {
	return &ServiceRecord{
		Instance: name,
		Type:     "_ipp._tcp.local.",
		Host:     "printer.local.",
		Port:     631,
		Addrs:    []string{"192.168.1.50"},
		Text:     []string{"rp=ipp/print"},
	}
}

func startTestEngine(t *testing.T, fc *fakeClient) (*Engine, *Bridge) {
	t.Helper()

	bridge := NewBridge()
	e := NewEngine(EngineConfig{
		Open:           fc.open,
		ResolveTimeout: 200 * time.Millisecond,
		SessionID:      "test",
	}, bridge)
	e.Start()

	waitForState(t, e, StateRunning)
	t.Cleanup(func() {
		e.Stop()
		<-e.Done()
		bridge.Close()
	})
	return e, bridge
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("engine never reached state %v (now %v)", want, e.State())
}

func nextEvent(t *testing.T, bridge *Bridge) Event {
	t.Helper()
	select {
	case ev, ok := <-bridge.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, bridge *Bridge, window time.Duration) {
	t.Helper()
	select {
	case ev := <-bridge.Events():
		t.Fatalf("unexpected event %v (%s %s)", ev.Kind, ev.Type, ev.Name)
	case <-time.After(window):
	}
}

func TestEngineDiscoversAndResolves(t *testing.T) {
	fc := newFakeClient()
	_, bridge := startTestEngine(t, fc)

	const name = "Office Printer._ipp._tcp.local."
	fc.setRecord(name, printerRecord(name))

	fc.fire(t, EnumerationType, "_ipp._tcp.local.", StateAdded)

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	assert.Equal(t, "_ipp._tcp.local.", ev.Type)

	fc.fire(t, "_ipp._tcp.local.", name, StateAdded)

	ev = nextEvent(t, bridge)
	require.Equal(t, EventInstanceAdded, ev.Kind)
	assert.Equal(t, name, ev.Name)
	require.NotNil(t, ev.Instance)
	assert.Equal(t, []string{"192.168.1.50:631"}, ev.Instance.Addresses)
	assert.Equal(t, 631, ev.Instance.Port)
}

func TestEngineDerivesTypeFromSubtypedAnnouncement(t *testing.T) {
	fc := newFakeClient()
	_, bridge := startTestEngine(t, fc)

	fc.fire(t, EnumerationType, "a._sub._http._tcp.local.", StateAdded)

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	assert.Equal(t, "_http._tcp.local.", ev.Type)
	assert.Equal(t, 1, fc.browseCount("_http._tcp.local."))
}

func TestEngineNeverBrowsesTypeTwice(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	// Same type arrives from the meta browser twice and manually once.
	fc.fire(t, EnumerationType, "_http._tcp.local.", StateAdded)
	fc.fire(t, EnumerationType, "_http._tcp.local.", StateAdded)
	require.NoError(t, e.AddBrowse("_http._tcp"))

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	assert.Equal(t, "_http._tcp.local.", ev.Type)

	// Flush the task queue with a sentinel type before counting.
	require.NoError(t, e.AddBrowse("_sentinel._tcp"))
	ev = nextEvent(t, bridge)
	assert.Equal(t, "_sentinel._tcp.local.", ev.Type)

	assert.Equal(t, 1, fc.browseCount("_http._tcp.local."))
}

func TestEngineManualQueryEmitsTypeFoundImmediately(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	require.NoError(t, e.AddBrowse("_dante-safe._udp"))

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	assert.Equal(t, "_dante-safe._udp.local.", ev.Type)
}

func TestEngineRejectsBadManualQueries(t *testing.T) {
	fc := newFakeClient()
	e, _ := startTestEngine(t, fc)

	assert.ErrorIs(t, e.AddBrowse("   "), ErrEmptyQuery)
	assert.ErrorIs(t, e.AddBrowse("_services._dns-sd._udp.local."), ErrReservedType)
	assert.ErrorIs(t, e.AddBrowse("_services._dns-sd._udp"), ErrReservedType)
}

func TestEngineResolveFailureIsSilentAndRetriable(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	const name = "flaky._http._tcp.local."
	require.NoError(t, e.AddBrowse("_http"))
	assert.Equal(t, EventTypeFound, nextEvent(t, bridge).Kind)

	// First announcement: no record yet, resolution fails silently.
	fc.fire(t, "_http._tcp.local.", name, StateAdded)
	expectNoEvent(t, bridge, 300*time.Millisecond)
	assert.Equal(t, StateRunning, e.State())

	// Re-announcement after the record shows up retries and succeeds.
	fc.setRecord(name, &ServiceRecord{
		Instance: name,
		Type:     "_http._tcp.local.",
		Host:     "web.local.",
		Port:     80,
		Addrs:    []string{"192.168.1.7"},
	})
	fc.fire(t, "_http._tcp.local.", name, StateAdded)

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventInstanceAdded, ev.Kind)
	assert.Equal(t, name, ev.Name)
}

func TestEngineRemoveWithoutAddStillDelivered(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	require.NoError(t, e.AddBrowse("_http"))
	assert.Equal(t, EventTypeFound, nextEvent(t, bridge).Kind)

	fc.fire(t, "_http._tcp.local.", "ghost._http._tcp.local.", StateRemoved)

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventInstanceRemoved, ev.Kind)
	assert.Equal(t, "ghost._http._tcp.local.", ev.Name)
}

func TestEngineRemoveCancelsInFlightResolve(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	const name = "slow._http._tcp.local."
	fc.mu.Lock()
	fc.blocking[name] = true
	fc.mu.Unlock()

	require.NoError(t, e.AddBrowse("_http"))
	assert.Equal(t, EventTypeFound, nextEvent(t, bridge).Kind)

	fc.fire(t, "_http._tcp.local.", name, StateAdded)
	fc.fire(t, "_http._tcp.local.", name, StateRemoved)

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventInstanceRemoved, ev.Kind)

	// The cancelled resolution must not produce a trailing add.
	expectNoEvent(t, bridge, 300*time.Millisecond)
}

func TestEngineReplayLastEventWins(t *testing.T) {
	fc := newFakeClient()
	e, bridge := startTestEngine(t, fc)

	const name = "printer._ipp._tcp.local."
	fc.setRecord(name, printerRecord(name))

	require.NoError(t, e.AddBrowse("_ipp"))
	assert.Equal(t, EventTypeFound, nextEvent(t, bridge).Kind)

	// Replay: add, remove, add, remove, add. Consumer table is rebuilt
	// from the delivered events alone.
	table := make(map[string]ServiceInstance)
	apply := func(ev Event) {
		switch ev.Kind {
		case EventInstanceAdded:
			table[ev.Name] = *ev.Instance
		case EventInstanceRemoved:
			delete(table, ev.Name)
		}
	}

	for i := 0; i < 2; i++ {
		fc.fire(t, "_ipp._tcp.local.", name, StateAdded)
		apply(nextEvent(t, bridge))
		fc.fire(t, "_ipp._tcp.local.", name, StateRemoved)
		apply(nextEvent(t, bridge))
	}
	assert.NotContains(t, table, name)

	fc.fire(t, "_ipp._tcp.local.", name, StateAdded)
	apply(nextEvent(t, bridge))
	assert.Contains(t, table, name)
}

func TestEngineStartupFailure(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	e := NewEngine(EngineConfig{
		Open: func(string) (Client, error) {
			return nil, errors.New("no multicast socket")
		},
		SessionID: "test",
	}, bridge)
	e.Start()

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Err, "no multicast socket")

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine never finished after startup failure")
	}
	assert.Equal(t, StateStopped, e.State())
}

func TestEngineBrowserStartErrorIsIsolated(t *testing.T) {
	fc := newFakeClient()
	fc.browseErr["_broken._tcp.local."] = errors.New("socket exhausted")
	e, bridge := startTestEngine(t, fc)

	require.NoError(t, e.AddBrowse("_broken._tcp"))

	ev := nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	ev = nextEvent(t, bridge)
	assert.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Err, "_broken._tcp.local.")

	// Other types are unaffected.
	require.NoError(t, e.AddBrowse("_ok._tcp"))
	ev = nextEvent(t, bridge)
	assert.Equal(t, EventTypeFound, ev.Kind)
	assert.Equal(t, "_ok._tcp.local.", ev.Type)
	assert.Equal(t, 1, fc.browseCount("_ok._tcp.local."))
	assert.Equal(t, StateRunning, e.State())
}

func TestEngineStopCancelsBrowsersAndClosesClient(t *testing.T) {
	fc := newFakeClient()

	bridge := NewBridge()
	defer bridge.Close()
	e := NewEngine(EngineConfig{Open: fc.open, SessionID: "test"}, bridge)
	e.Start()
	waitForState(t, e, StateRunning)

	require.NoError(t, e.AddBrowse("_http"))
	assert.Equal(t, EventTypeFound, nextEvent(t, bridge).Kind)

	e.Stop()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine never stopped")
	}

	assert.Equal(t, StateStopped, e.State())
	assert.True(t, fc.isClosed())
	fc.mu.Lock()
	for serviceType, br := range fc.browsers {
		assert.True(t, br.isCancelled(), "browser for %s not cancelled", serviceType)
	}
	fc.mu.Unlock()
}
