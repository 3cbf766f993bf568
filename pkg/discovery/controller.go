// ABOUTME: Session controller owning at most one discovery engine
// ABOUTME: Mediates start/stop/restart and routes manual queries
package discovery

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ControllerConfig configures a controller.
type ControllerConfig struct {
	// Open opens multicast clients for new sessions. Nil uses OpenZeroconf.
	Open OpenFunc

	// ResolveTimeout is passed through to each engine. Zero uses the
	// package default.
	ResolveTimeout time.Duration

	// StopTimeout bounds the wait for an old session to stop before a
	// new one starts. Zero uses the package default.
	StopTimeout time.Duration
}

// Controller owns at most one Engine at a time and the long-lived bridge
// its events flow through. Engines are replaced atomically; two engines
// are never live against the same consumer.
type Controller struct {
	cfg    ControllerConfig
	bridge *Bridge

	mu     sync.Mutex
	engine *Engine
	closed bool
}

// NewController creates a controller with a fresh event bridge.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = StopTimeout
	}

	return &Controller{
		cfg:    cfg,
		bridge: NewBridge(),
	}
}

// Events returns the consumer-facing event channel. It closes after
// Shutdown once queued events have drained.
func (c *Controller) Events() <-chan Event {
	return c.bridge.Events()
}

// Start begins a discovery session bound to the given local IPv4 address
// (empty = all interfaces). Any running session is stopped first; all
// accumulated discovery state belongs to the old session and the consumer
// should clear its tables when calling this.
func (c *Controller) Start(ifaceAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		log.Printf("discovery: ignoring start after shutdown")
		return
	}

	c.stopLocked()

	engine := NewEngine(EngineConfig{
		InterfaceAddr:  ifaceAddr,
		Open:           c.cfg.Open,
		ResolveTimeout: c.cfg.ResolveTimeout,
		SessionID:      uuid.NewString()[:8],
	}, c.bridge)
	c.engine = engine
	engine.Start()
}

// SwitchInterface stops the current session and starts a fresh one on the
// new interface. Safe to call while a previous stop is still settling;
// restarts are serialized by the controller's lock.
func (c *Controller) SwitchInterface(ifaceAddr string) {
	c.Start(ifaceAddr)
}

// SubmitManualQuery forwards a raw query string to the running engine.
// A no-op when no session is running; a malformed query surfaces as an
// Error event rather than an error return.
func (c *Controller) SubmitManualQuery(rawType string) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		log.Printf("discovery: query %q ignored: %v", rawType, ErrNotRunning)
		return
	}

	if err := engine.AddBrowse(rawType); err != nil {
		log.Printf("discovery: query %q rejected: %v", rawType, err)
		c.bridge.Emit(Event{Kind: EventError, Err: err.Error()})
	}
}

// SubmitPresetQueries submits a batch of queries, continuing past
// individual failures.
func (c *Controller) SubmitPresetQueries(rawTypes []string) {
	for _, raw := range rawTypes {
		c.SubmitManualQuery(raw)
	}
}

// Shutdown stops the running session and closes the bridge. Idempotent.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.stopLocked()
	c.bridge.Close()
}

// stopLocked stops the current engine with a bounded wait. On timeout the
// session is abandoned; its resources unwind on their own or leak at the
// OS level, but the caller is never blocked indefinitely.
func (c *Controller) stopLocked() {
	if c.engine == nil {
		return
	}

	c.engine.Stop()
	select {
	case <-c.engine.Done():
	case <-time.After(c.cfg.StopTimeout):
		log.Printf("discovery: timeout stopping session, abandoning it")
	}
	c.engine = nil
}
