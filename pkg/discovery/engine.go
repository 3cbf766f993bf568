// ABOUTME: Asynchronous discovery engine for one browse session
// ABOUTME: Meta-browser, per-type browsers, and serialized instance resolution
package discovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an engine session.
type State int32

const (
	// StateStarting means the multicast client is being opened.
	StateStarting State = iota

	// StateRunning means browsers are active and events flow.
	StateRunning

	// StateStopping means browsers are being cancelled.
	StateStopping

	// StateStopped is terminal; no further events are delivered.
	StateStopped
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// EngineConfig configures one discovery session.
type EngineConfig struct {
	// InterfaceAddr is the local IPv4 address to bind to.
	// Empty means all interfaces.
	InterfaceAddr string

	// Open opens the multicast client. Nil uses OpenZeroconf.
	// Tests inject fakes here.
	Open OpenFunc

	// ResolveTimeout bounds each instance resolution.
	// Zero uses the package default.
	ResolveTimeout time.Duration

	// SessionID tags log lines for this session.
	SessionID string
}

// resolveToken tracks one in-flight resolution so a removal can cancel it
// and a stale completion can be told apart from a current one.
type resolveToken struct {
	cancel context.CancelFunc
}

// Engine runs one discovery session end to end: an enumeration browser
// discovers service types, each type gets a dedicated browser, and each
// added instance is resolved into a ServiceInstance.
//
// All session state (seen types, browsers, in-flight resolutions) is owned
// by the run goroutine. Browser callbacks post closures onto the task
// channel instead of mutating state directly, so mutation is serialized by
// construction rather than by locks.
type Engine struct {
	cfg    EngineConfig
	bridge *Bridge

	state    atomic.Int32
	tasks    chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the run goroutine.
	client    Client
	types     map[string]struct{}
	browsers  map[string]Browser
	resolving map[string]*resolveToken
}

// NewEngine creates an engine. Events go to the bridge; nothing happens
// until Start.
func NewEngine(cfg EngineConfig, bridge *Bridge) *Engine {
	if cfg.Open == nil {
		cfg.Open = OpenZeroconf
	}
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = ResolveTimeout
	}

	e := &Engine{
		cfg:       cfg,
		bridge:    bridge,
		tasks:     make(chan func(), 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		types:     make(map[string]struct{}),
		browsers:  make(map[string]Browser),
		resolving: make(map[string]*resolveToken),
	}
	e.state.Store(int32(StateStarting))
	return e
}

// Start launches the session's run goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Stop requests a cooperative shutdown. It does not wait; use Done.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
}

// Done is closed once the session has fully stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// State reports the current session state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// AddBrowse normalizes a manual query and starts browsing it as if it had
// been discovered naturally, emitting the type-found event immediately.
// Browsing the reserved enumeration type is refused. Safe to call from any
// goroutine; a no-op once the session has stopped.
func (e *Engine) AddBrowse(rawType string) error {
	serviceType, err := NormalizeServiceType(rawType)
	if err != nil {
		return err
	}
	if serviceType == EnumerationType {
		return fmt.Errorf("%w: %s", ErrReservedType, serviceType)
	}

	e.post(func() { e.addType(serviceType) })
	return nil
}

// post hands a closure to the run goroutine. Falls through once the
// session has finished so callers can never hang on a dead engine.
func (e *Engine) post(task func()) {
	select {
	case e.tasks <- task:
	case <-e.done:
	}
}

// run is the session's single logical thread.
func (e *Engine) run() {
	defer close(e.done)
	defer e.state.Store(int32(StateStopped))

	client, err := e.cfg.Open(e.cfg.InterfaceAddr)
	if err != nil {
		log.Printf("discovery[%s]: startup failed: %v", e.cfg.SessionID, err)
		e.bridge.Emit(Event{Kind: EventError, Err: fmt.Sprintf("failed to start discovery: %v", err)})
		return
	}
	e.client = client

	meta, err := client.Browse(EnumerationType, e.onMetaChange)
	if err != nil {
		log.Printf("discovery[%s]: enumeration browse failed: %v", e.cfg.SessionID, err)
		e.bridge.Emit(Event{Kind: EventError, Err: fmt.Sprintf("failed to start discovery: %v", err)})
		client.Close()
		return
	}
	e.browsers[EnumerationType] = meta

	e.state.Store(int32(StateRunning))
	log.Printf("discovery[%s]: session running (interface=%s)", e.cfg.SessionID, ifaceLabel(e.cfg.InterfaceAddr))

	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.stop:
			e.teardown()
			return
		}
	}
}

// teardown cancels all browsers and in-flight resolutions, then closes the
// client. Cancellation is cooperative; the caller bounds its wait on Done.
func (e *Engine) teardown() {
	e.state.Store(int32(StateStopping))
	log.Printf("discovery[%s]: stopping session", e.cfg.SessionID)

	for name, tok := range e.resolving {
		tok.cancel()
		delete(e.resolving, name)
	}
	for serviceType, browser := range e.browsers {
		browser.Cancel()
		delete(e.browsers, serviceType)
	}
	e.client.Close()
}

// onMetaChange handles enumeration-browser callbacks. Runs on a primitive
// goroutine, so the real work is posted to the run goroutine.
func (e *Engine) onMetaChange(name string, change StateChange) {
	if change != StateAdded {
		return
	}
	e.post(func() { e.addType(DeriveServiceType(name)) })
}

// addType registers a service type and starts its dedicated browser. Both
// the enumeration-seeded and manual paths land here, so a type is never
// browsed twice within a session.
func (e *Engine) addType(serviceType string) {
	if serviceType == EnumerationType {
		return
	}
	if _, seen := e.types[serviceType]; seen {
		return
	}
	e.types[serviceType] = struct{}{}

	log.Printf("discovery[%s]: found service type %s", e.cfg.SessionID, serviceType)
	e.bridge.Emit(Event{Kind: EventTypeFound, Type: serviceType})

	browser, err := e.client.Browse(serviceType, func(name string, change StateChange) {
		e.onInstanceChange(serviceType, name, change)
	})
	if err != nil {
		// The type keeps its seen-set entry and is simply not
		// browsed this session; other types are unaffected.
		log.Printf("discovery[%s]: could not start browser for %s: %v", e.cfg.SessionID, serviceType, err)
		e.bridge.Emit(Event{Kind: EventError, Err: fmt.Sprintf("failed to browse %s: %v", serviceType, err)})
		return
	}
	e.browsers[serviceType] = browser
}

// onInstanceChange handles per-type browser callbacks.
func (e *Engine) onInstanceChange(serviceType, name string, change StateChange) {
	e.post(func() {
		switch change {
		case StateAdded:
			e.resolveInstance(serviceType, name)
		case StateRemoved:
			e.removeInstance(name)
		}
	})
}

// resolveInstance kicks off a bounded resolution for an added instance.
// Failures are silent: first-pass mDNS announcements are commonly
// incomplete, and a later re-announcement retries. An add while a
// resolution is already in flight is ignored.
func (e *Engine) resolveInstance(serviceType, name string) {
	if _, pending := e.resolving[name]; pending {
		return
	}

	rctx, cancel := context.WithCancel(context.Background())
	tok := &resolveToken{cancel: cancel}
	e.resolving[name] = tok

	client := e.client
	timeout := e.cfg.ResolveTimeout

	go func() {
		rec, err := client.Resolve(rctx, serviceType, name, timeout)
		cancel()
		e.post(func() { e.finishResolve(name, tok, rec, err) })
	}()
}

// finishResolve runs on the run goroutine once a resolution completes.
// A stale completion (the instance was removed meanwhile) emits nothing.
func (e *Engine) finishResolve(name string, tok *resolveToken, rec *ServiceRecord, err error) {
	if e.resolving[name] != tok {
		return
	}
	delete(e.resolving, name)

	if err != nil {
		log.Printf("discovery[%s]: resolve %s: %v", e.cfg.SessionID, name, err)
		return
	}

	instance := newServiceInstance(rec)
	e.bridge.Emit(Event{Kind: EventInstanceAdded, Name: name, Instance: &instance})
}

// removeInstance cancels any in-flight resolution for the name, so a late
// add can never trail its remove, and reports the removal unconditionally.
func (e *Engine) removeInstance(name string) {
	if tok, ok := e.resolving[name]; ok {
		tok.cancel()
		delete(e.resolving, name)
	}
	e.bridge.Emit(Event{Kind: EventInstanceRemoved, Name: name})
}

// ifaceLabel names an interface binding for logs.
func ifaceLabel(addr string) string {
	if addr == "" {
		return "all"
	}
	return addr
}
