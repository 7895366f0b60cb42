package router

import (
	"errors"
	"math"
	"sync"
)

// PortID identifies one long-lived channel. Id 0 is reserved as the
// invalid/unconnected sentinel; real ids start at 1 and are never reused
// while the id space lasts.
type PortID int

const firstPortID PortID = 1

var (
	// ErrNotConnected is returned for operations on an unknown port id:
	// already disconnected or never connected. Recoverable, since
	// disconnects race with in-flight sends.
	ErrNotConnected = errors.New("port not connected")

	// ErrPortIDsExhausted is returned when the id space runs out. Not
	// reachable in practice.
	ErrPortIDsExhausted = errors.New("port id space exhausted")
)

// Port is the channel-handle a connected surface receives messages on.
type Port interface {
	Post(env Envelope) error
}

// portContext pairs a port with its private request-id counter.
type portContext struct {
	port          Port
	lastRequestID RequestID
}

func (ctx *portContext) nextRequestID() RequestID {
	ctx.lastRequestID++
	return ctx.lastRequestID
}

// connectedPorts is the registry of live channels. Safe for concurrent
// use: many ports exchange traffic simultaneously and handling one
// port's message must not block another's.
type connectedPorts struct {
	mu     sync.Mutex
	lastID PortID
	byID   map[PortID]*portContext
}

func newConnectedPorts() *connectedPorts {
	return &connectedPorts{
		lastID: firstPortID - 1,
		byID:   make(map[PortID]*portContext),
	}
}

// connect registers a port and allocates the next id.
func (p *connectedPorts) connect(port Port) (PortID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastID == math.MaxInt {
		return 0, ErrPortIDsExhausted
	}
	p.lastID++
	id := p.lastID
	p.byID[id] = &portContext{port: port}
	return id, nil
}

// disconnect removes a port. Idempotent: disconnecting an unknown or
// already-removed id is a no-op.
func (p *connectedPorts) disconnect(id PortID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byID, id)
}

// nextRequestID advances the port's own counter. Each port's sequence is
// strictly increasing and independent of every other port's.
func (p *connectedPorts) nextRequestID(id PortID) (RequestID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, ok := p.byID[id]
	if !ok {
		return 0, ErrNotConnected
	}
	return ctx.nextRequestID(), nil
}

// post delivers an envelope to a connected port.
func (p *connectedPorts) post(id PortID, env Envelope) error {
	p.mu.Lock()
	ctx, ok := p.byID[id]
	p.mu.Unlock()

	if !ok {
		return ErrNotConnected
	}
	return ctx.port.Post(env)
}
