package bus

import (
	"fmt"
	"sync"

	"buswatch/internal/domain"
	"buswatch/internal/transport"
)

// dialTransport creates the transport for a bus identity. A variable so
// tests can substitute a fake.
var dialTransport = func(kind domain.BusType) (domain.Transport, error) {
	return transport.Dial(kind)
}

// registry holds the process-wide shared connection per bus identity.
// Sharing is explicit and reference counted: every Acquire must be paired
// with a Release, and the connection closes when the last reference goes.
var registry = struct {
	mu     sync.Mutex
	shared map[domain.BusType]*Connection
}{shared: make(map[domain.BusType]*Connection)}

// Acquire returns the shared connection for the given bus identity, dialing
// it on first use. Options only take effect on the dial that creates the
// connection.
func Acquire(kind domain.BusType, opts ...Option) (*Connection, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if c, ok := registry.shared[kind]; ok {
		c.refs++
		return c, nil
	}
	c, err := connect(kind, opts...)
	if err != nil {
		return nil, err
	}
	c.shared = true
	c.refs = 1
	registry.shared[kind] = c
	return c, nil
}

// Private dials a connection that is never shared and never enters the
// registry. Release (or Close) it when done.
func Private(kind domain.BusType, opts ...Option) (*Connection, error) {
	return connect(kind, opts...)
}

func connect(kind domain.BusType, opts ...Option) (*Connection, error) {
	t, err := dialTransport(kind)
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", kind, err)
	}
	return New(kind, t, opts...), nil
}

// Release undoes one Acquire. The shared connection closes when its last
// reference is released; releasing a private connection just closes it.
func (c *Connection) Release() error {
	if !c.shared {
		return c.Close()
	}
	registry.mu.Lock()
	c.refs--
	last := c.refs <= 0
	if last {
		delete(registry.shared, c.kind)
	}
	registry.mu.Unlock()
	if last {
		return c.Close()
	}
	return nil
}
