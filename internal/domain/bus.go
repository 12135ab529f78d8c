package domain

import (
	"context"
	"fmt"
)

// BusType selects one of the three standard bus instances.
type BusType int

const (
	// BusSession is the per-login-session message bus.
	BusSession BusType = iota
	// BusSystem is the system-wide message bus.
	BusSystem
	// BusStarter is the bus that activated this process, only meaningful
	// when the process was launched by bus activation.
	BusStarter
)

func (t BusType) String() string {
	switch t {
	case BusSession:
		return "session"
	case BusSystem:
		return "system"
	case BusStarter:
		return "starter"
	default:
		return fmt.Sprintf("bus(%d)", int(t))
	}
}

// ParseBusType maps the config/CLI spelling of a bus identity to a BusType.
func ParseBusType(s string) (BusType, error) {
	switch s {
	case "session":
		return BusSession, nil
	case "system":
		return BusSystem, nil
	case "starter":
		return BusStarter, nil
	default:
		return 0, fmt.Errorf("unknown bus type %q (want session, system or starter)", s)
	}
}

// NameResolver resolves a well-known bus name to the unique name of its
// current owner. Wire-level sender fields always carry unique names, so a
// sender filter on a well-known name must be resolved before it can match
// anything.
type NameResolver interface {
	GetNameOwner(ctx context.Context, name string) (string, error)
}

// Transport is the low-level connection the subscription engine sits on. It
// owns the socket, authentication and wire codec, delivers inbound signal
// messages, and exposes the daemon's match registration and method call
// primitives. Implementations live under internal/transport.
type Transport interface {
	NameResolver

	// AddMatch registers a serialized match rule with the daemon so that
	// matching traffic is forwarded to this connection at all.
	AddMatch(ctx context.Context, rule string) error

	// RemoveMatch retracts a rule previously passed to AddMatch.
	RemoveMatch(ctx context.Context, rule string) error

	// Call invokes dest.iface.method on the object at path and returns the
	// reply's positional values.
	Call(ctx context.Context, dest, path, iface, method string, args ...any) ([]any, error)

	// Signals returns the channel inbound signal messages arrive on.
	// Non-signal traffic never appears here. The channel is closed when
	// the transport closes.
	Signals() <-chan Signal

	// UniqueName is the bus-assigned name of this connection.
	UniqueName() string

	Close() error
}
