// Package transport connects the engine to a real bus through
// github.com/godbus/dbus/v5, which owns the socket, authentication and wire
// codec. Everything above that line — match rules, the index, dispatch —
// lives in internal/match and internal/bus.
package transport

import (
	"context"
	"fmt"
	"os"
	"strings"

	"buswatch/internal/domain"

	"github.com/godbus/dbus/v5"
)

const (
	daemonName        = "org.freedesktop.DBus"
	errNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"

	signalBuffer = 64
)

// Conn adapts a private godbus connection to domain.Transport.
type Conn struct {
	conn *dbus.Conn
	raw  chan *dbus.Signal
	out  chan domain.Signal
}

// Dial opens a private connection to the given bus instance and completes
// the authentication and Hello handshake. Sharing across the process is the
// bus registry's job, not the transport's.
func Dial(kind domain.BusType) (*Conn, error) {
	conn, err := dialRaw(kind)
	if err != nil {
		return nil, err
	}
	t := &Conn{
		conn: conn,
		raw:  make(chan *dbus.Signal, signalBuffer),
		out:  make(chan domain.Signal, signalBuffer),
	}
	conn.Signal(t.raw)
	go t.pump()
	return t, nil
}

func dialRaw(kind domain.BusType) (*dbus.Conn, error) {
	switch kind {
	case domain.BusSession:
		conn, err := dbus.SessionBusPrivate()
		if err != nil {
			return nil, err
		}
		return setup(conn)
	case domain.BusSystem:
		conn, err := dbus.SystemBusPrivate()
		if err != nil {
			return nil, err
		}
		return setup(conn)
	case domain.BusStarter:
		return dialStarter()
	default:
		return nil, fmt.Errorf("unknown bus type %v", kind)
	}
}

// dialStarter connects to the bus that activated this process, following
// the daemon's environment convention.
func dialStarter() (*dbus.Conn, error) {
	if addr := os.Getenv("DBUS_STARTER_ADDRESS"); addr != "" {
		conn, err := dbus.Dial(addr)
		if err != nil {
			return nil, err
		}
		return setup(conn)
	}
	switch os.Getenv("DBUS_STARTER_BUS_TYPE") {
	case "session":
		return dialRaw(domain.BusSession)
	case "system":
		return dialRaw(domain.BusSystem)
	default:
		return nil, fmt.Errorf("starter bus: process was not activated by a bus daemon")
	}
}

func setup(conn *dbus.Conn) (*dbus.Conn, error) {
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus authentication: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus handshake: %w", err)
	}
	return conn, nil
}

// pump converts godbus signals to the engine's message shape. godbus closes
// the raw channel when the connection terminates, which closes out in turn.
func (t *Conn) pump() {
	defer close(t.out)
	for s := range t.raw {
		t.out <- toSignal(s)
	}
}

// toSignal maps godbus's signal, whose Name joins interface and member with
// a dot, onto the engine's separated fields.
func toSignal(s *dbus.Signal) domain.Signal {
	iface, member := splitMember(s.Name)
	return domain.Signal{
		Member:    member,
		Interface: iface,
		Sender:    s.Sender,
		Path:      string(s.Path),
		Body:      s.Body,
	}
}

// splitMember splits a fully qualified signal name at its last dot.
func splitMember(name string) (iface, member string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// AddMatch registers a serialized match rule with the daemon.
func (t *Conn) AddMatch(ctx context.Context, rule string) error {
	call := t.conn.BusObject().CallWithContext(ctx, daemonName+".AddMatch", 0, rule)
	if call.Err != nil {
		return fmt.Errorf("AddMatch: %w", call.Err)
	}
	return nil
}

// RemoveMatch retracts a previously registered rule.
func (t *Conn) RemoveMatch(ctx context.Context, rule string) error {
	call := t.conn.BusObject().CallWithContext(ctx, daemonName+".RemoveMatch", 0, rule)
	if call.Err != nil {
		return fmt.Errorf("RemoveMatch: %w", call.Err)
	}
	return nil
}

// GetNameOwner resolves a well-known name to its current unique owner. A
// name with no owner surfaces as *domain.NameResolutionError.
func (t *Conn) GetNameOwner(ctx context.Context, name string) (string, error) {
	call := t.conn.BusObject().CallWithContext(ctx, daemonName+".GetNameOwner", 0, name)
	if call.Err != nil {
		if derr, ok := call.Err.(dbus.Error); ok && derr.Name == errNameHasNoOwner {
			return "", &domain.NameResolutionError{Name: name, Err: call.Err}
		}
		return "", fmt.Errorf("GetNameOwner %s: %w", name, call.Err)
	}
	var owner string
	if err := call.Store(&owner); err != nil {
		return "", fmt.Errorf("GetNameOwner %s: %w", name, err)
	}
	return owner, nil
}

// Call invokes dest.iface.method on the object at path and returns the
// reply's positional values.
func (t *Conn) Call(ctx context.Context, dest, path, iface, method string, args ...any) ([]any, error) {
	obj := t.conn.Object(dest, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

// Signals returns the inbound signal channel.
func (t *Conn) Signals() <-chan domain.Signal { return t.out }

// UniqueName is the bus-assigned name of this connection.
func (t *Conn) UniqueName() string {
	names := t.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Close terminates the connection; godbus closes the signal channel, which
// ends the pump.
func (t *Conn) Close() error {
	return t.conn.Close()
}
