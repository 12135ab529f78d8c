package bus

import (
	"context"

	"buswatch/internal/domain"
	"buswatch/internal/match"
)

// Object is a remote object reachable through this connection, addressed by
// destination name and object path.
type Object struct {
	conn *Connection
	dest string
	path string
}

// Object returns a caller for the object at path exposed by dest.
func (c *Connection) Object(dest, path string) *Object {
	return &Object{conn: c, dest: dest, path: path}
}

// Call invokes iface.method on the remote object and returns the reply's
// positional values.
func (o *Object) Call(ctx context.Context, iface, method string, args ...any) ([]any, error) {
	return o.conn.transport.Call(ctx, o.dest, o.path, iface, method, args...)
}

// WithInterface scopes the object to a single interface so callers stop
// repeating the interface name on every call.
func (o *Object) WithInterface(iface string) *Interface {
	return &Interface{obj: o, iface: iface}
}

// Interface is an interface-scoped caller for a remote object: the explicit
// replacement for attribute-style remote invocation.
type Interface struct {
	obj   *Object
	iface string
}

// Call invokes method on the scoped interface.
func (i *Interface) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	return i.obj.Call(ctx, i.iface, method, args...)
}

// ConnectToSignal subscribes h to a signal emitted by this object on this
// interface. Member, interface, sender and path are pre-bound into the
// filter; argument constraints and keyword bindings from f are kept.
func (i *Interface) ConnectToSignal(ctx context.Context, member string, h domain.Handler, f match.Filter) error {
	f.Member = member
	f.Interface = i.iface
	f.Sender = i.obj.dest
	f.Path = i.obj.path
	return i.obj.conn.Subscribe(ctx, h, f)
}
