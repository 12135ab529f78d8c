package bus

import (
	"context"
	"fmt"
)

// The bus daemon's own meta-interface.
const (
	daemonName      = "org.freedesktop.DBus"
	daemonPath      = "/org/freedesktop/DBus"
	daemonInterface = "org.freedesktop.DBus"
)

// StartReply is the daemon's answer to StartServiceByName.
type StartReply uint32

const (
	StartReplySuccess        StartReply = 1
	StartReplyAlreadyRunning StartReply = 2
)

// StartServiceByName asks the daemon to activate the service implementing
// the given well-known name.
func (c *Connection) StartServiceByName(ctx context.Context, name string) (StartReply, error) {
	out, err := c.transport.Call(ctx, daemonName, daemonPath, daemonInterface, "StartServiceByName", name, uint32(0))
	if err != nil {
		return 0, fmt.Errorf("start service %s: %w", name, err)
	}
	reply, err := firstUint32(out)
	if err != nil {
		return 0, fmt.Errorf("start service %s: %w", name, err)
	}
	return StartReply(reply), nil
}

// UnixUser returns the numeric uid of the process owning the given bus name.
func (c *Connection) UnixUser(ctx context.Context, name string) (uint32, error) {
	out, err := c.transport.Call(ctx, daemonName, daemonPath, daemonInterface, "GetConnectionUnixUser", name)
	if err != nil {
		return 0, fmt.Errorf("unix user of %s: %w", name, err)
	}
	uid, err := firstUint32(out)
	if err != nil {
		return 0, fmt.Errorf("unix user of %s: %w", name, err)
	}
	return uid, nil
}

func firstUint32(out []any) (uint32, error) {
	if len(out) == 0 {
		return 0, fmt.Errorf("empty reply")
	}
	v, ok := out[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected reply type %T", out[0])
	}
	return v, nil
}
