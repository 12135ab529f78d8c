package transport

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestSplitMember(t *testing.T) {
	cases := []struct {
		name   string
		iface  string
		member string
	}{
		{"org.freedesktop.DBus.NameOwnerChanged", "org.freedesktop.DBus", "NameOwnerChanged"},
		{"org.freedesktop.NetworkManager.StateChanged", "org.freedesktop.NetworkManager", "StateChanged"},
		{"Bare", "", "Bare"},
	}
	for _, c := range cases {
		iface, member := splitMember(c.name)
		if iface != c.iface || member != c.member {
			t.Errorf("splitMember(%q) = (%q, %q), want (%q, %q)", c.name, iface, member, c.iface, c.member)
		}
	}
}

func TestToSignal(t *testing.T) {
	s := &dbus.Signal{
		Sender: ":1.5",
		Path:   dbus.ObjectPath("/org/example/Obj"),
		Name:   "org.example.Iface.Changed",
		Body:   []any{"state", uint32(3)},
	}
	got := toSignal(s)

	if got.Member != "Changed" || got.Interface != "org.example.Iface" {
		t.Errorf("name split wrong: member=%q interface=%q", got.Member, got.Interface)
	}
	if got.Sender != ":1.5" || got.Path != "/org/example/Obj" {
		t.Errorf("sender/path wrong: %+v", got)
	}
	if len(got.Body) != 2 || got.Body[0] != "state" {
		t.Errorf("body must pass through, got %v", got.Body)
	}
}
