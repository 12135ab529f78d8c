// Package match implements the client-side signal match engine: rules
// describing which signals a subscriber cares about, and an index answering
// "which stored rules match this inbound signal" in insertion order.
package match

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"buswatch/internal/domain"
)

// Filter describes a subscription. Every field is independently optional;
// an empty string is a wildcard. Args constrains positional argument values
// by index: the probe's argument at that index must be a string equal to the
// given value, byte for byte. The daemon's argN grammar only admits strings,
// so local matching uses the same rule to keep both sides consistent.
type Filter struct {
	Member    string
	Interface string
	Sender    string
	Path      string
	Args      map[int]string

	// Keyword bindings: when set, dispatch passes the matched message's
	// sender/path/interface/member to each handler under these names.
	SenderKeyword    string
	PathKeyword      string
	InterfaceKeyword string
	MemberKeyword    string
}

// Rule is one stored subscription: a Filter frozen at construction plus the
// handlers to invoke, in registration order. Filter fields never change
// after NewRule; the sender must already be a unique name (or empty) —
// resolution is the bus layer's job.
type Rule struct {
	member string
	iface  string
	sender string
	path   string
	args   map[int]string

	senderKeyword    string
	pathKeyword      string
	interfaceKeyword string
	memberKeyword    string

	handlers []domain.Handler

	seq uint64 // insertion order within a Tree
}

// NewRule validates and freezes a filter. A rule without handlers is legal:
// it serves as a probe or removal key until AddHandler is called.
func NewRule(f Filter) (*Rule, error) {
	var args map[int]string
	if len(f.Args) > 0 {
		args = make(map[int]string, len(f.Args))
		for i, v := range f.Args {
			if i < 0 {
				return nil, &domain.InvalidFilterError{Reason: "negative argument index " + strconv.Itoa(i)}
			}
			args[i] = v
		}
	}
	return &Rule{
		member:           f.Member,
		iface:            f.Interface,
		sender:           f.Sender,
		path:             f.Path,
		args:             args,
		senderKeyword:    f.SenderKeyword,
		pathKeyword:      f.PathKeyword,
		interfaceKeyword: f.InterfaceKeyword,
		memberKeyword:    f.MemberKeyword,
	}, nil
}

// AddHandler appends a handler. Registration order is dispatch order.
func (r *Rule) AddHandler(h domain.Handler) {
	r.handlers = append(r.handlers, h)
}

// Member returns the member filter, empty for wildcard.
func (r *Rule) Member() string { return r.member }

// Sender returns the (resolved) sender filter, empty for wildcard.
func (r *Rule) Sender() string { return r.sender }

// Matches reports whether the signal satisfies every present filter field.
// Matching is conjunctive: one mismatched field rejects the rule. Absent
// fields always match. A positional constraint at index i requires the body
// to have at least i+1 arguments.
func (r *Rule) Matches(sig domain.Signal) bool {
	if r.member != "" && r.member != sig.Member {
		return false
	}
	if r.iface != "" && r.iface != sig.Interface {
		return false
	}
	if r.sender != "" && r.sender != sig.Sender {
		return false
	}
	if r.path != "" && r.path != sig.Path {
		return false
	}
	for i, want := range r.args {
		if i >= len(sig.Body) {
			return false
		}
		got, ok := sig.Body[i].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// SameFilter reports whether two rules constrain exactly the same fields to
// the same values, ignoring handlers and keyword bindings. Removal keys use
// this to locate the stored entries they refer to.
func (r *Rule) SameFilter(o *Rule) bool {
	if r.member != o.member || r.iface != o.iface || r.sender != o.sender || r.path != o.path {
		return false
	}
	if len(r.args) != len(o.args) {
		return false
	}
	for i, v := range r.args {
		if ov, ok := o.args[i]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String serializes the rule in the daemon's match-rule grammar: key='value'
// pairs joined by commas, wildcard fields omitted. The field order is fixed
// (type, interface, member, path, sender, then argN ascending) because the
// exact string doubles as the refcount key for daemon-side registration.
func (r *Rule) String() string {
	parts := []string{"type='signal'"}
	if r.iface != "" {
		parts = append(parts, "interface='"+r.iface+"'")
	}
	if r.member != "" {
		parts = append(parts, "member='"+r.member+"'")
	}
	if r.path != "" {
		parts = append(parts, "path='"+r.path+"'")
	}
	if r.sender != "" {
		parts = append(parts, "sender='"+r.sender+"'")
	}
	if len(r.args) > 0 {
		idx := make([]int, 0, len(r.args))
		for i := range r.args {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			parts = append(parts, "arg"+strconv.Itoa(i)+"='"+r.args[i]+"'")
		}
	}
	return strings.Join(parts, ",")
}

// handlerID identifies a handler for selective removal. Go functions are not
// comparable, so identity is the code pointer: named functions and method
// values are stable, separately created closures are distinct.
func handlerID(h domain.Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// removeHandler detaches the first occurrence of h, reporting whether it was
// present.
func (r *Rule) removeHandler(h domain.Handler) bool {
	id := handlerID(h)
	for i, existing := range r.handlers {
		if handlerID(existing) == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}
