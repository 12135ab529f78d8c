// Package bus implements the client-side subscription and dispatch engine:
// building match rules from subscription requests, resolving well-known
// sender names, keeping the daemon's filter state in sync with the local
// match index, and fanning matched signals out to handlers.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"buswatch/internal/domain"
	"buswatch/internal/match"
	"buswatch/internal/metrics"
)

var (
	mDispatched  = metrics.Collector.Counter("buswatch_signals_dispatched_total", "Signals routed through dispatch", "")
	mMatches     = metrics.Collector.Counter("buswatch_matches_total", "Subscriptions matched by dispatched signals", "")
	mPanics      = metrics.Collector.Counter("buswatch_handler_panics_total", "Handler invocations that panicked", "")
	mResolutions = metrics.Collector.Counter("buswatch_name_resolutions_total", "GetNameOwner round-trips performed", "")
	mRules       = metrics.Collector.Gauge("buswatch_daemon_rules_active", "Match rules currently registered with the daemon", "")
)

// Connection is one logical bus connection: a transport, the match index fed
// by Subscribe/Unsubscribe, a cache of resolved sender names, and the
// refcounts that keep daemon-side match rules alive exactly as long as local
// subscriptions share them.
type Connection struct {
	kind      domain.BusType
	transport domain.Transport
	logger    *slog.Logger

	tree *match.Tree

	mu       sync.Mutex
	owners   map[string]string // well-known name -> unique name, this connection's lifetime
	ruleRefs map[string]int    // serialized rule -> live subscription count
	closed   bool

	// shared/refs are managed by the registry, under its lock.
	shared bool
	refs   int
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the connection's logger. The default discards nothing and
// writes to slog's default handler.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// New wraps an established transport in a Connection. Most callers want
// Acquire or Private instead, which also dial the transport.
func New(kind domain.BusType, t domain.Transport, opts ...Option) *Connection {
	c := &Connection{
		kind:      kind,
		transport: t,
		logger:    slog.Default(),
		tree:      match.NewTree(),
		owners:    make(map[string]string),
		ruleRefs:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BusType reports which bus instance this connection is attached to.
func (c *Connection) BusType() domain.BusType { return c.kind }

// UniqueName is the bus-assigned name of this connection.
func (c *Connection) UniqueName() string { return c.transport.UniqueName() }

// Subscribe arranges for h to be called for every signal matching the
// filter. A well-known sender name is resolved to its current owner first;
// the serialized rule is registered with the daemon before the subscription
// becomes visible locally, so registration failure leaves no trace.
func (c *Connection) Subscribe(ctx context.Context, h domain.Handler, f match.Filter) error {
	if h == nil {
		return &domain.InvalidFilterError{Reason: "nil handler"}
	}
	sender, err := c.resolveSender(ctx, f.Sender)
	if err != nil {
		return err
	}
	f.Sender = sender
	rule, err := match.NewRule(f)
	if err != nil {
		return err
	}
	rule.AddHandler(h)
	serialized := rule.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClosed
	}
	// Tell the daemon before touching local state: a rule the daemon knows
	// about but we don't yet is benign, the reverse would drop traffic.
	if c.ruleRefs[serialized] == 0 {
		if err := c.transport.AddMatch(ctx, serialized); err != nil {
			return &domain.RegistrationError{Rule: serialized, Err: err}
		}
		mRules.Inc()
	}
	c.ruleRefs[serialized]++
	c.tree.Add(rule)
	c.logger.Debug("subscribed", "rule", serialized)
	return nil
}

// Unsubscribe removes subscriptions with the same filter. A non-nil handler
// limits removal to subscriptions carrying that exact handler. The matching
// daemon-side rule is retracted when the last local subscription sharing its
// serialized form goes away. Unsubscribing a filter nothing matches is a
// no-op, not an error.
func (c *Connection) Unsubscribe(ctx context.Context, h domain.Handler, f match.Filter) error {
	sender, err := c.resolveSender(ctx, f.Sender)
	if err != nil {
		return err
	}
	f.Sender = sender
	key, err := match.NewRule(f)
	if err != nil {
		return err
	}

	removed := c.tree.Remove(key, h)
	if len(removed) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range removed {
		s := r.String()
		if c.ruleRefs[s] == 0 {
			continue
		}
		c.ruleRefs[s]--
		if c.ruleRefs[s] > 0 {
			continue
		}
		delete(c.ruleRefs, s)
		mRules.Dec()
		if c.closed {
			continue
		}
		if err := c.transport.RemoveMatch(ctx, s); err != nil {
			c.logger.Warn("cannot retract match rule", "rule", s, "err", err)
		}
	}
	return nil
}

// NameOwner resolves a well-known name to the unique name of its current
// owner, through the connection's cache. Unique names pass through.
func (c *Connection) NameOwner(ctx context.Context, name string) (string, error) {
	return c.resolveSender(ctx, name)
}

// resolveSender turns a well-known sender name into the unique name of its
// current owner, caching the answer for this connection's lifetime. Unique
// names (":" prefix) and empty senders pass through untouched.
func (c *Connection) resolveSender(ctx context.Context, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ":") {
		return name, nil
	}
	c.mu.Lock()
	owner, ok := c.owners[name]
	c.mu.Unlock()
	if ok {
		return owner, nil
	}

	mResolutions.Inc()
	owner, err := c.transport.GetNameOwner(ctx, name)
	if err != nil {
		var nre *domain.NameResolutionError
		if !errors.As(err, &nre) {
			err = &domain.NameResolutionError{Name: name, Err: err}
		}
		return "", err
	}

	c.mu.Lock()
	c.owners[name] = owner
	c.mu.Unlock()
	return owner, nil
}

// Dispatch routes one inbound signal to every matching subscription, in
// index-insertion order, each subscription's handlers in registration order.
// Delivery is best-effort fan-out: a panicking handler is logged and counted
// but never stops delivery to the rest.
func (c *Connection) Dispatch(sig domain.Signal) {
	mDispatched.Inc()
	matches := c.tree.FindMatches(sig)
	if len(matches) == 0 {
		return
	}
	mMatches.Add(int64(len(matches)))
	for _, m := range matches {
		d := domain.Delivery{Body: sig.Body, Keywords: bindKeywords(m, sig)}
		for _, h := range m.Handlers {
			c.invoke(h, d, sig)
		}
	}
}

func bindKeywords(m match.Match, sig domain.Signal) map[string]string {
	if m.SenderKeyword == "" && m.PathKeyword == "" && m.InterfaceKeyword == "" && m.MemberKeyword == "" {
		return nil
	}
	kw := make(map[string]string, 4)
	if m.SenderKeyword != "" {
		kw[m.SenderKeyword] = sig.Sender
	}
	if m.PathKeyword != "" {
		kw[m.PathKeyword] = sig.Path
	}
	if m.InterfaceKeyword != "" {
		kw[m.InterfaceKeyword] = sig.Interface
	}
	if m.MemberKeyword != "" {
		kw[m.MemberKeyword] = sig.Member
	}
	return kw
}

func (c *Connection) invoke(h domain.Handler, d domain.Delivery, sig domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			mPanics.Inc()
			c.logger.Error("signal handler panic",
				"member", sig.Member,
				"interface", sig.Interface,
				"sender", sig.Sender,
				"panic", r,
			)
		}
	}()
	h(d)
}

// Run pumps inbound signals from the transport into Dispatch until ctx is
// done or the transport closes. Handlers run on this goroutine, strictly in
// arrival order.
func (c *Connection) Run(ctx context.Context) error {
	sigs := c.transport.Signals()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-sigs:
			if !ok {
				return nil
			}
			c.Dispatch(sig)
		}
	}
}

// Close shuts the transport down. Idempotent; the match index dies with the
// connection, no per-rule retraction is attempted.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.transport.Close()
}
