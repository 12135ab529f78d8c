package domain

// Signal is a one-way broadcast notification received from the bus: a member
// name qualified by an interface, the emitting connection and object path,
// and the positional argument values.
type Signal struct {
	Member    string
	Interface string
	Sender    string // unique connection name of the emitter
	Path      string
	Body      []any
}

// Delivery is what a subscribed handler receives for one matched signal.
type Delivery struct {
	// Body holds the signal's positional arguments, unmodified.
	Body []any
	// Keywords carries the matched message's sender, path, interface or
	// member under the names the subscriber asked for when it registered.
	// Nil when the subscription requested no keyword bindings.
	Keywords map[string]string
}

// Handler is invoked once per matching signal. Handlers attached to the same
// subscription fire in registration order.
type Handler func(Delivery)
