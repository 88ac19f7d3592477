package pubsub

import "weak"

// Args is the named-argument payload delivered to a subscriber alongside
// the originally published topic.
type Args map[string]any

// Subscriber is a callable invoked on a matching publication. The first
// argument is always the topic as originally published, never the
// (possibly shorter) prefix the subscriber is registered on.
type Subscriber func(topic Topic, args Args)

// Handle identifies a previously added subscription. It is returned by
// AddSubscriber/AddMethodSubscriber and is the unit of weak retention:
// callers must keep the handle referenced for as long as they want to
// keep receiving messages. Handles compare by identity, matching the
// recommended identity-based semantics for subscriber removal.
type Handle interface {
	// retained pins the handle's own liveness; it exists only so the
	// *subscription held by the table can weakly reference *this* object
	// rather than the subscriber func value, which Go cannot take a weak
	// pointer to directly.
	retained()
}

// subscription is what the table actually stores: a weak reference to the
// handle (or, for method subscribers, to the owner) plus the invocation
// logic. invoke reports whether the referent is still alive and, if so,
// performs the call.
type subscription struct {
	handle Handle
	invoke func(orig Topic, args Args) bool // false => referent collected
}

// plainHandle is the Handle implementation returned by AddSubscriber. The
// caller must keep a strong reference to it (e.g. as a struct field); once
// it becomes unreachable and is collected, the weak.Pointer below resolves
// to nil and the subscription is skipped on the next publish without
// error.
type plainHandle struct {
	fn Subscriber
}

func (*plainHandle) retained() {}

// AddSubscriber registers subscriber on topic and returns a Handle the
// caller must retain. It is the Go analogue of mpubsub's weakref.ref path
// (a plain callable, not a bound method): there is no object whose
// lifetime can be tracked other than the handle itself, so the handle is
// the thing that must stay alive.
func (d *Dispatcher) AddSubscriber(topic Topic, subscriber Subscriber) Handle {
	h := &plainHandle{fn: subscriber}
	wp := weak.Make(h)
	d.add(topic, &subscription{
		handle: h,
		invoke: func(orig Topic, args Args) bool {
			ph := wp.Value()
			if ph == nil {
				return false
			}
			ph.fn(orig, args)
			return true
		},
	})
	return h
}

// methodHandle backs AddMethodSubscriber. It carries no payload of its own:
// the weak reference tracked by the table is to the owner, not to this
// handle, so method subscriptions die with their owner exactly like
// mpubsub's WeakMethod tracks __self__ rather than the bound closure. The
// unused byte keeps it non-zero-size, so every handle has its own address
// and compares distinct from every other.
type methodHandle struct{ _ byte }

func (*methodHandle) retained() {}

// AddMethodSubscriber registers a method-shaped subscriber: fn is invoked
// with owner as long as owner is alive. This mirrors mpubsub's detection
// of bound methods (hasattr(subscriber, '__self__')) and weak-referencing
// the owner instead of the ephemeral bound closure. When owner is garbage
// collected, subsequent publications silently skip this subscription.
func AddMethodSubscriber[T any](d *Dispatcher, topic Topic, owner *T, fn func(owner *T, topic Topic, args Args)) Handle {
	wp := weak.Make(owner)
	h := &methodHandle{}
	d.add(topic, &subscription{
		handle: h,
		invoke: func(orig Topic, args Args) bool {
			o := wp.Value()
			if o == nil {
				return false
			}
			fn(o, orig, args)
			return true
		},
	})
	return h
}
