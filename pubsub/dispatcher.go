// Package pubsub implements the local, single-process half of the
// messaging fabric: a hierarchical topic-prefix dispatcher with
// weakly-retained subscribers. Package endpoint layers networking on top
// of Dispatcher and package broker relays between endpoints.
package pubsub

import "sync"

// Dispatcher is a thread-safe, re-entrant publish-subscribe registry.
// Topics form a hierarchy: subscribing to topic (a, b) also receives any
// publication whose topic begins with (a, b). The zero value is ready to
// use.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[string][]*subscription
}

// New returns a ready-to-use Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		subs: make(map[string][]*subscription),
	}
}

func (d *Dispatcher) add(topic Topic, s *subscription) {
	key := normalize(topic).key()
	d.mu.Lock()
	if d.subs == nil {
		d.subs = make(map[string][]*subscription)
	}
	d.subs[key] = append(d.subs[key], s)
	d.mu.Unlock()
}

// RemoveSubscriber removes the first subscription on topic whose handle is
// h, by identity. It is a no-op if topic has no subscriptions or h is not
// among them.
func (d *Dispatcher) RemoveSubscriber(topic Topic, h Handle) {
	key := normalize(topic).key()
	d.mu.Lock()
	defer d.mu.Unlock()
	list, ok := d.subs[key]
	if !ok {
		return
	}
	for i, s := range list {
		if s.handle == h {
			d.subs[key] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// ClearSubscribers drops every registered subscription.
func (d *Dispatcher) ClearSubscribers() {
	d.mu.Lock()
	d.subs = make(map[string][]*subscription)
	d.mu.Unlock()
}

// Publish delivers args to every subscriber whose topic is a prefix of
// topic, longest prefix first, ending with the root (empty-sequence)
// subscribers. Each invoked subscriber receives the originally published
// topic, never the matched prefix.
//
// Publish is re-entrant: a subscriber may call Publish on the same
// Dispatcher, and the nested call runs to completion before the outer
// iteration resumes, because each topic's subscriber list is snapshotted
// before invocation.
func (d *Dispatcher) Publish(topic Topic, args Args) {
	orig := normalize(topic)
	t := orig
	for {
		d.deliverOne(t, orig, args)
		next, wasRoot := t.parent()
		if wasRoot {
			return
		}
		t = next
	}
}

// deliverOne invokes every live subscription registered exactly on t.
func (d *Dispatcher) deliverOne(t, orig Topic, args Args) {
	d.mu.Lock()
	list := d.subs[t.key()]
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)
	d.mu.Unlock()

	// A collected referent (handle or method owner) is silently skipped:
	// weak-reference resolution failing mid-iteration is expected, not an
	// error.
	for _, s := range snapshot {
		s.invoke(orig, args)
	}
}
