package pubsub

import (
	"runtime"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestPrefixDelivery(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	var mu sync.Mutex
	var seen []Topic

	record := func(topic Topic, _ Args) {
		mu.Lock()
		seen = append(seen, topic)
		mu.Unlock()
	}

	hRoot := d.AddSubscriber(New(), record)
	hAB := d.AddSubscriber(New("a", "b"), record)
	hABC := d.AddSubscriber(New("a", "b", "c"), record)
	_ = hRoot
	_ = hAB
	_ = hABC

	d.Publish(New("a", "b", "c"), Args{"n": 1})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(seen, 3, "root, (a,b) and (a,b,c) subscribers all fire")
	// longest prefix first, root last.
	assert.True(seen[0].Equal(New("a", "b", "c")))
	assert.True(seen[1].Equal(New("a", "b", "c")))
	assert.True(seen[2].Equal(New("a", "b", "c")))
}

func TestUnrelatedTopicNotDelivered(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	called := false
	h := d.AddSubscriber(New("a", "b"), func(Topic, Args) { called = true })
	defer runtime.KeepAlive(h)

	d.Publish(New("x", "y"), Args{})
	assert.False(called)
}

func TestRemoveSubscriber(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	var count int
	h := d.AddSubscriber(New("a"), func(Topic, Args) { count++ })
	d.Publish(New("a"), Args{})
	assert.Equal(1, count)

	d.RemoveSubscriber(New("a"), h)
	d.Publish(New("a"), Args{})
	assert.Equal(1, count, "no further delivery after removal")
}

func TestClearSubscribers(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	var count int
	h := d.AddSubscriber(New("a"), func(Topic, Args) { count++ })
	defer runtime.KeepAlive(h)

	d.ClearSubscribers()
	d.Publish(New("a"), Args{})
	assert.Equal(0, count)
}

func TestWeakSubscriberCollected(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	var count int
	func() {
		h := d.AddSubscriber(New("a"), func(Topic, Args) { count++ })
		runtime.KeepAlive(h)
	}()

	// The handle above is now unreachable; force collection and give the
	// runtime a chance to finalize weak pointers before publishing.
	runtime.GC()
	runtime.GC()

	d.Publish(New("a"), Args{})
	assert.Equal(0, count, "collected handle must not be invoked")
}

type owner struct {
	hits int
}

func (o *owner) onMessage(_ Topic, _ Args) {
	o.hits++
}

func TestMethodSubscriberTracksOwnerLifetime(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	o := &owner{}
	h := AddMethodSubscriber(d, New("a"), o, (*owner).onMessage)
	defer runtime.KeepAlive(h)

	d.Publish(New("a"), Args{})
	assert.Equal(1, o.hits)

	o = nil
	runtime.GC()
	runtime.GC()

	// The table's reference to the owner is weak; publishing again must not
	// panic even though the strong reference above was dropped. Whether the
	// original owner was actually collected is a GC timing detail the test
	// does not assert on.
	assert.NotPanics(func() {
		d.Publish(New("a"), Args{})
	})
}

func TestPublishIsReentrant(t *testing.T) {
	assert := tdd.New(t)
	d := New()

	var inner bool
	hInner := d.AddSubscriber(New("b"), func(Topic, Args) { inner = true })
	defer runtime.KeepAlive(hInner)

	hOuter := d.AddSubscriber(New("a"), func(Topic, Args) {
		d.Publish(New("b"), Args{})
	})
	defer runtime.KeepAlive(hOuter)

	done := make(chan struct{})
	go func() {
		d.Publish(New("a"), Args{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested Publish deadlocked")
	}
	assert.True(inner)
}

func TestTopicIsLocal(t *testing.T) {
	assert := tdd.New(t)
	assert.True(New("a", "b", localSuffix).IsLocal())
	assert.False(New("a", "b").IsLocal())
	assert.False(New().IsLocal())
}
