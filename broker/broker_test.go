package broker

import (
	"context"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"go.bryk.io/pubsub/endpoint"
	"go.bryk.io/pubsub/pubsub"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Connection-reader goroutines can still be blocked in a network
		// read, winding down with their closed connection, when a test exits.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var testAuthkey = []byte("broker-test-secret")

func startTestBroker(t *testing.T) (*Broker, func()) {
	t.Helper()
	b := New("tcp", "127.0.0.1:0", testAuthkey)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	select {
	case <-b.Ready():
	case err := <-done:
		t.Fatalf("broker exited before becoming ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("broker never became ready")
	}

	return b, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("broker did not shut down")
		}
	}
}

func dialEndpoint(t *testing.T, b *Broker) *endpoint.Endpoint {
	t.Helper()
	e := endpoint.New()
	if err := e.SetBroker("tcp", b.Addr(), testAuthkey); err != nil {
		t.Fatalf("set broker: %v", err)
	}
	if err := e.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return e
}

// TestFanOutExcludesSource implements scenario S5: a publishes, b and c
// each receive exactly one copy, a does not receive an extra copy from
// the broker on top of its own local dispatch.
func TestFanOutExcludesSource(t *testing.T) {
	assert := tdd.New(t)
	b, stop := startTestBroker(t)
	defer stop()

	a := dialEndpoint(t, b)
	defer a.Disconnect()
	eb := dialEndpoint(t, b)
	defer eb.Disconnect()
	ec := dialEndpoint(t, b)
	defer ec.Disconnect()

	var aHits, bHits, cHits int
	ha := a.AddSubscriber(pubsub.New("d"), func(pubsub.Topic, pubsub.Args) { aHits++ })
	hb := eb.AddSubscriber(pubsub.New("d"), func(pubsub.Topic, pubsub.Args) { bHits++ })
	hc := ec.AddSubscriber(pubsub.New("d"), func(pubsub.Topic, pubsub.Args) { cHits++ })
	defer func() { _, _, _ = ha, hb, hc }()

	a.Publish(pubsub.New("d"), pubsub.Args{"i": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := eb.Poll(ctx, time.Second)
	assert.NoError(err)
	assert.True(ok)
	ok, err = ec.Poll(ctx, time.Second)
	assert.NoError(err)
	assert.True(ok)

	// Give the broker a moment in case a stray extra copy is in flight.
	_, _ = a.Poll(ctx, 100*time.Millisecond)

	assert.Equal(1, aHits, "publisher dispatches locally exactly once")
	assert.Equal(1, bHits)
	assert.Equal(1, cHits)
}

// TestLocalSuffixNeverReachesOtherEndpoints implements scenario S6.
func TestLocalSuffixNeverReachesOtherEndpoints(t *testing.T) {
	assert := tdd.New(t)
	b, stop := startTestBroker(t)
	defer stop()

	a := dialEndpoint(t, b)
	defer a.Disconnect()
	eb := dialEndpoint(t, b)
	defer eb.Disconnect()

	var aHits, bHits int
	ha := a.AddSubscriber(pubsub.New("d"), func(pubsub.Topic, pubsub.Args) { aHits++ })
	hb := eb.AddSubscriber(pubsub.New("d"), func(pubsub.Topic, pubsub.Args) { bHits++ })
	defer func() { _, _ = ha, hb }()

	a.Publish(pubsub.New("d", "*local"), pubsub.Args{"i": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	ok, _ := eb.Poll(ctx, 200*time.Millisecond)

	assert.Equal(1, aHits)
	assert.Equal(0, bHits)
	assert.False(ok)
}

func TestBrokerStopClosesConnections(t *testing.T) {
	assert := tdd.New(t)
	b, stop := startTestBroker(t)

	a := dialEndpoint(t, b)
	stop()

	ok, err := a.Poll(context.Background(), time.Second)
	assert.NoError(err)
	assert.False(ok, "a closed broker connection ends polling without an error")
}
