// Package broker implements the central relay process of the messaging
// fabric: a listener that accepts authenticated endpoint connections and
// fans out every received publication to every other connected endpoint.
// Its work is split between an acceptor and a forwarder goroutine that
// coordinate over a self-looped, authenticated control connection; the
// forwarder is fed by one reader goroutine per connection.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.bryk.io/pubsub/errors"
	"go.bryk.io/pubsub/internal/xlog"
	"go.bryk.io/pubsub/metrics"
	"go.bryk.io/pubsub/wire"
)

// defaultHandshakeTimeout bounds how long the acceptor and the
// forwarder's startup phase wait for a connecting endpoint to complete
// its handshake.
const defaultHandshakeTimeout = 10 * time.Second

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithLogger attaches a structured logger. Defaults to a discard logger.
func WithLogger(l xlog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics attaches a metrics sink. Defaults to a sink on its own
// private registry under the default "pubsub" namespace, so a broker is
// always usable standalone.
func WithMetrics(m *metrics.Broker) Option {
	return func(b *Broker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithHandshakeTimeout overrides how long a connecting endpoint has to
// complete authentication plus its handshake token.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.handshakeTimeout = d
		}
	}
}

// Broker relays publications between authenticated endpoint connections.
// The zero value is not usable; construct with New.
type Broker struct {
	network string
	address string
	authkey []byte

	handshakeTimeout time.Duration
	log              xlog.Logger
	metrics          *metrics.Broker

	ln            net.Listener
	controlClient *wire.Conn
	ready         chan struct{}
	shutdownOnce  sync.Once

	mu      sync.Mutex
	clients map[*wire.Conn]struct{}
	watched map[*wire.Conn]struct{}
	control *wire.Conn

	pending []pendingMessage
	events  chan forwarderEvent
}

// pendingMessage is one payload awaiting forwarding, tagged with the
// connection it arrived on so the forward step can skip self-delivery.
type pendingMessage struct {
	src *wire.Conn
	msg wire.Message
}

// forwarderEvent is one Recv outcome from a watched connection.
type forwarderEvent struct {
	conn *wire.Conn
	msg  wire.Message
	err  error
}

// New returns a Broker listening on network/address (as accepted by
// net.Listen, e.g. "tcp", "127.0.0.1:0") and authenticating connections
// against authkey.
func New(network, address string, authkey []byte, opts ...Option) *Broker {
	b := &Broker{
		network:          network,
		address:          address,
		authkey:          authkey,
		handshakeTimeout: defaultHandshakeTimeout,
		log:              xlog.Discard(),
		metrics:          metrics.NewBroker(""),
		ready:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Addr returns the bound listener address. Valid only after Ready is
// closed.
func (b *Broker) Addr() string {
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// Ready returns a channel that is closed once the broker's listener is
// bound and its control connection established, i.e. once it is safe
// for other endpoints to dial Addr().
func (b *Broker) Ready() <-chan struct{} {
	return b.ready
}

// Start binds the listener, establishes the control connection and runs
// the acceptor and forwarder loops until ctx is cancelled or Stop is
// called, blocking the calling goroutine. It returns once both the
// acceptor and forwarder have exited.
func (b *Broker) Start(ctx context.Context) error {
	ln, err := net.Listen(b.network, b.address)
	if err != nil {
		return errors.Wrap(err, "broker: listen")
	}
	b.ln = ln
	b.clients = make(map[*wire.Conn]struct{})
	b.watched = make(map[*wire.Conn]struct{})
	b.events = make(chan forwarderEvent, 64)

	g, _ := errgroup.WithContext(ctx)
	g.Go(b.runForwarder)

	cc, err := wire.Dial(b.network, ln.Addr().String(), b.authkey)
	if err != nil {
		_ = b.shutdown()
		return errors.Wrap(err, "broker: open control connection")
	}
	if err := cc.Send(wire.Init()); err != nil {
		_ = b.shutdown()
		return errors.Wrap(err, "broker: send control init")
	}
	echo, err := cc.Recv()
	if err != nil {
		_ = b.shutdown()
		return errors.Wrap(err, "broker: read control init echo")
	}
	if echo.Kind != wire.KindInit {
		_ = b.shutdown()
		return errors.New("broker: control handshake rejected")
	}
	b.controlClient = cc
	close(b.ready)
	b.log.Infof("broker listening on %s", b.Addr())

	acceptorDone := make(chan struct{})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-acceptorDone:
		}
		return b.shutdown()
	})
	g.Go(func() error {
		defer close(acceptorDone)
		return b.runAcceptor()
	})

	return g.Wait()
}

// Stop requests a graceful shutdown: the forwarder is told to exit via
// the control connection and the listener is closed, unblocking the
// acceptor. Start returns once both have exited. Safe to call more than
// once or concurrently with Start's own ctx-triggered shutdown.
func (b *Broker) Stop() error {
	return b.shutdown()
}

func (b *Broker) shutdown() error {
	b.shutdownOnce.Do(func() {
		if b.controlClient != nil {
			// Unacknowledged by protocol rule; the forwarder's exit is
			// observed by Start's caller via Wait, not by an echo here.
			_ = b.controlClient.Send(wire.Stop())
		}
		if b.ln != nil {
			_ = b.ln.Close()
		}
	})
	return nil
}

// runAcceptor accepts endpoint connections one at a time, completing the
// authentication and handshake for each before accepting the next,
// matching the single accept thread the design assigns this role.
func (b *Broker) runAcceptor() error {
	for {
		raw, err := b.ln.Accept()
		if err != nil {
			return nil // listener closed: graceful shutdown.
		}
		if err := b.admit(raw); err != nil {
			b.log.Warningf("dropping connection: %v", err)
		}
	}
}

// admit authenticates raw, validates its handshake token, adds it to the
// client set and rendezvouses with the forwarder before returning.
func (b *Broker) admit(raw net.Conn) error {
	c, err := wire.Accept(raw, b.authkey, b.handshakeTimeout)
	if err != nil {
		_ = raw.Close()
		b.metrics.AuthFailures.Inc()
		return errors.Wrap(err, "authentication failed")
	}

	_ = c.SetReadDeadline(time.Now().Add(b.handshakeTimeout))
	msg, err := c.Recv()
	_ = c.SetReadDeadline(time.Time{})
	if err != nil {
		_ = c.Close()
		b.metrics.HandshakeTimeouts.Inc()
		return errors.Wrap(err, "handshake timeout")
	}
	if msg.Kind != wire.KindNewPubSub {
		_ = c.Close()
		return errors.New("unexpected handshake token")
	}
	if err := c.Send(wire.NewPubSub()); err != nil {
		_ = c.Close()
		return errors.Wrap(err, "echo handshake")
	}

	connID := uuid.NewString()
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.metrics.ClientsConnected.Inc()
	b.metrics.ClientsTotal.Inc()
	b.log.WithField("conn_id", connID).Info("endpoint connected")

	if err := b.controlClient.Send(wire.NewConn()); err != nil {
		return errors.Wrap(err, "notify forwarder")
	}
	if _, err := b.controlClient.Recv(); err != nil {
		return errors.Wrap(err, "await forwarder rendezvous")
	}
	return nil
}
