// Package endpoint extends the local dispatcher (package pubsub) with a
// single authenticated connection to a broker. It multiplexes outbound
// publications and inbound deliveries through a re-entrancy-guarded
// flush loop, and never blocks a subscriber's publish call on the
// network.
package endpoint

import (
	"context"
	"sync"
	"time"

	"go.bryk.io/pubsub/errors"
	"go.bryk.io/pubsub/internal/xlog"
	"go.bryk.io/pubsub/pubsub"
	"go.bryk.io/pubsub/wire"
)

// Sentinel connection-lifecycle errors. These are recoverable failures
// surfaced to the caller, never panics.
var (
	ErrAlreadyConnected  = errors.New("endpoint: already connected")
	ErrNotConnected      = errors.New("endpoint: not connected")
	ErrNoBrokerConfigured = errors.New("endpoint: no broker configured")
)

// Endpoint is a Dispatcher that can additionally relay publications to
// and from a broker over a single authenticated connection. The zero
// value is not usable; construct with New.
type Endpoint struct {
	*pubsub.Dispatcher

	log xlog.Logger

	mu      sync.Mutex
	network string
	address string
	authkey []byte
	conn    *wire.Conn
	inbox   chan wire.Message

	flushing       bool
	pendingSend    []wire.Message
	pendingPublish []wire.Message
}

// New returns a disconnected Endpoint backed by a fresh Dispatcher.
func New() *Endpoint {
	return &Endpoint{
		Dispatcher: pubsub.New(),
		log:        xlog.Discard(),
	}
}

// SetLogger attaches a logger for connection-lifecycle and flush
// warnings. Defaults to a discard logger.
func (e *Endpoint) SetLogger(l xlog.Logger) {
	if l == nil {
		l = xlog.Discard()
	}
	e.mu.Lock()
	e.log = l
	e.mu.Unlock()
}

// SetBroker records the broker's transport coordinates and shared
// authentication key. It fails if the endpoint is currently connected.
func (e *Endpoint) SetBroker(network, address string, authkey []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return ErrAlreadyConnected
	}
	e.network, e.address, e.authkey = network, address, authkey
	return nil
}

// Connect opens an authenticated connection to the configured broker and
// completes the endpoint handshake. It fails if already connected or if
// no broker has been configured.
func (e *Endpoint) Connect() error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	network, address, authkey := e.network, e.address, e.authkey
	e.mu.Unlock()

	if address == "" {
		return ErrNoBrokerConfigured
	}

	c, err := wire.Dial(network, address, authkey)
	if err != nil {
		return errors.Wrap(err, "connect to broker")
	}
	if err := c.Send(wire.NewPubSub()); err != nil {
		_ = c.Close()
		return errors.Wrap(err, "send handshake")
	}
	echo, err := c.Recv()
	if err != nil {
		_ = c.Close()
		return errors.Wrap(err, "read handshake echo")
	}
	if echo.Kind != wire.KindNewPubSub {
		_ = c.Close()
		return errors.New("endpoint: broker rejected handshake")
	}

	inbox := make(chan wire.Message, 256)
	e.mu.Lock()
	e.conn = c
	e.inbox = inbox
	e.mu.Unlock()

	go e.receive(c, inbox)
	return nil
}

// receive runs on its own goroutine for the lifetime of a connection,
// turning conn's blocking Recv into the channel the flush loop drains
// non-blockingly. It exits, closing inbox, once Recv fails (EOF or a
// transport error after the endpoint has disconnected) or recovers from
// a panic while decoding a malformed frame.
func (e *Endpoint) receive(c *wire.Conn, inbox chan wire.Message) {
	defer close(inbox)
	defer func() {
		if r := recover(); r != nil {
			if rec := errors.FromRecover(r); rec != nil {
				e.log.Errorf("recovered reading broker connection: %v", rec)
			}
		}
	}()
	for {
		msg, err := c.Recv()
		if err != nil {
			return
		}
		inbox <- msg
	}
}

// Disconnect sends the stop sentinel, closes the connection and clears
// the outbound queue. It fails if not currently connected.
func (e *Endpoint) Disconnect() error {
	e.mu.Lock()
	c := e.conn
	if c == nil {
		e.mu.Unlock()
		return ErrNotConnected
	}
	e.conn = nil
	e.pendingSend = nil
	e.mu.Unlock()

	_ = c.Send(wire.Stop()) // unacknowledged, best-effort
	return c.Close()
}

// connected reports whether a broker connection is currently open.
func (e *Endpoint) connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Publish overrides the embedded Dispatcher's Publish. If the endpoint is
// disconnected, or topic ends with the reserved local-only suffix, the
// message is only dispatched locally. Otherwise it is enqueued for the
// broker and for local dispatch, and the flush loop is invoked.
func (e *Endpoint) Publish(topic pubsub.Topic, args pubsub.Args) {
	if !e.connected() || topic.IsLocal() {
		e.Dispatcher.Publish(topic, args)
		return
	}

	msg := wire.Payload([]string(topic), map[string]any(args))
	e.mu.Lock()
	e.pendingSend = append(e.pendingSend, msg)
	e.pendingPublish = append(e.pendingPublish, msg)
	already := e.flushing
	e.mu.Unlock()

	if !already {
		e.flush()
	}
}

// Poll waits up to timeout for broker input (timeout < 0 blocks until
// either a message arrives or ctx is done). On any input it drains every
// currently queued inbound message and runs the flush loop, returning
// true. It returns false, nil on a plain timeout, and fails if the
// endpoint is not connected.
func (e *Endpoint) Poll(ctx context.Context, timeout time.Duration) (bool, error) {
	e.mu.Lock()
	inbox := e.inbox
	conn := e.conn
	e.mu.Unlock()
	if inbox == nil || conn == nil {
		return false, ErrNotConnected
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout >= 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case msg, ok := <-inbox:
		if !ok {
			return false, nil
		}
		e.mu.Lock()
		e.pendingPublish = append(e.pendingPublish, msg)
		already := e.flushing
		e.mu.Unlock()
		if !already {
			e.flush()
		}
		return true, nil
	case <-timeoutCh:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// WaitForever repeatedly polls with no timeout until ctx is cancelled or
// the connection is lost, equivalent to an unbounded loop of Poll calls.
func (e *Endpoint) WaitForever(ctx context.Context) error {
	for {
		ok, err := e.Poll(ctx, -1)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// flush is the re-entrancy-guarded interleaving loop: it alternates
// between non-blockingly draining inbound messages, sending one queued
// outbound message, and fully draining queued inbound messages into
// local dispatch, until both queues are empty or the connection dies.
// flush must never be called while already flushing; callers check the
// flushing flag before invoking it.
func (e *Endpoint) flush() {
	e.mu.Lock()
	if e.flushing {
		e.mu.Unlock()
		return
	}
	e.flushing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.flushing = false
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()
		inbox := e.inbox
		hasSend := len(e.pendingSend) > 0
		hasPublish := len(e.pendingPublish) > 0
		alive := e.conn != nil
		e.mu.Unlock()

		if !alive || (!hasSend && !hasPublish) {
			return
		}

		e.drainInboxNonBlocking(inbox)

		if hasSend {
			e.sendOne()
		}

		e.drainPendingPublish()
	}
}

// drainInboxNonBlocking moves every currently-ready message from inbox
// into pendingPublish without blocking.
func (e *Endpoint) drainInboxNonBlocking(inbox chan wire.Message) {
	if inbox == nil {
		return
	}
	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			e.mu.Lock()
			e.pendingPublish = append(e.pendingPublish, msg)
			e.mu.Unlock()
		default:
			return
		}
	}
}

// sendOne pops the oldest queued outbound message and sends it. A
// connection-reset style failure drops the connection and clears the
// remaining outbound queue (already-received inbound messages are still
// delivered locally). A value error, the message itself could not be
// encoded, e.g. an Args value of an unregistered type, leaves the
// connection intact: the bad message is dropped and logged, and the
// loop continues sending the rest of the queue.
func (e *Endpoint) sendOne() {
	e.mu.Lock()
	if len(e.pendingSend) == 0 {
		e.mu.Unlock()
		return
	}
	msg := e.pendingSend[0]
	e.pendingSend = e.pendingSend[1:]
	c := e.conn
	e.mu.Unlock()

	if c == nil {
		return
	}
	err := c.Send(msg)
	if err == nil {
		return
	}
	if errors.Is(err, wire.ErrEncodeValue) {
		e.log.Warningf("dropping unencodable publication: %v", err)
		return
	}
	e.mu.Lock()
	e.pendingSend = nil
	e.conn = nil
	e.log.Warningf("broker connection lost, dropping outbound queue: %v", err)
	e.mu.Unlock()
	_ = c.Close()
}

// drainPendingPublish dispatches every message currently queued for
// local delivery, fully, before returning to the caller's loop. Nested
// Publish calls made by subscribers during this drain append to
// pendingPublish and are picked up by the next iteration of this same
// drain, never by a recursive flush.
func (e *Endpoint) drainPendingPublish() {
	for {
		e.mu.Lock()
		if len(e.pendingPublish) == 0 {
			e.mu.Unlock()
			return
		}
		msg := e.pendingPublish[0]
		e.pendingPublish = e.pendingPublish[1:]
		e.mu.Unlock()

		e.Dispatcher.Publish(pubsub.Topic(msg.Topic), pubsub.Args(msg.Args))
	}
}
