package broker

import (
	"time"

	"go.bryk.io/pubsub/errors"
	"go.bryk.io/pubsub/wire"
)

// runForwarder is the broker's second goroutine. It first plays
// acceptor itself, directly on the listener, until it has classified the
// control connection (an Init token); only then does the real acceptor
// take over admitting new clients, and the forwarder settles into its
// steady-state event loop.
//
// This asymmetric startup exists because the forwarder must recognize
// the control connection before the client set is concurrently mutated
// by the acceptor; collapsing the two roles onto a shared listener for
// just this phase avoids a separate synchronization primitive.
func (b *Broker) runForwarder() error {
	for {
		raw, err := b.ln.Accept()
		if err != nil {
			return nil
		}
		c, err := wire.Accept(raw, b.authkey, b.handshakeTimeout)
		if err != nil {
			_ = raw.Close()
			continue
		}
		_ = c.SetReadDeadline(time.Now().Add(b.handshakeTimeout))
		msg, err := c.Recv()
		_ = c.SetReadDeadline(time.Time{})
		if err != nil {
			_ = c.Close()
			continue
		}

		switch msg.Kind {
		case wire.KindInit:
			if err := c.Send(wire.Init()); err != nil {
				_ = c.Close()
				continue
			}
			b.mu.Lock()
			b.control = c
			b.clients[c] = struct{}{}
			b.watched[c] = struct{}{}
			b.mu.Unlock()
			go b.watchConn(c)
			return b.runForwarderMainLoop()
		case wire.KindNewPubSub:
			if err := c.Send(wire.NewPubSub()); err != nil {
				_ = c.Close()
				continue
			}
			b.mu.Lock()
			b.clients[c] = struct{}{}
			b.mu.Unlock()
			b.metrics.ClientsConnected.Inc()
			b.metrics.ClientsTotal.Inc()
		case wire.KindStop:
			_ = c.Close()
		default:
			b.pending = append(b.pending, pendingMessage{src: c, msg: msg})
		}
	}
}

// errReaderPanicked stands in for the error on a forwarderEvent raised
// by watchConn's panic recovery, so the main loop retires the
// connection exactly as it would any other broken reader.
var errReaderPanicked = errors.New("broker: connection reader panicked")

// watchConn runs for the lifetime of a client connection, turning its
// blocking Recv calls into events on the forwarder's shared channel. A
// panic while decoding a malformed frame is contained here: it is
// reported as a closed connection rather than taking down the broker.
func (b *Broker) watchConn(c *wire.Conn) {
	defer func() {
		if r := recover(); r != nil {
			if rec := errors.FromRecover(r); rec != nil {
				b.log.Errorf("recovered reading connection: %v", rec)
			}
			b.events <- forwarderEvent{conn: c, err: errReaderPanicked}
		}
	}()
	for {
		msg, err := c.Recv()
		b.events <- forwarderEvent{conn: c, msg: msg, err: err}
		if err != nil {
			return
		}
	}
}

// syncReaders spawns a watchConn goroutine for every client the acceptor
// has added since the last call, so that newly admitted connections
// start contributing events without the forwarder polling the set.
func (b *Broker) syncReaders() {
	b.mu.Lock()
	var fresh []*wire.Conn
	for c := range b.clients {
		if _, ok := b.watched[c]; !ok {
			b.watched[c] = struct{}{}
			fresh = append(fresh, c)
		}
	}
	b.mu.Unlock()
	for _, c := range fresh {
		go b.watchConn(c)
	}
}

// runForwarderMainLoop is the steady-state loop: wait for at least one
// readable connection, classify every event currently available, retire
// closed connections, and run one forward step, until a stop is recorded
// on the control connection.
func (b *Broker) runForwarderMainLoop() error {
	for {
		b.syncReaders()

		b.mu.Lock()
		empty := len(b.clients) == 0
		b.mu.Unlock()
		if empty {
			return nil
		}

		first := <-b.events
		events := []forwarderEvent{first}
	drain:
		for {
			select {
			case e := <-b.events:
				events = append(events, e)
			default:
				break drain
			}
		}

		closed := make(map[*wire.Conn]struct{})
		stop := false
		for _, e := range events {
			switch {
			case e.conn == b.control:
				if e.err != nil || e.msg.Kind == wire.KindStop {
					stop = true
					continue
				}
				_ = b.control.Send(e.msg)
			case e.err != nil || e.msg.Kind == wire.KindStop:
				closed[e.conn] = struct{}{}
				_ = e.conn.Close()
			default:
				b.pending = append(b.pending, pendingMessage{src: e.conn, msg: e.msg})
			}
		}

		if len(closed) > 0 {
			b.mu.Lock()
			for c := range closed {
				delete(b.clients, c)
				delete(b.watched, c)
			}
			b.mu.Unlock()
			b.metrics.ClientsConnected.Sub(float64(len(closed)))
		}

		if stop {
			b.closeAllClients()
			return nil
		}

		b.forwardStep(closed)
	}
}

// forwardStep delivers every pending message to every client but its
// source, the control connection, and any destination closed in this
// same pass. A connection error closes dst and removes it from the
// client set; a value error (the message itself could not be encoded
// for this destination) is logged and dst is left connected.
func (b *Broker) forwardStep(alreadyClosed map[*wire.Conn]struct{}) {
	b.mu.Lock()
	snapshot := make([]*wire.Conn, 0, len(b.clients))
	for c := range b.clients {
		snapshot = append(snapshot, c)
	}
	b.mu.Unlock()

	pending := b.pending
	b.pending = nil

	closed := make(map[*wire.Conn]struct{})
	for _, p := range pending {
		for _, dst := range snapshot {
			if dst == p.src || dst == b.control {
				continue
			}
			if _, skip := alreadyClosed[dst]; skip {
				continue
			}
			if _, skip := closed[dst]; skip {
				continue
			}
			if err := dst.Send(p.msg); err != nil {
				if errors.Is(err, wire.ErrEncodeValue) {
					b.log.Warningf("dropping unencodable publication: %v", err)
					b.metrics.ForwardErrors.Inc()
					continue
				}
				closed[dst] = struct{}{}
				_ = dst.Close()
				b.metrics.ForwardErrors.Inc()
				continue
			}
			b.metrics.MessagesForwarded.Inc()
		}
	}

	if len(closed) > 0 {
		b.mu.Lock()
		for c := range closed {
			delete(b.clients, c)
			delete(b.watched, c)
		}
		b.mu.Unlock()
		b.metrics.ClientsConnected.Sub(float64(len(closed)))
	}
}

// closeAllClients runs on forwarder exit: every remaining client,
// including the control connection, is closed and the set emptied.
func (b *Broker) closeAllClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.Close()
	}
	b.clients = make(map[*wire.Conn]struct{})
	b.watched = make(map[*wire.Conn]struct{})
}
