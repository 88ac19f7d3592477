package wire

import (
	"net"
	"time"

	"go.bryk.io/pubsub/errors"
)

// Dial connects to address over network, runs the mutual authentication
// handshake with authkey, and returns a ready-to-use Conn.
func Dial(network, address string, authkey []byte) (*Conn, error) {
	c, err := net.Dial(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	if err := ClientAuthenticate(c, authkey); err != nil {
		_ = c.Close()
		return nil, err
	}
	return NewConn(c), nil
}

// Accept authenticates an already net.Listener-accepted connection,
// playing the server role. deadline, if positive, bounds the entire
// handshake; it is cleared before Accept returns successfully.
func Accept(raw net.Conn, authkey []byte, deadline time.Duration) (*Conn, error) {
	if deadline > 0 {
		_ = raw.SetDeadline(time.Now().Add(deadline))
	}
	if err := ServerAuthenticate(raw, authkey); err != nil {
		return nil, err
	}
	if deadline > 0 {
		_ = raw.SetDeadline(time.Time{})
	}
	return NewConn(raw), nil
}
