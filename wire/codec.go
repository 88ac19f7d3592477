package wire

import (
	"bytes"
	"encoding/gob"
	"net"

	"go.bryk.io/pubsub/errors"
)

// ErrEncodeValue marks a Send failure that happened while gob-encoding
// the message itself, e.g. an Args value of an unregistered concrete
// type, as opposed to a failure writing the resulting bytes to the
// connection. Callers can tell the two apart with errors.Is(err,
// wire.ErrEncodeValue): the connection is still healthy on this path,
// only the one offending message was dropped.
var ErrEncodeValue = errors.New("wire: value cannot be encoded")

// Conn exchanges length-prefixed, gob-encoded Messages over an
// authenticated net.Conn. Callers that publish Args values other than
// Go's predeclared basic types must gob.Register the concrete type
// before the first Send/Recv, as required by any gob stream.
type Conn struct {
	net.Conn
}

// NewConn wraps an already-connected, already-authenticated net.Conn.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Send encodes msg and writes it as a single length-prefixed frame. An
// encoding failure (see ErrEncodeValue) leaves the connection untouched;
// a framing/write failure means the connection itself is no longer
// usable.
func (c *Conn) Send(msg Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return errors.Wrapf(ErrEncodeValue, "encode message: %v", err)
	}
	return writeFrame(c.Conn, buf.Bytes())
}

// Recv reads and decodes the next frame as a Message.
func (c *Conn) Recv() (Message, error) {
	b, err := readFrame(c.Conn)
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&msg); err != nil {
		return Message{}, errors.Wrap(err, "decode message")
	}
	return msg, nil
}
