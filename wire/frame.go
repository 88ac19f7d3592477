// Package wire implements the length-prefixed, authenticated protocol
// shared by package endpoint and package broker: a mutual challenge-
// response handshake followed by a stream of gob-encoded Message frames.
package wire

import (
	"encoding/binary"
	"io"

	"go.bryk.io/pubsub/errors"
)

// maxFrameSize bounds the length prefix so a corrupt or hostile peer
// cannot force an unbounded allocation.
const maxFrameSize = 16 << 20

func writeFrame(w io.Writer, b []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, errors.New("frame exceeds maximum size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	return buf, nil
}
