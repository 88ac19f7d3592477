package wire

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"go.bryk.io/pubsub/errors"
)

// challengeSize is the length, in bytes, of the random nonce exchanged
// during authentication.
const challengeSize = 32

var (
	welcomeMsg = []byte("WELCOME")
	failureMsg = []byte("FAILURE")
)

// ErrAuthFailed indicates a peer's response digest did not match the
// expected value keyed by the shared secret.
var ErrAuthFailed = errors.New("authentication failed")

func digest(authkey, message []byte) []byte {
	mac := hmac.New(sha256.New, authkey)
	mac.Write(message)
	return mac.Sum(nil)
}

// deliverChallenge sends a random nonce and verifies the peer's keyed
// digest of it, acting as the challenger for one leg of the handshake.
func deliverChallenge(rw io.ReadWriter, authkey []byte) error {
	msg := make([]byte, challengeSize)
	if _, err := rand.Read(msg); err != nil {
		return errors.Wrap(err, "generate challenge")
	}
	if err := writeFrame(rw, msg); err != nil {
		return err
	}
	resp, err := readFrame(rw)
	if err != nil {
		return err
	}
	if !hmac.Equal(resp, digest(authkey, msg)) {
		_ = writeFrame(rw, failureMsg)
		return ErrAuthFailed
	}
	return writeFrame(rw, welcomeMsg)
}

// answerChallenge receives a nonce and returns its keyed digest, acting
// as the respondent for one leg of the handshake.
func answerChallenge(rw io.ReadWriter, authkey []byte) error {
	msg, err := readFrame(rw)
	if err != nil {
		return err
	}
	if err := writeFrame(rw, digest(authkey, msg)); err != nil {
		return err
	}
	ack, err := readFrame(rw)
	if err != nil {
		return err
	}
	if !bytes.Equal(ack, welcomeMsg) {
		return ErrAuthFailed
	}
	return nil
}

// ClientAuthenticate performs the dialing side of the mutual handshake:
// it answers the peer's challenge before issuing its own.
func ClientAuthenticate(rw io.ReadWriter, authkey []byte) error {
	if err := answerChallenge(rw, authkey); err != nil {
		return err
	}
	return deliverChallenge(rw, authkey)
}

// ServerAuthenticate performs the accepting side of the mutual handshake:
// it issues a challenge before answering the peer's own.
func ServerAuthenticate(rw io.ReadWriter, authkey []byte) error {
	if err := deliverChallenge(rw, authkey); err != nil {
		return err
	}
	return answerChallenge(rw, authkey)
}
