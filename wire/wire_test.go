package wire

import (
	"net"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"

	"go.bryk.io/pubsub/errors"
)

func pipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestMutualAuthenticationSucceeds(t *testing.T) {
	assert := tdd.New(t)
	key := []byte("shared-secret")

	client, server := pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- ServerAuthenticate(server, key) }()

	assert.NoError(ClientAuthenticate(client, key))
	assert.NoError(<-errc)
}

func TestMutualAuthenticationRejectsWrongKey(t *testing.T) {
	assert := tdd.New(t)

	client, server := pipe()
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() { errc <- ServerAuthenticate(server, []byte("server-key")) }()

	err := ClientAuthenticate(client, []byte("wrong-key"))
	assert.Error(err)
	assert.Error(<-errc)
}

func TestConnSendRecvRoundTrip(t *testing.T) {
	assert := tdd.New(t)

	client, server := pipe()
	defer client.Close()
	defer server.Close()

	cc, sc := NewConn(client), NewConn(server)

	done := make(chan Message, 1)
	go func() {
		msg, err := sc.Recv()
		assert.NoError(err)
		done <- msg
	}()

	sent := Payload([]string{"a", "b"}, map[string]any{"n": 1})
	assert.NoError(cc.Send(sent))

	select {
	case got := <-done:
		assert.Equal(KindPayload, got.Kind)
		assert.Equal([]string{"a", "b"}, got.Topic)
		assert.False(got.IsSentinel())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// unregisteredArgValue is never passed to gob.Register, so encoding it
// inside a Message's Args map always fails.
type unregisteredArgValue struct{ N int }

func TestSendEncodeFailureLeavesConnectionUsable(t *testing.T) {
	assert := tdd.New(t)

	client, server := pipe()
	defer client.Close()
	defer server.Close()

	cc, sc := NewConn(client), NewConn(server)

	bad := Payload([]string{"a"}, map[string]any{"v": unregisteredArgValue{N: 1}})
	err := cc.Send(bad)
	assert.Error(err)
	assert.True(errors.Is(err, ErrEncodeValue), "encode failure must be classified as a value error")

	done := make(chan Message, 1)
	go func() {
		msg, _ := sc.Recv()
		done <- msg
	}()

	good := Payload([]string{"a"}, map[string]any{"n": 1})
	assert.NoError(cc.Send(good), "connection must still work after a value error")
	select {
	case got := <-done:
		assert.Equal(KindPayload, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSentinelRoundTrip(t *testing.T) {
	assert := tdd.New(t)

	client, server := pipe()
	defer client.Close()
	defer server.Close()

	cc, sc := NewConn(client), NewConn(server)

	done := make(chan Message, 1)
	go func() {
		msg, _ := sc.Recv()
		done <- msg
	}()

	assert.NoError(cc.Send(NewPubSub()))
	got := <-done
	assert.Equal(KindNewPubSub, got.Kind)
	assert.True(got.IsSentinel())
}
