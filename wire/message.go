package wire

// Kind identifies the role of a Message. Init, NewPubSub, Stop and
// NewConn are the fixed control sentinels exchanged at handshake,
// rendezvous and shutdown; Payload carries an actual published message.
type Kind byte

const (
	KindInit Kind = iota
	KindNewPubSub
	KindStop
	KindNewConn
	KindPayload
)

// String returns a textual representation of a Kind value.
func (k Kind) String() string {
	switch k {
	case KindInit:
		return "INIT"
	case KindNewPubSub:
		return "NEWPUBSUB"
	case KindStop:
		return "STOP"
	case KindNewConn:
		return "NEWCONN"
	case KindPayload:
		return "PAYLOAD"
	default:
		return "UNKNOWN"
	}
}

// Message is the unit exchanged over a Conn. Sentinel messages (every
// Kind but Payload) carry no Topic/Args. All non-payload tokens are
// acknowledged by echoing the same Message back, except Stop, which is
// unacknowledged.
type Message struct {
	Kind  Kind
	Topic []string
	Args  map[string]any
}

// Init returns the control-connection request sentinel.
func Init() Message { return Message{Kind: KindInit} }

// NewPubSub returns the endpoint-handshake sentinel.
func NewPubSub() Message { return Message{Kind: KindNewPubSub} }

// Stop returns the disconnect/shutdown sentinel.
func Stop() Message { return Message{Kind: KindStop} }

// NewConn returns the acceptor-to-forwarder new-client notification.
func NewConn() Message { return Message{Kind: KindNewConn} }

// Payload builds a payload message carrying a published topic and its
// named arguments.
func Payload(topic []string, args map[string]any) Message {
	return Message{Kind: KindPayload, Topic: topic, Args: args}
}

// IsSentinel reports whether m is one of the four control tokens rather
// than a published payload.
func (m Message) IsSentinel() bool {
	return m.Kind != KindPayload
}
