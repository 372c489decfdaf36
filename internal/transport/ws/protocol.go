package ws

// Control message types exchanged on the stream. Message events use the
// domain event types.
const (
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
)

// ControlMessage is a client request or a server acknowledgement.
type ControlMessage struct {
	Type        string `json:"type"`
	Ts          int64  `json:"ts,omitempty"`
	SenderPhone string `json:"sender_phone,omitempty"`
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Ts      int64  `json:"ts"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
