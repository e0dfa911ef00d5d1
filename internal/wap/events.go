package wap

// ConnState is the coarse connection state reported by the client.
type ConnState string

const (
	ConnPairing ConnState = "pairing"
	ConnOpen    ConnState = "open"
	ConnClosed  ConnState = "closed"
)

// DisconnectCause classifies why a connection closed. The supervisor's
// restart policy dispatches on it.
type DisconnectCause string

const (
	CauseNone            DisconnectCause = ""
	CauseLoggedOut       DisconnectCause = "logged_out"
	CauseForbidden       DisconnectCause = "forbidden"
	CauseBadSession      DisconnectCause = "bad_session"
	CauseConnectionLost  DisconnectCause = "connection_lost"
	CauseReplaced        DisconnectCause = "replaced"
	CauseRestartRequired DisconnectCause = "restart_required"
	CauseTimedOut        DisconnectCause = "timed_out"
	CauseUnknown         DisconnectCause = "unknown"
)

// Event is a connection-scoped notification from the protocol client.
// The concrete types below are the only implementations.
type Event interface {
	isEvent()
}

// ConnectionUpdate reports a state change of the underlying link. When the
// client needs (re-)pairing it carries a fresh pairing code; when the link
// closed it carries the disconnect cause.
type ConnectionUpdate struct {
	State       ConnState
	PairingCode string
	Cause       DisconnectCause
	Err         error
}

// MessageBatch delivers newly upserted messages. Notify is true for live
// messages (as opposed to history backfill).
type MessageBatch struct {
	Messages []RawMessage
	Notify   bool
}

// AckUpdate reports a delivery-state change for an already-delivered message.
type AckUpdate struct {
	MessageID string
	ChatJID   string
	Ack       Ack
}

// CallOffer reports an inbound voice/video call.
type CallOffer struct {
	CallID  string
	FromJID string
	IsVideo bool
}

// CredentialsUpdate carries the rotated credential blob that must be
// persisted for session resumption.
type CredentialsUpdate struct {
	Blob []byte
}

func (ConnectionUpdate) isEvent()  {}
func (MessageBatch) isEvent()      {}
func (AckUpdate) isEvent()         {}
func (CallOffer) isEvent()         {}
func (CredentialsUpdate) isEvent() {}
