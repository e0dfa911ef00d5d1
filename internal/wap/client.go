package wap

import "context"

// Client is the capability surface of one live protocol session. Outbound
// sends return the sent message in raw form so it can be fed back through
// the normalization pipeline like any other event.
type Client interface {
	SendText(ctx context.Context, jid string, text string) (RawMessage, error)
	SendButtons(ctx context.Context, jid string, text string, buttons []Button) (RawMessage, error)
	SendList(ctx context.Context, jid string, text string, buttonLabel string, sections []ListSection) (RawMessage, error)
	SendMedia(ctx context.Context, jid string, media MediaPayload) (RawMessage, error)

	DownloadAttachment(ctx context.Context, msg RawMessage) ([]byte, error)
	ReadMessages(ctx context.Context, chatJID string, messageIDs []string) error
	GroupMetadata(ctx context.Context, jid string) (GroupInfo, error)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	RejectCall(ctx context.Context, callID string, fromJID string) error

	Logout(ctx context.Context) error
	Close() error
}

// Dialer establishes a protocol session for a tenant, resuming from the
// persisted credential blob when present (empty blob starts a fresh
// pairing). The returned channel is closed when the connection is torn
// down; all events for the session are delivered serially on it.
type Dialer interface {
	Dial(ctx context.Context, tenantID string, credentials []byte) (Client, <-chan Event, error)
}
