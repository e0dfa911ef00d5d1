// Package wap defines the surface this engine consumes from the underlying
// WhatsApp-protocol client: the canonical raw-event model, the capability
// interface, and the connection event stream. The wire protocol itself is
// opaque; adapters translate their library's types into these.
package wap

import (
	"encoding/json"
	"time"
)

// ContentKind tags the variant of a raw message's content.
type ContentKind string

const (
	KindText            ContentKind = "text"
	KindExtendedText    ContentKind = "extended_text"
	KindImage           ContentKind = "image"
	KindVideo           ContentKind = "video"
	KindAudio           ContentKind = "audio"
	KindDocument        ContentKind = "document"
	KindSticker         ContentKind = "sticker"
	KindLocation        ContentKind = "location"
	KindLiveLocation    ContentKind = "live_location"
	KindContactCard     ContentKind = "contact_card"
	KindContactList     ContentKind = "contact_list"
	KindReaction        ContentKind = "reaction"
	KindButtons         ContentKind = "buttons"
	KindButtonsResponse ContentKind = "buttons_response"
	KindList            ContentKind = "list"
	KindListResponse    ContentKind = "list_response"
	KindTemplateReply   ContentKind = "template_reply"
	KindProtocol        ContentKind = "protocol"
	KindUnknown         ContentKind = "unknown"
)

// IsMedia reports whether the kind carries downloadable attachment bytes.
func (k ContentKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument, KindSticker:
		return true
	default:
		return false
	}
}

// StubType classifies administrative stub events that carry no user content.
type StubType string

const (
	StubNone            StubType = ""
	StubRevoke          StubType = "revoke"
	StubDeviceChanged   StubType = "device_changed"
	StubIdentityChanged StubType = "identity_changed"
	StubCiphertext      StubType = "ciphertext"
)

// Ack is the delivery-acknowledgment state of a message.
type Ack int

const (
	AckPending Ack = iota
	AckServer
	AckDelivered
	AckRead
)

// Button is one selectable button in an interactive message.
type Button struct {
	ID    string
	Label string
}

// ListRow is one selectable row of a list message section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups list rows under a section title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// Content is the tagged union of raw message content variants. Kind selects
// which fields are meaningful; body extraction dispatches on it.
type Content struct {
	Kind ContentKind

	Text        string
	Caption     string
	Title       string
	Description string

	MimeType string
	FileName string

	SelectedID   string
	SelectedText string

	Latitude  float64
	Longitude float64
	Thumbnail []byte

	VCard string
	Emoji string

	Buttons  []Button
	Sections []ListSection
}

// RawMessage is one protocol message as delivered by the client, before
// normalization.
type RawMessage struct {
	ID          string
	ChatJID     string
	SenderJID   string
	Participant string
	PushName    string
	FromMe      bool
	Timestamp   time.Time
	Ack         Ack
	StubType    StubType
	UnreadCount int
	QuotedID    string
	Content     Content
	Payload     json.RawMessage
}

// HasMedia reports whether the message carries a downloadable attachment.
func (m RawMessage) HasMedia() bool {
	return m.Content.Kind.IsMedia()
}

// MediaPayload carries attachment bytes for an outbound media send.
type MediaPayload struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

// GroupInfo is the metadata the client exposes for a group conversation.
type GroupInfo struct {
	JID     string
	Subject string
}
