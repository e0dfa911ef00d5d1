package wap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// GatewayDialer connects to the protocol gateway sidecar. Commands go over
// its HTTP API; session events arrive on a websocket feed that the gateway
// keeps open for the lifetime of the connection.
type GatewayDialer struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewGatewayDialer creates a dialer against the configured gateway.
func NewGatewayDialer(log *slog.Logger, baseURL string) *GatewayDialer {
	if log == nil {
		log = slog.Default()
	}
	return &GatewayDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  log.With(slog.String("component", "wap-gateway")),
	}
}

// Dial opens the tenant's session on the gateway and attaches to its event
// feed. An empty credential blob asks the gateway for a fresh pairing.
func (d *GatewayDialer) Dial(ctx context.Context, tenantID string, credentials []byte) (Client, <-chan Event, error) {
	wsURL, err := d.eventsURL(tenantID)
	if err != nil {
		return nil, nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	// The first frame carries the persisted credentials so the gateway can
	// resume instead of pairing.
	hello := wireHello{TenantID: tenantID, Credentials: credentials}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("send session hello: %w", err)
	}

	client := &gatewayClient{
		baseURL:  d.baseURL,
		tenantID: tenantID,
		http:     d.http,
		ws:       conn,
	}
	events := make(chan Event, 32)
	go d.readEvents(tenantID, conn, events)
	return client, events, nil
}

func (d *GatewayDialer) eventsURL(tenantID string) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("gateway url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/sessions/" + url.PathEscape(tenantID) + "/events"
	return u.String(), nil
}

// readEvents pumps gateway frames into the event channel until the socket
// dies. Closing the channel is the supervisor's teardown signal.
func (d *GatewayDialer) readEvents(tenantID string, conn *websocket.Conn, events chan<- Event) {
	defer close(events)
	for {
		var f wireFrame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Warn("event feed ended",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		evt, err := decodeFrame(f)
		if err != nil {
			d.logger.Warn("bad gateway frame",
				slog.String("tenant_id", tenantID),
				slog.String("type", f.Type),
				slog.String("error", err.Error()),
			)
			continue
		}
		if evt != nil {
			events <- evt
		}
	}
}

// Gateway frame types.
const (
	frameConnection  = "connection"
	frameMessages    = "messages"
	frameAck         = "ack"
	frameCall        = "call"
	frameCredentials = "credentials"
)

type wireHello struct {
	TenantID    string `json:"tenant_id"`
	Credentials []byte `json:"credentials,omitempty"`
}

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireConnection struct {
	State       string `json:"state"`
	PairingCode string `json:"pairing_code,omitempty"`
	Cause       string `json:"cause,omitempty"`
}

type wireAck struct {
	MessageID string `json:"message_id"`
	ChatJID   string `json:"chat_jid"`
	Ack       int    `json:"ack"`
}

type wireCall struct {
	CallID  string `json:"call_id"`
	FromJID string `json:"from_jid"`
	IsVideo bool   `json:"is_video"`
}

type wireCredentials struct {
	Blob []byte `json:"blob"`
}

type wireButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type wireListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type wireListSection struct {
	Title string        `json:"title"`
	Rows  []wireListRow `json:"rows"`
}

type wireContent struct {
	Kind         string            `json:"kind"`
	Text         string            `json:"text,omitempty"`
	Caption      string            `json:"caption,omitempty"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	MimeType     string            `json:"mime_type,omitempty"`
	FileName     string            `json:"file_name,omitempty"`
	SelectedID   string            `json:"selected_id,omitempty"`
	SelectedText string            `json:"selected_text,omitempty"`
	Latitude     float64           `json:"latitude,omitempty"`
	Longitude    float64           `json:"longitude,omitempty"`
	VCard        string            `json:"vcard,omitempty"`
	Emoji        string            `json:"emoji,omitempty"`
	Buttons      []wireButton      `json:"buttons,omitempty"`
	Sections     []wireListSection `json:"sections,omitempty"`
}

type wireMessage struct {
	ID          string          `json:"id"`
	ChatJID     string          `json:"chat_jid"`
	SenderJID   string          `json:"sender_jid"`
	Participant string          `json:"participant,omitempty"`
	PushName    string          `json:"push_name,omitempty"`
	FromMe      bool            `json:"from_me"`
	Timestamp   time.Time       `json:"timestamp"`
	Ack         int             `json:"ack"`
	StubType    string          `json:"stub_type,omitempty"`
	UnreadCount int             `json:"unread_count,omitempty"`
	QuotedID    string          `json:"quoted_id,omitempty"`
	Content     wireContent     `json:"content"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (w wireMessage) toRaw() RawMessage {
	c := w.Content
	content := Content{
		Kind:         ContentKind(c.Kind),
		Text:         c.Text,
		Caption:      c.Caption,
		Title:        c.Title,
		Description:  c.Description,
		MimeType:     c.MimeType,
		FileName:     c.FileName,
		SelectedID:   c.SelectedID,
		SelectedText: c.SelectedText,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		VCard:        c.VCard,
		Emoji:        c.Emoji,
	}
	for _, b := range c.Buttons {
		content.Buttons = append(content.Buttons, Button{ID: b.ID, Label: b.Label})
	}
	for _, s := range c.Sections {
		section := ListSection{Title: s.Title}
		for _, r := range s.Rows {
			section.Rows = append(section.Rows, ListRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		content.Sections = append(content.Sections, section)
	}
	return RawMessage{
		ID:          w.ID,
		ChatJID:     w.ChatJID,
		SenderJID:   w.SenderJID,
		Participant: w.Participant,
		PushName:    w.PushName,
		FromMe:      w.FromMe,
		Timestamp:   w.Timestamp,
		Ack:         Ack(w.Ack),
		StubType:    StubType(w.StubType),
		UnreadCount: w.UnreadCount,
		QuotedID:    w.QuotedID,
		Content:     content,
		Payload:     w.Payload,
	}
}

func decodeFrame(f wireFrame) (Event, error) {
	switch f.Type {
	case frameConnection:
		var w wireConnection
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return ConnectionUpdate{
			State:       ConnState(w.State),
			PairingCode: w.PairingCode,
			Cause:       DisconnectCause(w.Cause),
		}, nil
	case frameMessages:
		var w struct {
			Messages []wireMessage `json:"messages"`
			Notify   bool          `json:"notify"`
		}
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		batch := MessageBatch{Messages: make([]RawMessage, 0, len(w.Messages)), Notify: w.Notify}
		for _, m := range w.Messages {
			batch.Messages = append(batch.Messages, m.toRaw())
		}
		return batch, nil
	case frameAck:
		var w wireAck
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return AckUpdate{MessageID: w.MessageID, ChatJID: w.ChatJID, Ack: Ack(w.Ack)}, nil
	case frameCall:
		var w wireCall
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return CallOffer{CallID: w.CallID, FromJID: w.FromJID, IsVideo: w.IsVideo}, nil
	case frameCredentials:
		var w wireCredentials
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return CredentialsUpdate{Blob: w.Blob}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// gatewayClient issues session commands against the gateway HTTP API.
type gatewayClient struct {
	baseURL  string
	tenantID string
	http     *http.Client
	ws       *websocket.Conn
}

func (c *gatewayClient) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(c.tenantID) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway %s: %s: %s", path, resp.Status, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *gatewayClient) sendMessage(ctx context.Context, path string, body any) (RawMessage, error) {
	var sent wireMessage
	if err := c.post(ctx, path, body, &sent); err != nil {
		return RawMessage{}, err
	}
	return sent.toRaw(), nil
}

func (c *gatewayClient) SendText(ctx context.Context, jid, text string) (RawMessage, error) {
	return c.sendMessage(ctx, "/messages/text", map[string]any{"jid": jid, "text": text})
}

func (c *gatewayClient) SendButtons(ctx context.Context, jid, text string, buttons []Button) (RawMessage, error) {
	wire := make([]wireButton, len(buttons))
	for i, b := range buttons {
		wire[i] = wireButton{ID: b.ID, Label: b.Label}
	}
	return c.sendMessage(ctx, "/messages/buttons", map[string]any{"jid": jid, "text": text, "buttons": wire})
}

func (c *gatewayClient) SendList(ctx context.Context, jid, text, buttonLabel string, sections []ListSection) (RawMessage, error) {
	wire := make([]wireListSection, len(sections))
	for i, s := range sections {
		ws := wireListSection{Title: s.Title, Rows: make([]wireListRow, len(s.Rows))}
		for j, r := range s.Rows {
			ws.Rows[j] = wireListRow{ID: r.ID, Title: r.Title, Description: r.Description}
		}
		wire[i] = ws
	}
	return c.sendMessage(ctx, "/messages/list", map[string]any{
		"jid": jid, "text": text, "button_label": buttonLabel, "sections": wire,
	})
}

func (c *gatewayClient) SendMedia(ctx context.Context, jid string, media MediaPayload) (RawMessage, error) {
	return c.sendMessage(ctx, "/messages/media", map[string]any{
		"jid":       jid,
		"data":      media.Data,
		"mime_type": media.MimeType,
		"file_name": media.FileName,
		"caption":   media.Caption,
	})
}

func (c *gatewayClient) DownloadAttachment(ctx context.Context, msg RawMessage) ([]byte, error) {
	var out struct {
		Data []byte `json:"data"`
	}
	if err := c.post(ctx, "/attachments", map[string]any{"message_id": msg.ID, "chat_jid": msg.ChatJID, "payload": msg.Payload}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *gatewayClient) ReadMessages(ctx context.Context, chatJID string, messageIDs []string) error {
	return c.post(ctx, "/read", map[string]any{"chat_jid": chatJID, "message_ids": messageIDs}, nil)
}

func (c *gatewayClient) GroupMetadata(ctx context.Context, jid string) (GroupInfo, error) {
	var out struct {
		JID     string `json:"jid"`
		Subject string `json:"subject"`
	}
	if err := c.post(ctx, "/groups/"+url.PathEscape(jid), nil, &out); err != nil {
		return GroupInfo{}, err
	}
	return GroupInfo{JID: out.JID, Subject: out.Subject}, nil
}

func (c *gatewayClient) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/avatar/"+url.PathEscape(jid), nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *gatewayClient) RejectCall(ctx context.Context, callID, fromJID string) error {
	return c.post(ctx, "/calls/reject", map[string]any{"call_id": callID, "from_jid": fromJID}, nil)
}

func (c *gatewayClient) Logout(ctx context.Context) error {
	return c.post(ctx, "/logout", nil, nil)
}

func (c *gatewayClient) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
