package wap

import "strings"

const (
	userServer      = "s.whatsapp.net"
	groupServer     = "g.us"
	broadcastStatus = "status@broadcast"
)

// IsGroupJID reports whether the jid addresses a group conversation.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+groupServer)
}

// IsBroadcastStatus reports whether the jid is the broadcast-status
// pseudo-conversation, which never enters the pipeline.
func IsBroadcastStatus(jid string) bool {
	return jid == broadcastStatus
}

// UserJID builds a direct or group jid from a bare number.
func UserJID(number string, isGroup bool) string {
	server := userServer
	if isGroup {
		server = groupServer
	}
	return number + "@" + server
}

// BareNumber strips the server part and any non-digit characters except the
// group separator, yielding the storable contact number.
func BareNumber(jid string) string {
	user := jid
	if at := strings.IndexByte(jid, '@'); at >= 0 {
		user = jid[:at]
	}
	var b strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
