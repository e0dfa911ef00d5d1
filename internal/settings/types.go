package settings

// Tenant-scoped flag keys consumed by the routing engine.
const (
	KeyUserRating      = "userRating"
	KeyScheduleType    = "scheduleType"
	KeyChatBotType     = "chatBotType"
	KeyCall            = "call"
	KeyMsgAuto         = "msg_auto"
	KeyCheckMsgIsGroup = "CheckMsgIsGroup"
	KeyEnableGPT       = "EnableGPT"
)

// Flag values.
const (
	ValueEnabled  = "enabled"
	ValueDisabled = "disabled"
)

// Schedule types for the out-of-hours gate.
const (
	ScheduleDisabled = "disabled"
	ScheduleQueue    = "queue"
	ScheduleCompany  = "company"
)

// Chatbot presentation modes.
const (
	ChatBotText   = "text"
	ChatBotButton = "button"
	ChatBotList   = "list"
)

var defaults = map[string]string{
	KeyUserRating:      ValueDisabled,
	KeyScheduleType:    ScheduleDisabled,
	KeyChatBotType:     ChatBotText,
	KeyCall:            ValueEnabled,
	KeyMsgAuto:         ValueDisabled,
	KeyCheckMsgIsGroup: ValueDisabled,
	KeyEnableGPT:       ValueDisabled,
}

// Default returns the fallback value for a key, or empty when the key is
// not a known flag.
func Default(key string) string {
	return defaults[key]
}
