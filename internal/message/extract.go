package message

import (
	"fmt"

	"github.com/zapdesk/zapdesk/internal/wap"
)

// ExtractBody pulls the display body out of a raw message's content,
// dispatching on the content kind. The second return is false for kinds
// the pipeline does not recognize; those normalize to an empty body
// rather than failing the message.
func ExtractBody(content wap.Content) (string, bool) {
	switch content.Kind {
	case wap.KindText:
		return content.Text, true
	case wap.KindExtendedText:
		return content.Text, true
	case wap.KindImage, wap.KindVideo:
		return content.Caption, true
	case wap.KindAudio, wap.KindSticker:
		return "", true
	case wap.KindDocument:
		if content.Caption != "" {
			return content.Caption, true
		}
		return content.FileName, true
	case wap.KindLocation, wap.KindLiveLocation:
		return locationBody(content), true
	case wap.KindContactCard, wap.KindContactList:
		return content.VCard, true
	case wap.KindReaction:
		return content.Emoji, true
	case wap.KindButtonsResponse, wap.KindListResponse, wap.KindTemplateReply:
		if content.SelectedText != "" {
			return content.SelectedText, true
		}
		return content.SelectedID, true
	case wap.KindButtons, wap.KindList:
		return content.Text, true
	default:
		return "", false
	}
}

func locationBody(content wap.Content) string {
	body := fmt.Sprintf("https://maps.google.com/maps?q=%f%%2C%f&z=17",
		content.Latitude, content.Longitude)
	if content.Description != "" {
		body += " | " + content.Description
	}
	return body
}
