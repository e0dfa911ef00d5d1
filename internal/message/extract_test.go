package message

import (
	"strings"
	"testing"

	"github.com/zapdesk/zapdesk/internal/wap"
)

func TestExtractBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		content    wap.Content
		want       string
		recognized bool
	}{
		{
			name:       "plain text",
			content:    wap.Content{Kind: wap.KindText, Text: "hello"},
			want:       "hello",
			recognized: true,
		},
		{
			name:       "extended text",
			content:    wap.Content{Kind: wap.KindExtendedText, Text: "with preview"},
			want:       "with preview",
			recognized: true,
		},
		{
			name:       "image caption",
			content:    wap.Content{Kind: wap.KindImage, Caption: "look at this"},
			want:       "look at this",
			recognized: true,
		},
		{
			name:       "audio has no body",
			content:    wap.Content{Kind: wap.KindAudio, MimeType: "audio/ogg"},
			want:       "",
			recognized: true,
		},
		{
			name:       "document falls back to filename",
			content:    wap.Content{Kind: wap.KindDocument, FileName: "report.pdf"},
			want:       "report.pdf",
			recognized: true,
		},
		{
			name:       "contact card",
			content:    wap.Content{Kind: wap.KindContactCard, VCard: "BEGIN:VCARD"},
			want:       "BEGIN:VCARD",
			recognized: true,
		},
		{
			name:       "reaction",
			content:    wap.Content{Kind: wap.KindReaction, Emoji: "👍"},
			want:       "👍",
			recognized: true,
		},
		{
			name:       "button reply prefers text",
			content:    wap.Content{Kind: wap.KindButtonsResponse, SelectedID: "2", SelectedText: "Billing"},
			want:       "Billing",
			recognized: true,
		},
		{
			name:       "list reply falls back to id",
			content:    wap.Content{Kind: wap.KindListResponse, SelectedID: "3"},
			want:       "3",
			recognized: true,
		},
		{
			name:       "unknown kind",
			content:    wap.Content{Kind: wap.KindUnknown},
			want:       "",
			recognized: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, recognized := ExtractBody(tc.content)
			if got != tc.want || recognized != tc.recognized {
				t.Fatalf("ExtractBody() = (%q, %v), want (%q, %v)", got, recognized, tc.want, tc.recognized)
			}
		})
	}
}

func TestExtractBodyLocation(t *testing.T) {
	t.Parallel()

	got, recognized := ExtractBody(wap.Content{
		Kind:        wap.KindLocation,
		Latitude:    -23.55,
		Longitude:   -46.63,
		Description: "Office",
	})
	if !recognized {
		t.Fatal("location must be recognized")
	}
	if !strings.Contains(got, "maps.google.com") || !strings.Contains(got, "Office") {
		t.Fatalf("unexpected location body %q", got)
	}
}
