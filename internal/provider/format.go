package provider

import (
	"strings"

	"github.com/chatforge/bridge-api/internal/ai"
)

// MaxQuickReplies is the provider-side cap on quick-reply buttons per message.
const MaxQuickReplies = 13

type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL string `json:"url"`
}

// Reply is the provider-ready shape of one assistant turn.
type Reply struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
	Attachment   *Attachment  `json:"attachment,omitempty"`
}

func (r Reply) Empty() bool {
	return r.Text == "" && len(r.QuickReplies) == 0 && r.Attachment == nil
}

// FormatReply collapses the runtime's response records into a single
// provider message: text lines joined with newlines, choice options as
// quick replies (capped), and the first visual as an attachment. Records
// the provider cannot render are dropped.
func FormatReply(items []ai.ResponseItem) Reply {
	var lines []string
	var quickReplies []QuickReply
	var attachment *Attachment

	for _, it := range items {
		switch it.Type {
		case ai.ItemText:
			if it.Text != "" {
				lines = append(lines, it.Text)
			}
		case ai.ItemChoice:
			if it.Title != "" {
				lines = append(lines, it.Title)
			}
			for _, opt := range it.Options {
				if len(quickReplies) >= MaxQuickReplies {
					break
				}
				quickReplies = append(quickReplies, QuickReply{
					ContentType: "text",
					Title:       opt.Label,
					Payload:     opt.Value,
				})
			}
		case ai.ItemVisual:
			if attachment != nil || it.Visual == nil {
				continue
			}
			kind := it.Visual.Kind
			if kind == "" {
				kind = "image"
			}
			attachment = &Attachment{Type: kind, Payload: AttachmentPayload{URL: it.Visual.URL}}
		}
	}

	return Reply{
		Text:         strings.Join(lines, "\n"),
		QuickReplies: quickReplies,
		Attachment:   attachment,
	}
}
