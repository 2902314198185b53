package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// Normalize maps a stored event payload to the canonical message shape. The
// mapping is deterministic: the same payload always yields the same result.
func Normalize(platform bridge.Platform, payload map[string]any) (bridge.NormalizedMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return bridge.NormalizedMessage{}, ErrMalformedPayload
	}

	if platform == bridge.PlatformPhoto {
		var v ChangeValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return bridge.NormalizedMessage{}, ErrMalformedPayload
		}
		return normalizePhoto(v), nil
	}

	var m Messaging
	if err := json.Unmarshal(raw, &m); err != nil {
		return bridge.NormalizedMessage{}, ErrMalformedPayload
	}
	return normalizePage(m), nil
}

func normalizePage(m Messaging) bridge.NormalizedMessage {
	out := bridge.NormalizedMessage{Type: bridge.TypeText, Metadata: map[string]any{}}

	if m.Postback != nil {
		out.Type = bridge.TypePostback
		out.Text = m.Postback.Payload
		if out.Text == "" {
			out.Text = m.Postback.Title
		}
		out.Metadata["postback_title"] = m.Postback.Title
		return out
	}

	if m.Message == nil {
		out.Type = bridge.TypeUnsupported
		out.Text = unsupportedText(bridge.PlatformPage)
		return out
	}

	msg := m.Message
	if msg.MID != "" {
		out.Metadata["mid"] = msg.MID
	}

	if msg.QuickReply != nil && msg.QuickReply.Payload != "" {
		out.Type = bridge.TypeQuickReply
		out.Text = msg.QuickReply.Payload
		return out
	}

	out.Text = msg.Text
	out.Attachments = mapAttachments(msg.Attachments)
	applyAttachmentFallback(&out, bridge.PlatformPage)
	return out
}

func normalizePhoto(v ChangeValue) bridge.NormalizedMessage {
	out := bridge.NormalizedMessage{Type: bridge.TypeText, Metadata: map[string]any{}}

	if len(v.Messages) == 0 {
		out.Type = bridge.TypeUnsupported
		out.Text = unsupportedText(bridge.PlatformPhoto)
		return out
	}

	msg := v.Messages[0]
	if msg.ID != "" {
		out.Metadata["mid"] = msg.ID
	}
	if msg.Text != nil {
		out.Text = msg.Text.Body
	}
	out.Attachments = mapAttachments(msg.Attachments)
	applyAttachmentFallback(&out, bridge.PlatformPhoto)
	return out
}

// applyAttachmentFallback fills Text from the first attachment description
// when the message carried no text, or declares the event unsupported when
// nothing at all is recoverable.
func applyAttachmentFallback(out *bridge.NormalizedMessage, platform bridge.Platform) {
	if out.Text != "" {
		return
	}
	if len(out.Attachments) > 0 {
		first := out.Attachments[0]
		out.Text = first.Description
		out.Type = first.Type
		return
	}
	out.Type = bridge.TypeUnsupported
	out.Text = unsupportedText(platform)
}

func unsupportedText(platform bridge.Platform) string {
	return fmt.Sprintf("[Unsupported %s message type]", platform)
}

// mapAttachments converts provider attachments to the canonical set. Unknown
// and fallback types survive as unsupported rather than failing the event.
func mapAttachments(raw []RawAttachment) []bridge.Attachment {
	if len(raw) == 0 {
		return nil
	}
	out := make([]bridge.Attachment, 0, len(raw))
	for _, a := range raw {
		out = append(out, mapAttachment(a))
	}
	return out
}

func mapAttachment(a RawAttachment) bridge.Attachment {
	switch strings.ToLower(a.Type) {
	case "image", "audio", "video", "file":
		t := bridge.MessageType(strings.ToLower(a.Type))
		return bridge.Attachment{
			Type:        t,
			URL:         a.Payload.URL,
			Description: fmt.Sprintf("[%s: %s]", titleCase(a.Type), a.Payload.URL),
		}
	case "location":
		desc := "[Location]"
		if c := a.Payload.Coordinates; c != nil {
			desc = fmt.Sprintf("[Location: %v,%v]", c.Lat, c.Long)
		}
		return bridge.Attachment{Type: bridge.TypeLocation, Description: desc}
	default:
		return bridge.Attachment{
			Type:        bridge.TypeUnsupported,
			URL:         a.Payload.URL,
			Description: fmt.Sprintf("[Unsupported attachment: %s]", a.Type),
		}
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
