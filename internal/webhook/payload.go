package webhook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// ErrMalformedPayload covers bodies that parse as JSON but not as a webhook
// envelope either variant could have produced.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Envelope is the outer body both platform variants share. Entries carry
// page-variant events in messaging and photo-variant events in changes.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry items stay raw so the stored payload keeps fields we do not model.
type Entry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time,omitempty"`
	Messaging []json.RawMessage `json:"messaging,omitempty"`
	Changes   []json.RawMessage `json:"changes,omitempty"`
}

// Messaging is one page-variant event.
type Messaging struct {
	Sender    *Party    `json:"sender,omitempty"`
	Recipient *Party    `json:"recipient,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
}

// Party is a sender or recipient reference.
type Party struct {
	ID string `json:"id"`
}

// Message is the message block of a page-variant event.
type Message struct {
	MID         string          `json:"mid,omitempty"`
	Text        string          `json:"text,omitempty"`
	IsEcho      bool            `json:"is_echo,omitempty"`
	QuickReply  *QuickReply     `json:"quick_reply,omitempty"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
}

// QuickReply is the payload of a tapped quick reply.
type QuickReply struct {
	Payload string `json:"payload"`
}

// Postback is a button press on a structured message.
type Postback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// RawAttachment is a provider attachment before canonical mapping.
type RawAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL         string   `json:"url,omitempty"`
		Coordinates *LatLong `json:"coordinates,omitempty"`
	} `json:"payload"`
}

// LatLong carries location attachment coordinates.
type LatLong struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Change is one photo-variant entry item; events live under field
// "messages".
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the photo-variant event envelope.
type ChangeValue struct {
	Sender    *Party         `json:"sender,omitempty"`
	Recipient *Party         `json:"recipient,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Messages  []PhotoMessage `json:"messages,omitempty"`
}

// PhotoMessage is one message in a photo-variant event; text lives under
// text.body.
type PhotoMessage struct {
	ID          string          `json:"id,omitempty"`
	Text        *PhotoText      `json:"text,omitempty"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
}

// PhotoText wraps the body string.
type PhotoText struct {
	Body string `json:"body"`
}

// InboundEvent is one provider event lifted out of an envelope, ready to
// enqueue. Payload is the original event object with unknown fields intact.
type InboundEvent struct {
	SenderID    string
	RecipientID string
	EventTS     time.Time
	Payload     map[string]any
	Echo        bool
	MessageID   string
}

// ParseEvents splits a raw webhook body into individual events for the given
// platform. Echo events are returned flagged so the caller can drop them
// before enqueueing. Items without a sender and recipient are skipped.
func ParseEvents(platform bridge.Platform, body []byte) ([]InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrMalformedPayload
	}
	if len(env.Entry) == 0 {
		return nil, ErrMalformedPayload
	}

	var out []InboundEvent
	for _, entry := range env.Entry {
		switch platform {
		case bridge.PlatformPhoto:
			for _, raw := range entry.Changes {
				ev, ok := parsePhotoChange(entry, raw)
				if ok {
					out = append(out, ev)
				}
			}
		default:
			for _, raw := range entry.Messaging {
				ev, ok := parseMessaging(entry, raw)
				if ok {
					out = append(out, ev)
				}
			}
		}
	}
	return out, nil
}

func parseMessaging(entry Entry, raw json.RawMessage) (InboundEvent, bool) {
	var m Messaging
	if err := json.Unmarshal(raw, &m); err != nil {
		return InboundEvent{}, false
	}
	if m.Sender == nil || m.Recipient == nil {
		return InboundEvent{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return InboundEvent{}, false
	}

	ev := InboundEvent{
		SenderID:    m.Sender.ID,
		RecipientID: m.Recipient.ID,
		EventTS:     tsFromEpoch(m.Timestamp, entry.Time),
		Payload:     payload,
	}
	if m.Message != nil {
		ev.Echo = m.Message.IsEcho
		ev.MessageID = m.Message.MID
	}
	return ev, true
}

func parsePhotoChange(entry Entry, raw json.RawMessage) (InboundEvent, bool) {
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return InboundEvent{}, false
	}
	if c.Field != "messages" {
		return InboundEvent{}, false
	}
	v := c.Value
	if v.Sender == nil || v.Recipient == nil || len(v.Messages) == 0 {
		return InboundEvent{}, false
	}

	// Store the value object: it is the self-contained event.
	var wrapper struct {
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Value == nil {
		return InboundEvent{}, false
	}

	return InboundEvent{
		SenderID:    v.Sender.ID,
		RecipientID: v.Recipient.ID,
		EventTS:     tsFromEpoch(v.Timestamp, entry.Time),
		Payload:     wrapper.Value,
		MessageID:   v.Messages[0].ID,
	}, true
}

// tsFromEpoch interprets provider timestamps that arrive as either epoch
// seconds or milliseconds, falling back to the entry clock and then to now.
func tsFromEpoch(primary, fallback int64) time.Time {
	n := primary
	if n == 0 {
		n = fallback
	}
	switch {
	case n == 0:
		return time.Now().UTC()
	case n > 1_000_000_000_000:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}
