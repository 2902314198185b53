package webhook

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/chatforge/bridge-api/internal/bridge"
)

func mustPayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return m
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, got bridge.NormalizedMessage)
	}{
		{
			name: "plain text",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1700000000000,"message":{"mid":"m1","text":"hello"}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "hello" || got.Type != bridge.TypeText {
					t.Errorf("got %q/%s, want hello/text", got.Text, got.Type)
				}
				if got.Metadata["mid"] != "m1" {
					t.Errorf("mid = %v, want m1", got.Metadata["mid"])
				}
			},
		},
		{
			name: "postback payload wins",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"postback":{"title":"Get Started","payload":"GET_STARTED"}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "GET_STARTED" || got.Type != bridge.TypePostback {
					t.Errorf("got %q/%s, want GET_STARTED/postback", got.Text, got.Type)
				}
			},
		},
		{
			name: "postback falls back to title",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"postback":{"title":"Get Started"}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "Get Started" {
					t.Errorf("text = %q, want Get Started", got.Text)
				}
			},
		},
		{
			name: "quick reply tap",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m3","text":"Yes","quick_reply":{"payload":"CONFIRM_YES"}}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "CONFIRM_YES" || got.Type != bridge.TypeQuickReply {
					t.Errorf("got %q/%s, want CONFIRM_YES/quick_reply", got.Text, got.Type)
				}
			},
		},
		{
			name: "image attachment description becomes text",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m4","attachments":[{"type":"image","payload":{"url":"https://cdn.example.com/a.jpg"}}]}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "[Image: https://cdn.example.com/a.jpg]" {
					t.Errorf("text = %q", got.Text)
				}
				if got.Type != bridge.TypeImage {
					t.Errorf("type = %s, want image", got.Type)
				}
				if len(got.Attachments) != 1 || got.Attachments[0].URL != "https://cdn.example.com/a.jpg" {
					t.Errorf("attachments = %+v", got.Attachments)
				}
			},
		},
		{
			name: "text alongside attachment keeps text",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m5","text":"look","attachments":[{"type":"video","payload":{"url":"https://cdn.example.com/v.mp4"}}]}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "look" || got.Type != bridge.TypeText {
					t.Errorf("got %q/%s, want look/text", got.Text, got.Type)
				}
				if len(got.Attachments) != 1 || got.Attachments[0].Type != bridge.TypeVideo {
					t.Errorf("attachments = %+v", got.Attachments)
				}
			},
		},
		{
			name: "location attachment",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m6","attachments":[{"type":"location","payload":{"coordinates":{"lat":52.52,"long":13.405}}}]}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "[Location: 52.52,13.405]" {
					t.Errorf("text = %q", got.Text)
				}
				if got.Type != bridge.TypeLocation {
					t.Errorf("type = %s, want location", got.Type)
				}
			},
		},
		{
			name: "fallback attachment is unsupported",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m7","attachments":[{"type":"fallback","payload":{"url":"https://example.com/share"}}]}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Type != bridge.TypeUnsupported {
					t.Errorf("type = %s, want unsupported", got.Type)
				}
				if got.Text != "[Unsupported attachment: fallback]" {
					t.Errorf("text = %q", got.Text)
				}
			},
		},
		{
			name: "nothing recoverable",
			raw:  `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m8"}}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "[Unsupported page message type]" || got.Type != bridge.TypeUnsupported {
					t.Errorf("got %q/%s", got.Text, got.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(bridge.PlatformPage, mustPayload(t, tt.raw))
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestNormalizePhoto(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, got bridge.NormalizedMessage)
	}{
		{
			name: "text body",
			raw:  `{"sender":{"id":"U9"},"recipient":{"id":"A1"},"messages":[{"id":"wm1","text":{"body":"hi there"}}]}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "hi there" || got.Type != bridge.TypeText {
					t.Errorf("got %q/%s, want hi there/text", got.Text, got.Type)
				}
				if got.Metadata["mid"] != "wm1" {
					t.Errorf("mid = %v, want wm1", got.Metadata["mid"])
				}
			},
		},
		{
			name: "audio attachment",
			raw:  `{"sender":{"id":"U9"},"recipient":{"id":"A1"},"messages":[{"id":"wm2","attachments":[{"type":"audio","payload":{"url":"https://cdn.example.com/a.ogg"}}]}]}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "[Audio: https://cdn.example.com/a.ogg]" || got.Type != bridge.TypeAudio {
					t.Errorf("got %q/%s", got.Text, got.Type)
				}
			},
		},
		{
			name: "empty message",
			raw:  `{"sender":{"id":"U9"},"recipient":{"id":"A1"},"messages":[{"id":"wm3"}]}`,
			check: func(t *testing.T, got bridge.NormalizedMessage) {
				if got.Text != "[Unsupported photo message type]" || got.Type != bridge.TypeUnsupported {
					t.Errorf("got %q/%s", got.Text, got.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(bridge.PlatformPhoto, mustPayload(t, tt.raw))
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	payload := mustPayload(t, `{"sender":{"id":"P1"},"recipient":{"id":"R1"},"message":{"mid":"m1","text":"same","attachments":[{"type":"image","payload":{"url":"https://x/i.png"}}]}}`)

	a, err := Normalize(bridge.PlatformPage, payload)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(bridge.PlatformPage, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("normalization not deterministic:\n%+v\n%+v", a, b)
	}
}
