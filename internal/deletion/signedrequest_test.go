package deletion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func signRequest(t *testing.T, payload map[string]any, secret string) string {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	p64 := base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(p64))
	s64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return s64 + "." + p64
}

func TestParseSignedRequest(t *testing.T) {
	const secret = "app-secret-1"

	// Independently computed reference request for the payload
	// {"user_id":"psid-123","algorithm":"HMAC-SHA256","issued_at":1700000000}.
	const known = "Tp8rDF6PocO90NPDWPdgkFXR1kqt5SnEegiyYIVI7zw." +
		"eyJ1c2VyX2lkIjoicHNpZC0xMjMiLCJhbGdvcml0aG0iOiJITUFDLVNIQTI1NiIsImlzc3VlZF9hdCI6MTcwMDAwMDAwMH0"

	p, err := ParseSignedRequest(known, secret)
	if err != nil {
		t.Fatalf("ParseSignedRequest(known) error = %v", err)
	}
	if p.UserID != "psid-123" || p.IssuedAt != 1700000000 {
		t.Errorf("payload = %+v", p)
	}
}

func TestParseSignedRequestRejections(t *testing.T) {
	const secret = "app-secret-1"
	valid := signRequest(t, map[string]any{"user_id": "u1", "algorithm": "HMAC-SHA256"}, secret)

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"wrong secret", signRequest(t, map[string]any{"user_id": "u1"}, "other-secret"), ErrBadSignature},
		{"tampered payload", strings.Split(valid, ".")[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"user_id":"evil"}`)), ErrBadSignature},
		{"no separator", "justonesegment", ErrMalformedRequest},
		{"empty signature", "." + strings.Split(valid, ".")[1], ErrMalformedRequest},
		{"empty payload", strings.Split(valid, ".")[0] + ".", ErrMalformedRequest},
		{"garbage signature encoding", "!!!." + strings.Split(valid, ".")[1], ErrMalformedRequest},
		{"unknown algorithm", signRequest(t, map[string]any{"user_id": "u1", "algorithm": "MD5"}, secret), ErrMalformedRequest},
		{"missing user id", signRequest(t, map[string]any{"algorithm": "HMAC-SHA256"}, secret), ErrMalformedRequest},
		{"empty input", "", ErrMalformedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignedRequest(tt.raw, secret)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseSignedRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSignedRequestAcceptsCaseInsensitiveAlgorithm(t *testing.T) {
	raw := signRequest(t, map[string]any{"user_id": "u1", "algorithm": "hmac-sha256"}, "s")
	if _, err := ParseSignedRequest(raw, "s"); err != nil {
		t.Errorf("ParseSignedRequest() error = %v, want lowercase algorithm accepted", err)
	}
}

func TestParseSignedRequestToleratesPadding(t *testing.T) {
	// Some producers emit padded base64url; padding must not break decoding.
	body := []byte(`{"user_id":"u1"}`)
	p64 := base64.URLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte(p64))
	s64 := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	p, err := ParseSignedRequest(s64+"."+p64, "s")
	if err != nil {
		t.Fatalf("ParseSignedRequest(padded) error = %v", err)
	}
	if p.UserID != "u1" {
		t.Errorf("user id = %q", p.UserID)
	}
}

func TestConfirmationCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := ConfirmationCode()
		if err != nil {
			t.Fatalf("ConfirmationCode() error = %v", err)
		}
		if len(code) != 11 || !strings.HasPrefix(code, "DEL") {
			t.Fatalf("code = %q, want DEL plus 8 chars", code)
		}
		for _, c := range code[3:] {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the base36 alphabet", code, c)
			}
		}
		if seen[code] {
			t.Fatalf("code %q repeated within 100 draws", code)
		}
		seen[code] = true
	}
}
