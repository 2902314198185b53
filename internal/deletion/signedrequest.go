// Package deletion implements the provider's data-erasure callback
// protocol: signed_request verification and confirmation codes.
package deletion

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformedRequest = errors.New("malformed signed_request")
	ErrBadSignature     = errors.New("signed_request signature mismatch")
)

// Payload is the decoded body of a signed_request.
type Payload struct {
	UserID    string `json:"user_id"`
	Algorithm string `json:"algorithm"`
	IssuedAt  int64  `json:"issued_at"`
}

// ParseSignedRequest splits, verifies, and decodes a provider
// signed_request. The HMAC-SHA256 signature covers the base64url payload
// segment and is checked against the app secret before anything is decoded;
// verification failures are terminal.
func ParseSignedRequest(raw, appSecret string) (*Payload, error) {
	sigPart, payloadPart, ok := strings.Cut(raw, ".")
	if !ok || sigPart == "" || payloadPart == "" {
		return nil, ErrMalformedRequest
	}

	sig, err := decodeSegment(sigPart)
	if err != nil {
		return nil, ErrMalformedRequest
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(payloadPart))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrBadSignature
	}

	body, err := decodeSegment(payloadPart)
	if err != nil {
		return nil, ErrMalformedRequest
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrMalformedRequest
	}
	if p.Algorithm != "" && !strings.EqualFold(p.Algorithm, "HMAC-SHA256") {
		return nil, ErrMalformedRequest
	}
	if p.UserID == "" {
		return nil, ErrMalformedRequest
	}
	return &p, nil
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ConfirmationCode returns an opaque operator-facing code for a deletion
// request: "DEL" plus 8 random base36 characters.
func ConfirmationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("DEL")
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
