package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Provider signature headers. The 256 header wins whenever present.
const (
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid HMAC signature")
	ErrMalformedHeader  = errors.New("malformed signature header")
)

// VerifySignature authenticates the raw request body against the provider
// signature headers. The HMAC is computed over the exact bytes received;
// callers must not re-serialize the body first. SHA-1 is accepted only when
// the SHA-256 header is absent.
func VerifySignature(h http.Header, body []byte, appSecret string) error {
	if sig := h.Get(HeaderSignature256); sig != "" {
		return verify(sig, "sha256=", sha256.New, body, appSecret)
	}
	if sig := h.Get(HeaderSignature); sig != "" {
		return verify(sig, "sha1=", sha1.New, body, appSecret)
	}
	return ErrMissingSignature
}

func verify(header, prefix string, algo func() hash.Hash, body []byte, secret string) error {
	if !strings.HasPrefix(header, prefix) {
		return ErrMalformedHeader
	}
	got := strings.TrimPrefix(header, prefix)
	if _, err := hex.DecodeString(got); err != nil || got == "" {
		return ErrMalformedHeader
	}

	mac := hmac.New(algo, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expected), []byte(got)) {
		log.Warn().
			Str("scheme", strings.TrimSuffix(prefix, "=")).
			Int("body_bytes", len(body)).
			Msg("webhook signature mismatch")
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the sha256 form of a body signature, handy for generating
// headers in tests and outbound verification tooling.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
