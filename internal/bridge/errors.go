package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for routing decisions: transient kinds
// are retried, everything else is permanent.
type Kind string

const (
	KindInvalidSignature  Kind = "INVALID_SIGNATURE"
	KindMalformedPayload  Kind = "MALFORMED_PAYLOAD"
	KindUnknownTenant     Kind = "UNKNOWN_TENANT"
	KindMissingConnection Kind = "MISSING_CONNECTION"
	KindMissingAIBinding  Kind = "MISSING_AI_BINDING"
	KindTransientNetwork  Kind = "TRANSIENT_NETWORK"
	KindTransientUpstream Kind = "TRANSIENT_UPSTREAM"
	KindPermanentUpstream Kind = "PERMANENT_UPSTREAM"
	KindTimeout           Kind = "TIMEOUT"
	KindDataUnavailable   Kind = "DATA_UNAVAILABLE"
	KindConfigMissing     Kind = "CONFIG_MISSING"
)

// Transient reports whether the kind is eligible for automatic retry.
func (k Kind) Transient() bool {
	switch k {
	case KindTransientNetwork, KindTransientUpstream, KindTimeout, KindDataUnavailable:
		return true
	}
	return false
}

// Error is a classified pipeline error. Stage names the pipeline stage that
// produced it when known.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error with a message.
func E(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf extracts the kind from err, unwrapping as needed. Unclassified
// errors report an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusError is a non-2xx reply from an upstream HTTP call. Body is
// truncated by the producing client.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// ErrNotFound is returned by store lookups when no row matches.
var ErrNotFound = errors.New("not found")
