package interfaces

import (
	"strings"
	"time"
)

// Registration binds a client identifier to the delivery token most recently
// reported by that client.
type Registration struct {
	// Key is the client identifier, typically a phone number. It is the
	// identity of the record.
	Key string `json:"key"`

	// Token is the opaque delivery token issued by the messaging client SDK.
	Token string `json:"token"`

	// Timestamp is the time of the last write, assigned by the store.
	Timestamp time.Time `json:"timestamp"`
}

// MaxKeyBytes is the longest document id Firestore accepts.
const MaxKeyBytes = 1500

// ValidateKey reports whether key can be used as a registration identity in
// every store backend. Document stores reject path separators, the relative
// path elements, ids of the reserved form __name__ and ids over MaxKeyBytes.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return &ValidationError{Message: "Missing phone number or token in request body."}
	case len(key) > MaxKeyBytes:
		return &ValidationError{Message: "Phone number is too long."}
	case strings.Contains(key, "/"), key == ".", key == "..", isReservedID(key):
		return &ValidationError{Message: "Phone number contains characters that cannot be stored."}
	}
	return nil
}

func isReservedID(key string) bool {
	return len(key) >= 4 && strings.HasPrefix(key, "__") && strings.HasSuffix(key, "__")
}

// TokenPrefix returns a shortened token suitable for logs.
func TokenPrefix(token string) string {
	const prefixLen = 10
	if len(token) <= prefixLen {
		return token + "..."
	}
	return token[:prefixLen] + "..."
}

// Notification is the visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushMessage is a single message addressed to one delivery token.
type PushMessage struct {
	Token        string
	Notification Notification

	// Data is delivered to the client application even when it runs in the
	// foreground, where visible notifications are not always surfaced.
	Data map[string]string

	// Icon is applied to web and android notifications when set.
	Icon string
}

// FailureCode classifies a per-recipient delivery failure.
type FailureCode string

const (
	FailureUnregistered        FailureCode = "unregistered"
	FailureInvalidArgument     FailureCode = "invalid-argument"
	FailureQuotaExceeded       FailureCode = "quota-exceeded"
	FailureSenderIDMismatch    FailureCode = "sender-id-mismatch"
	FailureThirdPartyAuthError FailureCode = "third-party-auth-error"
	FailureUnavailable         FailureCode = "unavailable"
	FailureInternal            FailureCode = "internal"
	FailureUnknown             FailureCode = "unknown"
)

// SendResult is the outcome of delivering one message.
type SendResult struct {
	Token     string
	MessageID string
	Code      FailureCode
	Err       error
}

// Success reports whether the message was accepted by the gateway.
func (r SendResult) Success() bool {
	return r.Err == nil
}

// BatchResult aggregates the outcomes of a batch submission. Results are in
// the same order as the submitted messages.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []SendResult
}
