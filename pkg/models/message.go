package models

import "encoding/json"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// FeedbackDirection is a user-supplied judgment on an assistant turn.
type FeedbackDirection string

const (
	FeedbackUp   FeedbackDirection = "up"
	FeedbackDown FeedbackDirection = "down"
)

// Valid reports whether d is a known direction.
func (d FeedbackDirection) Valid() bool { return d == FeedbackUp || d == FeedbackDown }

// Message is one persisted turn in a conversation thread.
//
// MessageID and Timestamp are immutable once written; Timestamp is part of
// the physical ordering key. The feedback fields (Verso, Feedback) are the
// only fields mutable after creation. Attribute names follow the stored
// schema: feedback direction is persisted as `verso`, the comment as
// `feedback`, and the TTL instant as `ExpiryTime` (epoch seconds).
type Message struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	// Timestamp is epoch milliseconds, assigned by the writer (not the
	// store) at write time.
	Timestamp int64   `json:"timestamp"`
	Role      Role    `json:"role"`
	Content   Content `json:"content"`

	// Assistant-only fields.
	StopReason       string                     `json:"stop_reason,omitempty"`
	ResponseMetadata map[string]json.RawMessage `json:"response_metadata,omitempty"`

	// Sources is an ordered sequence of citation records. The store never
	// inspects them.
	Sources []json.RawMessage `json:"sources,omitempty"`

	Verso    FeedbackDirection `json:"verso,omitempty"`
	Feedback string            `json:"feedback,omitempty"`

	// ExpiryTime is the epoch-second instant after which the record is
	// eligible for automatic removal. Zero means no expiry.
	ExpiryTime int64 `json:"ExpiryTime,omitempty"`

	// CreatedAt/UpdatedAt are ISO-8601 text, maintained by the store.
	// UpdatedAt advances on any mutation, including feedback updates.
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
