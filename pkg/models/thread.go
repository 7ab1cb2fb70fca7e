package models

// ThreadMetadata summarizes one thread. Exactly one record exists per
// thread: it is created on the first message append to an unseen thread id
// and updated in place thereafter.
type ThreadMetadata struct {
	ThreadID string `json:"thread_id"`
	OrgID    string `json:"org_id"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id"`
	// Origin is an opaque client/channel identifier, set on first append.
	Origin string `json:"origin,omitempty"`
	// IsTemporary selects the short retention window for the thread and all
	// of its messages.
	IsTemporary bool   `json:"is_temporary,omitempty"`
	Title       string `json:"title,omitempty"`
	// UserMessageCount counts user-authored turns; it only ever grows.
	UserMessageCount int64 `json:"user_message_count"`
	// LastTimestamp is the latest message timestamp (epoch ms) seen on the
	// thread. It keys the recency projection.
	LastTimestamp int64 `json:"last_timestamp,omitempty"`

	ExpiryTime int64  `json:"ExpiryTime,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}
