package bridge

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies which provider surface a connection or event belongs to.
type Platform string

const (
	PlatformPage  Platform = "page"
	PlatformPhoto Platform = "photo"
	PlatformAny   Platform = "any"
)

// Valid reports whether p is a recognized platform value. Webhook configs
// may register as "any" to cover both variants.
func (p Platform) Valid() bool {
	return p == PlatformPage || p == PlatformPhoto || p == PlatformAny
}

// Concrete reports whether p names a single provider surface. Webhook URLs
// always carry a concrete platform; "any" appears only on configs.
func (p Platform) Concrete() bool {
	return p == PlatformPage || p == PlatformPhoto
}

// EventStatus is the processing state of a queued event.
type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// Sender identifies which side of a conversation produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Tenant is an operator account receiving messages through the bridge.
type Tenant struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SocialConnection binds a tenant to a provider asset plus the credentials
// for acting on its behalf. Exactly one of PageID and AccountID is set.
type SocialConnection struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	PageID      *string    `json:"page_id,omitempty"`
	AccountID   *string    `json:"account_id,omitempty"`
	AccessToken string     `json:"-"`
	TokenExpiry time.Time  `json:"token_expiry"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Platform derives the platform from which asset ID is populated.
func (c *SocialConnection) Platform() Platform {
	if c.AccountID != nil {
		return PlatformPhoto
	}
	return PlatformPage
}

// ExternalID returns the provider asset ID the connection is bound to.
func (c *SocialConnection) ExternalID() string {
	if c.AccountID != nil {
		return *c.AccountID
	}
	if c.PageID != nil {
		return *c.PageID
	}
	return ""
}

// WebhookConfig is a per-(tenant, platform) endpoint registration.
type WebhookConfig struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Platform          Platform  `json:"platform"`
	VerificationToken string    `json:"-"`
	WebhookURL        *string   `json:"webhook_url,omitempty"`
	GeneratedURL      *string   `json:"generated_url,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// AIProjectBinding maps a tenant to an AI-runtime project and credentials.
// APIKey nil means the global configured key applies.
type AIProjectBinding struct {
	ID            uuid.UUID      `json:"id"`
	TenantID      uuid.UUID      `json:"tenant_id"`
	ProjectID     string         `json:"project_id"`
	RuntimeConfig map[string]any `json:"runtime_config,omitempty"`
	APIKey        *string        `json:"-"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Session is per-(tenant, participant, platform) dialog state. Context is an
// opaque map with the reserved key "conversationHistory".
type Session struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	ParticipantID   string         `json:"participant_id"`
	Platform        Platform       `json:"platform"`
	Context         map[string]any `json:"context"`
	LastInteraction time.Time      `json:"last_interaction"`
	ExpiresAt       time.Time      `json:"expires_at"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Conversation is the logical thread between a participant and a tenant asset.
type Conversation struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	Platform         Platform   `json:"platform"`
	ExternalThreadID string     `json:"external_thread_id"`
	ParticipantID    string     `json:"participant_id"`
	LastMessageAt    time.Time  `json:"last_message_at"`
	SessionID        *uuid.UUID `json:"session_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Message is one atomic exchange record inside a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	ExternalID     *string   `json:"external_id,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// QueuedEvent is the durable record of an inbound webhook event.
type QueuedEvent struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	Platform    Platform       `json:"platform"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	RawPayload  map[string]any `json:"raw_payload"`
	EventTS     time.Time      `json:"event_ts"`
	Status      EventStatus    `json:"status"`
	RetryCount  int            `json:"retry_count"`
	LastRetryAt *time.Time     `json:"last_retry_at,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ProcessingTrace is one append-only audit row for a queued event stage.
type ProcessingTrace struct {
	ID            uuid.UUID      `json:"id"`
	QueuedEventID uuid.UUID      `json:"queued_event_id"`
	Stage         string         `json:"stage"`
	Status        string         `json:"status"`
	Error         *string        `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DeadLetter is a terminally-failed event parked for manual handling.
type DeadLetter struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	OriginalPayload map[string]any `json:"original_payload"`
	Error           string         `json:"error"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	FailedAt        time.Time      `json:"failed_at"`
	Status          string         `json:"status"`
	RetryCount      int            `json:"retry_count"`
}

// DeletionRequest records a provider-initiated data-erasure callback so the
// status URL handed back to the provider can be answered later.
type DeletionRequest struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         *uuid.UUID `json:"tenant_id,omitempty"`
	ExternalUserID   string     `json:"external_user_id"`
	ConfirmationCode string     `json:"confirmation_code"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// MessageType classifies a normalized inbound message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypePostback    MessageType = "postback"
	TypeQuickReply  MessageType = "quick_reply"
	TypeImage       MessageType = "image"
	TypeAudio       MessageType = "audio"
	TypeVideo       MessageType = "video"
	TypeFile        MessageType = "file"
	TypeLocation    MessageType = "location"
	TypeUnsupported MessageType = "unsupported"
)

// Attachment is one canonical attachment on a normalized message.
type Attachment struct {
	Type        MessageType `json:"type"`
	URL         string      `json:"url,omitempty"`
	Description string      `json:"description"`
}

// NormalizedMessage is the canonical form of one inbound provider event,
// identical for both platform variants.
type NormalizedMessage struct {
	Text         string         `json:"text"`
	Type         MessageType    `json:"type"`
	Attachments  []Attachment   `json:"attachments,omitempty"`
	QuickReplies []string       `json:"quick_replies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
