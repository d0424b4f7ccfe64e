package store

// ChatMessage is one entry of the conversation history.
// History is append-only within a turn; the host may truncate and retry
// earlier turns, producing a new suffix.
type ChatMessage struct {
	Role     string  `json:"role"` // "user" | "model"
	Text     string  `json:"text"`
	Images   []Image `json:"images,omitempty"`
	Thinking string  `json:"thinking,omitempty"`
}

// Image is an inline image attached to a message.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// DocumentAttachment is a reference source document owned by the session.
// Native attachments are opaque binaries passed through to the provider
// untouched; text attachments are token-counted and subject to truncation.
type DocumentAttachment struct {
	Name     string `json:"name"`
	Native   bool   `json:"native"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Session is the active conversation state held in memory. The document
// markup itself is NOT stored here: the hosting editor owns it and supplies
// it fresh on every turn.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	History     []ChatMessage        `json:"history"`
	Attachments []DocumentAttachment `json:"attachments"`

	// Metadata for last interaction
	LastQuery string `json:"last_query"`
}

const (
	ChatMessageRoleUser  = "user"
	ChatMessageRoleModel = "model"
)
