package gmail

import (
	"time"
)

// Message is the raw Gmail message shape returned by both the REST and
// batch endpoints. Messages are created by the provider and fetched
// read-only; this service never mutates them.
type Message struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds"`
	Snippet      string       `json:"snippet"`
	Payload      *MessagePart `json:"payload"`
	SizeEstimate int64        `json:"sizeEstimate"`
	HistoryID    string       `json:"historyId"`
	InternalDate string       `json:"internalDate"`
}

// Header is a single RFC 5322 header as surfaced by the Gmail API.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody carries the inline payload of a leaf MIME part. Data is
// base64url-encoded; attachments reference an AttachmentID instead.
type PartBody struct {
	Size         int64  `json:"size"`
	Data         string `json:"data,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

// MessagePart is a node in the recursively nested MIME tree. A leaf
// carries Body.Data; a multipart/* node carries Parts.
type MessagePart struct {
	PartID   string         `json:"partId"`
	MimeType string         `json:"mimeType"`
	Filename string         `json:"filename"`
	Headers  []Header       `json:"headers"`
	Body     *PartBody      `json:"body,omitempty"`
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// EmailMetadata is the lightweight, body-free projection of a message
// used by the triage list. Cheap to fetch in bulk.
type EmailMetadata struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	From      string    `json:"from"`
	FromEmail string    `json:"fromEmail"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Date      time.Time `json:"date"`
	Labels    []string  `json:"labels"`
}

// ProcessedEmail is the full detail-view projection: metadata plus the
// To header and the extracted renderable body.
type ProcessedEmail struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	From      string    `json:"from"`
	FromEmail string    `json:"fromEmail"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Date      time.Time `json:"date"`
	Body      string    `json:"body"`
	Labels    []string  `json:"labels"`
}
