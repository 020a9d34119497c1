package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"email-triage/internal/gmail"
	"email-triage/internal/server"
)

// Mailbox is the slice of the mailbox gateway the email endpoints use.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, maxResults int64, after time.Time) ([]string, error)
	FetchMetadata(ctx context.Context, ids []string) []gmail.EmailMetadata
	FetchFull(ctx context.Context, ids []string) []gmail.ProcessedEmail
}

// MailboxFactory builds a mailbox client for one session's token. Each
// request carries its own token, so clients are per-request.
type MailboxFactory func(ctx context.Context, token string) (Mailbox, error)

const (
	// legacyEmailCount is the fixed page of the legacy GET endpoint.
	legacyEmailCount = 10

	// maxIDsPerRequest caps POST /api/emails to avoid timeouts.
	maxIDsPerRequest = 20

	// defaultMetadataCount applies when the query carries no count.
	defaultMetadataCount = 100
)

// EmailHandler serves the email metadata and body endpoints.
type EmailHandler struct {
	newMailbox MailboxFactory
}

// NewEmailHandler creates an email handler over a mailbox factory.
func NewEmailHandler(newMailbox MailboxFactory) *EmailHandler {
	return &EmailHandler{newMailbox: newMailbox}
}

// GetMetadata handles GET /api/emails/metadata?count=&after=.
func (h *EmailHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	mailbox, ok := h.mailbox(w, r)
	if !ok {
		return
	}

	count := int64(defaultMetadataCount)
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid count parameter")
			return
		}
		count = parsed
	}

	var after time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := parseAfter(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid after parameter")
			return
		}
		after = parsed
	}

	ids, err := mailbox.ListMessageIDs(r.Context(), count, after)
	if err != nil {
		log.Printf("ERROR: failed to list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch emails")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"emails": emptyIfNil(mailbox.FetchMetadata(r.Context(), ids)),
	})
}

// GetEmails handles the legacy GET /api/emails: a fixed small page of
// full emails.
func (h *EmailHandler) GetEmails(w http.ResponseWriter, r *http.Request) {
	mailbox, ok := h.mailbox(w, r)
	if !ok {
		return
	}

	ids, err := mailbox.ListMessageIDs(r.Context(), legacyEmailCount, time.Time{})
	if err != nil {
		log.Printf("ERROR: failed to list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch emails")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"emails": emptyIfNil(mailbox.FetchFull(r.Context(), ids)),
	})
}

// GetEmailsByIDs handles POST /api/emails {ids: [...]}: full bodies
// for specific messages, capped per request.
func (h *EmailHandler) GetEmailsByIDs(w http.ResponseWriter, r *http.Request) {
	mailbox, ok := h.mailbox(w, r)
	if !ok {
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request: ids array required")
		return
	}

	ids := body.IDs
	if len(ids) > maxIDsPerRequest {
		ids = ids[:maxIDsPerRequest]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"emails": emptyIfNil(mailbox.FetchFull(r.Context(), ids)),
	})
}

// mailbox resolves the session token into a mailbox client, rejecting
// the request when no session is present.
func (h *EmailHandler) mailbox(w http.ResponseWriter, r *http.Request) (Mailbox, bool) {
	token, ok := server.SessionToken(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}

	mailbox, err := h.newMailbox(r.Context(), token)
	if err != nil {
		log.Printf("ERROR: failed to create mailbox client: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch emails")
		return nil, false
	}
	return mailbox, true
}

// parseAfter accepts a plain date or an RFC 3339 timestamp; either way
// the provider query truncates to day granularity.
func parseAfter(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// emptyIfNil keeps empty result lists encoding as [] instead of null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
