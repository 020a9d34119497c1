package gmail

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client talks to the Gmail API on behalf of one session. Listing goes
// through the official service; metadata and body fetches go through
// the hand-built batch transport because the official client has no
// batch surface.
type Client struct {
	service    *gmailapi.Service
	httpClient *http.Client
	config     *Config

	batchURL string
}

// Config bounds the client's request behavior.
type Config struct {
	// MetadataMax caps how many messages one FetchMetadata call may
	// batch. Defensive upper bound on worst-case latency.
	MetadataMax int

	// FullChunkSize bounds the sub-batches FetchFull splits its id
	// list into.
	FullChunkSize int

	// ChunkPause is the deliberate backpressure pause between full
	// fetch sub-batches, respecting provider fair-use limits.
	ChunkPause time.Duration
}

// DefaultConfig returns the limits the service runs with.
func DefaultConfig() *Config {
	return &Config{
		MetadataMax:   50,
		FullChunkSize: 20,
		ChunkPause:    100 * time.Millisecond,
	}
}

// NewClient creates a Gmail client authorized by the session's bearer
// token.
func NewClient(ctx context.Context, accessToken string, config *Config) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, source)

	service, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		service:    service,
		httpClient: httpClient,
		config:     config,
		batchURL:   defaultBatchURL,
	}, nil
}

// ListMessageIDs returns up to maxResults message ids from the inbox,
// newest first. A non-zero after restricts the search to messages on or
// after that day.
func (c *Client) ListMessageIDs(ctx context.Context, maxResults int64, after time.Time) ([]string, error) {
	req := c.service.Users.Messages.List("me").Context(ctx)
	if maxResults > 0 {
		req = req.MaxResults(maxResults)
	}
	if !after.IsZero() {
		// Gmail's after: operator is day-granular and inclusive.
		req = req.Q("after:" + after.Format("2006/01/02"))
	}

	resp, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("Gmail list failed: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// FetchMetadata batch-fetches the metadata-only representation of each
// id and projects it into EmailMetadata. Transport failures and dropped
// sub-responses surface as a shorter result list, never an error.
func (c *Client) FetchMetadata(ctx context.Context, ids []string) []EmailMetadata {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > c.config.MetadataMax {
		ids = ids[:c.config.MetadataMax]
	}

	messages, err := c.batchGet(ctx, ids, FormatMetadata)
	if err != nil {
		log.Printf("WARN: metadata batch failed for %d ids: %v", len(ids), err)
		return nil
	}

	metadata := make([]EmailMetadata, 0, len(messages))
	for _, msg := range messages {
		metadata = append(metadata, projectMetadata(msg))
	}
	return metadata
}

// FetchFull batch-fetches the full representation of each id and
// projects it into ProcessedEmail, extracting the renderable body from
// the MIME tree. The id list is chunked with a pause between chunks.
func (c *Client) FetchFull(ctx context.Context, ids []string) []ProcessedEmail {
	var emails []ProcessedEmail
	for start := 0; start < len(ids); start += c.config.FullChunkSize {
		end := min(start+c.config.FullChunkSize, len(ids))

		messages, err := c.batchGet(ctx, ids[start:end], FormatFull)
		if err != nil {
			log.Printf("WARN: full batch failed for %d ids: %v", end-start, err)
			continue
		}
		for _, msg := range messages {
			emails = append(emails, projectFull(msg))
		}

		if end < len(ids) {
			select {
			case <-time.After(c.config.ChunkPause):
			case <-ctx.Done():
				return emails
			}
		}
	}
	return emails
}

// projectMetadata maps a raw message into the list-view projection.
func projectMetadata(msg *Message) EmailMetadata {
	headers := messageHeaders(msg)
	name, email := parseFrom(headerValue(headers, "From"))

	return EmailMetadata{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		From:      name,
		FromEmail: email,
		Subject:   subjectOrPlaceholder(headers),
		Snippet:   msg.Snippet,
		Date:      internalDate(msg),
		Labels:    msg.LabelIDs,
	}
}

// projectFull maps a raw message into the detail-view projection.
func projectFull(msg *Message) ProcessedEmail {
	headers := messageHeaders(msg)
	name, email := parseFrom(headerValue(headers, "From"))

	return ProcessedEmail{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		From:      name,
		FromEmail: email,
		To:        headerValue(headers, "To"),
		Subject:   subjectOrPlaceholder(headers),
		Snippet:   msg.Snippet,
		Date:      internalDate(msg),
		Body:      ExtractBody(msg.Payload),
		Labels:    msg.LabelIDs,
	}
}

func messageHeaders(msg *Message) []Header {
	if msg.Payload == nil {
		return nil
	}
	return msg.Payload.Headers
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func subjectOrPlaceholder(headers []Header) string {
	if subject := headerValue(headers, "Subject"); subject != "" {
		return subject
	}
	return "(No Subject)"
}

// internalDate converts the provider's epoch-millisecond internal
// timestamp. It is authoritative over the Date header: it reflects the
// provider's storage order and is always present.
func internalDate(msg *Message) time.Time {
	ms, err := strconv.ParseInt(msg.InternalDate, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// fromPattern tolerantly splits `"Display Name" <addr@host>` and its
// looser variants.
var fromPattern = regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^>]+@[^>]+)>?$`)

// parseFrom splits a From header into display name and bare address.
// When no display name is present the bare address serves as both.
func parseFrom(from string) (name, email string) {
	match := fromPattern.FindStringSubmatch(from)
	if match == nil {
		return from, from
	}
	email = match[2]
	name = strings.TrimSpace(match[1])
	if name == "" {
		name = email
	}
	return name, email
}
