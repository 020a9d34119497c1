package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultBatchURL = "https://gmail.googleapis.com/batch/gmail/v1"

	// The batch endpoint accepts at most 100 embedded requests per call.
	maxBatchRequests = 100
)

// Format selects how much of each message a batch sub-request fetches.
type Format string

const (
	// FormatFull fetches all headers plus the body MIME tree.
	FormatFull Format = "full"
	// FormatMetadata fetches only the headers the triage list needs.
	FormatMetadata Format = "metadata"
)

// metadataHeaders limits a metadata-format fetch to the headers the
// projection actually reads.
const metadataHeaders = "&metadataHeaders=From&metadataHeaders=To&metadataHeaders=Subject&metadataHeaders=Date"

// batchBoundaryPattern matches the boundary token the server echoes
// back in its multipart response.
var batchBoundaryPattern = regexp.MustCompile(`--batch_[^\r\n]+`)

// newBoundary generates a fresh multipart boundary for one batch call.
// A UUID keeps it from colliding with any boundary-like byte sequence
// in the payload.
func newBoundary() string {
	return "batch_" + uuid.NewString()
}

// buildBatchBody encodes one embedded HTTP GET per message id into a
// multipart/mixed body, each part tagged with a Content-ID.
func buildBatchBody(ids []string, format Format, boundary string) string {
	var b strings.Builder
	for i, id := range ids {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: application/http\r\n")
		fmt.Fprintf(&b, "Content-ID: <item%d>\r\n", i)
		b.WriteString("\r\n")
		fmt.Fprintf(&b, "GET /gmail/v1/users/me/messages/%s?format=%s", id, format)
		if format == FormatMetadata {
			b.WriteString(metadataHeaders)
		}
		b.WriteString("\r\n\r\n")
	}
	fmt.Fprintf(&b, "--%s--", boundary)
	return b.String()
}

// batchGet fetches up to 100 messages in a single physical HTTP
// request. Results are unordered with respect to ids and may be fewer
// than requested; callers correlate by the id embedded in each message,
// never by position.
func (c *Client) batchGet(ctx context.Context, ids []string, format Format) ([]*Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxBatchRequests {
		ids = ids[:maxBatchRequests]
	}

	boundary := newBoundary()
	body := buildBatchBody(ids, format, boundary)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+boundary)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}

	return parseBatchResponse(string(raw)), nil
}

// parseBatchResponse splits a raw multipart batch response on the
// server-echoed boundary and extracts the embedded JSON message from
// each part. Parts that fail to parse, or that parse but carry no id,
// are dropped without aborting the batch.
func parseBatchResponse(raw string) []*Message {
	boundary := batchBoundaryPattern.FindString(raw)
	if boundary == "" {
		return nil
	}

	var messages []*Message
	for _, part := range strings.Split(raw, boundary) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" || trimmed == "--" {
			continue
		}

		// The part wraps an embedded HTTP response; the message JSON is
		// everything between the first '{' and the last '}'.
		start := strings.Index(part, "{")
		end := strings.LastIndex(part, "}")
		if start == -1 || end == -1 || end < start {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(part[start:end+1]), &msg); err != nil {
			continue
		}
		if msg.ID == "" {
			continue
		}
		messages = append(messages, &msg)
	}
	return messages
}
