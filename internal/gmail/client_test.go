package gmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"regexp"
	"sync/atomic"
	"testing"
	"time"
)

var embeddedGetPattern = regexp.MustCompile(`messages/([A-Za-z0-9_-]+)\?`)

// fakeBatchServer answers the batch endpoint with one well-formed JSON
// message per id found in the request body, and counts physical calls.
func fakeBatchServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read batch body: %v", err)
		}

		var payloads []string
		for _, match := range embeddedGetPattern.FindAllStringSubmatch(string(body), -1) {
			id := match[1]
			payloads = append(payloads, fmt.Sprintf(`{
				"id": %q,
				"threadId": "t-%s",
				"snippet": "snippet for %s",
				"internalDate": "1700000000000",
				"labelIds": ["INBOX"],
				"payload": {
					"mimeType": "text/plain",
					"headers": [
						{"name": "From", "value": "Ann Example <ann@example.com>"},
						{"name": "To", "value": "me@example.com"},
						{"name": "Subject", "value": "Subject of %s"}
					],
					"body": {"data": "aGVsbG8", "size": 5}
				}
			}`, id, id, id, id))
		}

		boundary := "batch_server-side"
		w.Header().Set("Content-Type", "multipart/mixed; boundary="+boundary)
		fmt.Fprint(w, batchResponse(boundary, payloads...))
	}))
}

func testClient(serverURL string, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		httpClient: http.DefaultClient,
		config:     config,
		batchURL:   serverURL,
	}
}

func TestFetchMetadata(t *testing.T) {
	var calls atomic.Int32
	server := fakeBatchServer(t, &calls)
	defer server.Close()

	client := testClient(server.URL, nil)
	metadata := client.FetchMetadata(context.Background(), []string{"m1", "m2", "m3"})

	if len(metadata) != 3 {
		t.Fatalf("expected 3 metadata entries, got %d", len(metadata))
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 physical request, got %d", calls.Load())
	}

	first := metadata[0]
	if first.ID != "m1" {
		t.Errorf("ID = %q, want %q", first.ID, "m1")
	}
	if first.From != "Ann Example" || first.FromEmail != "ann@example.com" {
		t.Errorf("From = %q / %q", first.From, first.FromEmail)
	}
	if first.Subject != "Subject of m1" {
		t.Errorf("Subject = %q", first.Subject)
	}
	if first.Date.IsZero() {
		t.Error("Date must come from internalDate")
	}
}

func TestFetchMetadataIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	server := fakeBatchServer(t, &calls)
	defer server.Close()

	client := testClient(server.URL, nil)
	ids := []string{"m1", "m2", "m3"}

	first := client.FetchMetadata(context.Background(), ids)
	second := client.FetchMetadata(context.Background(), ids)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated fetches of the same ids must project equal metadata:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestFetchMetadataCapsAtConfiguredMax(t *testing.T) {
	var calls atomic.Int32
	server := fakeBatchServer(t, &calls)
	defer server.Close()

	client := testClient(server.URL, &Config{MetadataMax: 2, FullChunkSize: 20, ChunkPause: 0})

	metadata := client.FetchMetadata(context.Background(), []string{"m1", "m2", "m3", "m4"})
	if len(metadata) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(metadata))
	}
}

func TestFetchMetadataAbsorbsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	if got := client.FetchMetadata(context.Background(), []string{"m1"}); got != nil {
		t.Errorf("expected nil on transport failure, got %v", got)
	}
}

func TestFetchFullChunks(t *testing.T) {
	var calls atomic.Int32
	server := fakeBatchServer(t, &calls)
	defer server.Close()

	client := testClient(server.URL, &Config{MetadataMax: 50, FullChunkSize: 2, ChunkPause: time.Millisecond})

	ids := []string{"a", "b", "c", "d", "e"}
	emails := client.FetchFull(context.Background(), ids)

	if len(emails) != 5 {
		t.Fatalf("expected 5 emails, got %d", len(emails))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 chunked requests for 5 ids at size 2, got %d", calls.Load())
	}
	if emails[0].Body != "hello" {
		t.Errorf("Body = %q, want decoded %q", emails[0].Body, "hello")
	}
	if emails[0].To != "me@example.com" {
		t.Errorf("To = %q", emails[0].To)
	}
}

func TestFetchFullContextCancelStopsBetweenChunks(t *testing.T) {
	var calls atomic.Int32
	server := fakeBatchServer(t, &calls)
	defer server.Close()

	client := testClient(server.URL, &Config{MetadataMax: 50, FullChunkSize: 1, ChunkPause: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	emails := client.FetchFull(ctx, []string{"a", "b", "c"})
	if len(emails) == 0 {
		t.Fatal("first chunk should complete before cancellation")
	}
	if len(emails) == 3 {
		t.Error("cancellation during the pause should stop later chunks")
	}
}

func TestParseFrom(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantEmail string
	}{
		{`"Ann Example" <ann@example.com>`, "Ann Example", "ann@example.com"},
		{`Ann Example <ann@example.com>`, "Ann Example", "ann@example.com"},
		{`<ann@example.com>`, "ann@example.com", "ann@example.com"},
		{`ann@example.com`, "ann@example.com", "ann@example.com"},
		{`not an address`, "not an address", "not an address"},
	}

	for _, tt := range tests {
		name, email := parseFrom(tt.in)
		if name != tt.wantName || email != tt.wantEmail {
			t.Errorf("parseFrom(%q) = %q, %q; want %q, %q", tt.in, name, email, tt.wantName, tt.wantEmail)
		}
	}
}

func TestSubjectOrPlaceholder(t *testing.T) {
	if got := subjectOrPlaceholder(nil); got != "(No Subject)" {
		t.Errorf("got %q", got)
	}
	headers := []Header{{Name: "subject", Value: "hi"}}
	if got := subjectOrPlaceholder(headers); got != "hi" {
		t.Errorf("header lookup must be case-insensitive, got %q", got)
	}
}

func TestInternalDate(t *testing.T) {
	msg := &Message{InternalDate: "1700000000000"}
	want := time.UnixMilli(1700000000000).UTC()
	if got := internalDate(msg); !got.Equal(want) {
		t.Errorf("internalDate = %v, want %v", got, want)
	}
	if got := internalDate(&Message{InternalDate: "garbage"}); !got.IsZero() {
		t.Errorf("unparsable internalDate should be zero, got %v", got)
	}
}
