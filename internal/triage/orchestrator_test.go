package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-triage/internal/cache"
	"email-triage/internal/gemini"
	"email-triage/internal/gmail"
)

// fakeMailbox serves a fixed id list and synthesizes metadata and full
// emails on demand. Calls are recorded for assertions.
type fakeMailbox struct {
	mu        sync.Mutex
	ids       []string
	listErr   error
	noBodies  bool
	fullCalls [][]string
}

func (m *fakeMailbox) ListMessageIDs(ctx context.Context, maxResults int64, after time.Time) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if maxResults > 0 && int64(len(m.ids)) > maxResults {
		return m.ids[:maxResults], nil
	}
	return m.ids, nil
}

func (m *fakeMailbox) FetchMetadata(ctx context.Context, ids []string) []gmail.EmailMetadata {
	metadata := make([]gmail.EmailMetadata, 0, len(ids))
	for _, id := range ids {
		metadata = append(metadata, gmail.EmailMetadata{
			ID:      id,
			From:    "Sender",
			Subject: "Subject " + id,
			Snippet: "snippet " + id,
		})
	}
	return metadata
}

func (m *fakeMailbox) FetchFull(ctx context.Context, ids []string) []gmail.ProcessedEmail {
	m.mu.Lock()
	m.fullCalls = append(m.fullCalls, ids)
	m.mu.Unlock()

	if m.noBodies {
		return nil
	}
	emails := make([]gmail.ProcessedEmail, 0, len(ids))
	for _, id := range ids {
		emails = append(emails, gmail.ProcessedEmail{
			ID:      id,
			From:    "Sender",
			Subject: "Subject " + id,
			Snippet: "snippet " + id,
			Body:    "body " + id,
		})
	}
	return emails
}

func (m *fakeMailbox) fetchFullCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullCalls
}

// fakeAnalyzer answers every input with a recognizable analysis and
// records each batch's ids.
type fakeAnalyzer struct {
	mu      sync.Mutex
	batches [][]string
}

func (a *fakeAnalyzer) AnalyzeBatch(ctx context.Context, emails []gemini.EmailInput) []gemini.EmailAnalysis {
	ids := make([]string, 0, len(emails))
	analyses := make([]gemini.EmailAnalysis, 0, len(emails))
	for _, email := range emails {
		ids = append(ids, email.ID)
		analysis := gemini.FallbackAnalysis(email.ID)
		analysis.Summary = "analyzed " + email.ID
		analyses = append(analyses, analysis)
	}

	a.mu.Lock()
	a.batches = append(a.batches, ids)
	a.mu.Unlock()
	return analyses
}

func (a *fakeAnalyzer) analyzedBatches() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batches
}

func messageIDs(n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, fmt.Sprintf("m%d", i))
	}
	return ids
}

func newTestOrchestrator(t *testing.T, mailbox *fakeMailbox, config *Config) (*Orchestrator, *fakeAnalyzer, *cache.Store) {
	t.Helper()
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	analyzer := &fakeAnalyzer{}
	return New(mailbox, analyzer, store, config), analyzer, store
}

func TestLoadPrewarmsFirstWindow(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(50)}
	o, analyzer, store := newTestOrchestrator(t, mailbox, nil)

	require.NoError(t, o.Load(context.Background()))
	assert.Equal(t, StateListing, o.State())

	head, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "m1", head.ID)

	o.Wait()

	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 10, "exactly the first window gets pre-warmed")
	assert.Contains(t, all, "m1")
	assert.Contains(t, all, "m10")
	assert.NotContains(t, all, "m11")

	batches := analyzer.analyzedBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, messageIDs(10), batches[0])
}

func TestClearAdvancesAndPrewarmsOnlyUncached(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(50)}
	o, analyzer, store := newTestOrchestrator(t, mailbox, nil)

	require.NoError(t, o.Load(context.Background()))
	o.Wait()

	o.Clear(context.Background())
	o.Wait()

	head, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "m2", head.ID)

	cleared, total := o.Progress()
	assert.Equal(t, 1, cleared)
	assert.Equal(t, 50, total)

	// The new window is m2 through m11; only m11 is not yet cached.
	batches := analyzer.analyzedBatches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"m11"}, batches[1])

	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 11)
}

func TestClearingEverythingReachesEmpty(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(2)}
	o, _, _ := newTestOrchestrator(t, mailbox, &Config{PageSize: 50, PrewarmWindow: 2})

	require.NoError(t, o.Load(context.Background()))
	o.Clear(context.Background())
	assert.Equal(t, StateListing, o.State())

	o.Clear(context.Background())
	assert.Equal(t, StateEmpty, o.State())

	_, ok := o.Current()
	assert.False(t, ok)

	// Clearing in the empty state is a no-op.
	o.Clear(context.Background())
	assert.Equal(t, StateEmpty, o.State())
	o.Wait()
}

func TestOpenServesPrewarmedAnalysis(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(5)}
	o, analyzer, _ := newTestOrchestrator(t, mailbox, &Config{PageSize: 50, PrewarmWindow: 5})

	require.NoError(t, o.Load(context.Background()))
	o.Wait()

	email, analysis, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReading, o.State())
	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "body m1", email.Body)
	assert.Equal(t, "analyzed m1", analysis.Summary)

	// Pre-warm already fetched the body and cached the analysis; Open
	// must not hit either collaborator again.
	assert.Len(t, mailbox.fetchFullCalls(), 1)
	assert.Len(t, analyzer.analyzedBatches(), 1)

	o.Close(context.Background())
	o.Wait()
	assert.Equal(t, StateListing, o.State())

	head, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "m2", head.ID, "reading an email consumes it")
}

func TestOpenAnalyzesInForegroundWhenNotPrewarmed(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(3)}
	o, analyzer, store := newTestOrchestrator(t, mailbox, &Config{PageSize: 50, PrewarmWindow: 0})

	require.NoError(t, o.Load(context.Background()))
	o.Wait()
	assert.Empty(t, analyzer.analyzedBatches(), "window of zero disables pre-warm")

	_, analysis, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "analyzed m1", analysis.Summary)

	batches := analyzer.analyzedBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"m1"}, batches[0])

	cached, err := store.Get("m1")
	require.NoError(t, err)
	require.NotNil(t, cached, "foreground analysis is written through to the cache")
}

func TestOpenFallsBackToSnippetBody(t *testing.T) {
	mailbox := &fakeMailbox{ids: messageIDs(1), noBodies: true}
	o, _, _ := newTestOrchestrator(t, mailbox, &Config{PageSize: 50, PrewarmWindow: 0})

	require.NoError(t, o.Load(context.Background()))

	email, _, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snippet m1", email.Body)
}

func TestOpenOutsideListingFails(t *testing.T) {
	mailbox := &fakeMailbox{ids: nil}
	o, _, _ := newTestOrchestrator(t, mailbox, nil)

	require.NoError(t, o.Load(context.Background()))
	assert.Equal(t, StateEmpty, o.State())

	_, _, err := o.Open(context.Background())
	assert.Error(t, err)
}

func TestLoadFailureIsDistinguishable(t *testing.T) {
	mailbox := &fakeMailbox{listErr: errors.New("upstream down")}
	o, _, _ := newTestOrchestrator(t, mailbox, nil)

	err := o.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateEmpty, o.State())
	assert.True(t, o.LoadFailed())

	// A later successful load resets the flag.
	mailbox.listErr = nil
	mailbox.ids = messageIDs(1)
	require.NoError(t, o.Load(context.Background()))
	assert.False(t, o.LoadFailed())
	assert.Equal(t, StateListing, o.State())
	o.Wait()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "listing", StateListing.String())
	assert.Equal(t, "reading", StateReading.String())
	assert.Equal(t, "empty", StateEmpty.String())
}
