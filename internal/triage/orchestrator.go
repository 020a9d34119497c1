package triage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"email-triage/internal/gemini"
	"email-triage/internal/gmail"
)

// State names a position in the triage state machine.
type State int

const (
	// StateLoading means the initial metadata fetch is in progress.
	StateLoading State = iota
	// StateListing means the head of the pending queue is showing.
	StateListing
	// StateReading means the detail view is open for the current head.
	StateReading
	// StateEmpty means the pending queue is exhausted.
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateListing:
		return "listing"
	case StateReading:
		return "reading"
	case StateEmpty:
		return "empty"
	}
	return "unknown"
}

// Mailbox is the slice of the mailbox gateway the orchestrator drives.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, maxResults int64, after time.Time) ([]string, error)
	FetchMetadata(ctx context.Context, ids []string) []gmail.EmailMetadata
	FetchFull(ctx context.Context, ids []string) []gmail.ProcessedEmail
}

// Analyzer analyzes a batch of emails. It never fails; untrustworthy
// backend output is substituted per message upstream.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, emails []gemini.EmailInput) []gemini.EmailAnalysis
}

// AnalysisCache is the slice of the analysis store the orchestrator
// reads and pre-warms.
type AnalysisCache interface {
	Get(emailID string) (*gemini.EmailAnalysis, error)
	Put(analyses []gemini.EmailAnalysis) error
	UncachedOf(ids []string) ([]string, error)
}

// Config bounds the orchestrator's fetch and pre-warm behavior.
type Config struct {
	// PageSize is how many message ids one Load pulls.
	PageSize int64

	// PrewarmWindow is how many pending messages past each transition
	// get speculative analysis dispatched.
	PrewarmWindow int

	// After restricts the load to messages on or after that day.
	After time.Time
}

// DefaultConfig returns the triage loop defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:      50,
		PrewarmWindow: 10,
	}
}

// Orchestrator drives the triage loop: load a page of metadata,
// pre-warm analysis for the first window, and on each clear or read
// advance the head and pre-warm the next window. All state transitions
// are serialized; concurrent pre-warm work touches shared state only
// through the cache.
type Orchestrator struct {
	mailbox  Mailbox
	analyzer Analyzer
	cache    AnalysisCache
	config   *Config

	mu         sync.Mutex
	state      State
	emails     []gmail.EmailMetadata
	cleared    map[string]struct{}
	full       map[string]gmail.ProcessedEmail
	inflight   map[string]struct{}
	loadFailed bool

	prewarms sync.WaitGroup
}

// New creates an orchestrator over the given collaborators.
func New(mailbox Mailbox, analyzer Analyzer, cache AnalysisCache, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		mailbox:  mailbox,
		analyzer: analyzer,
		cache:    cache,
		config:   config,
		state:    StateLoading,
		cleared:  make(map[string]struct{}),
		full:     make(map[string]gmail.ProcessedEmail),
		inflight: make(map[string]struct{}),
	}
}

// Load fetches the triage page and transitions loading -> listing (or
// empty). A failed fetch leaves an empty queue with LoadFailed set, so
// the surface can tell "nothing to triage" from "fetch failed".
func (o *Orchestrator) Load(ctx context.Context) error {
	o.mu.Lock()
	o.state = StateLoading
	o.loadFailed = false
	o.mu.Unlock()

	ids, err := o.mailbox.ListMessageIDs(ctx, o.config.PageSize, o.config.After)
	if err != nil {
		o.mu.Lock()
		o.state = StateEmpty
		o.loadFailed = true
		o.mu.Unlock()
		return fmt.Errorf("failed to list messages: %w", err)
	}

	metadata := o.mailbox.FetchMetadata(ctx, ids)

	o.mu.Lock()
	o.emails = metadata
	if len(o.pendingLocked()) == 0 {
		o.state = StateEmpty
	} else {
		o.state = StateListing
	}
	window := o.windowLocked()
	o.mu.Unlock()

	o.prewarm(ctx, window)
	return nil
}

// Current returns the head of the pending queue.
func (o *Orchestrator) Current() (gmail.EmailMetadata, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending := o.pendingLocked()
	if len(pending) == 0 {
		return gmail.EmailMetadata{}, false
	}
	return pending[0], true
}

// Clear pops the current head into the cleared set and pre-warms the
// next window. Listing -> listing, or empty once the queue runs out.
func (o *Orchestrator) Clear(ctx context.Context) {
	o.mu.Lock()
	pending := o.pendingLocked()
	if o.state != StateListing || len(pending) == 0 {
		o.mu.Unlock()
		return
	}
	o.cleared[pending[0].ID] = struct{}{}

	if len(o.pendingLocked()) == 0 {
		o.state = StateEmpty
	}
	window := o.windowLocked()
	o.mu.Unlock()

	o.prewarm(ctx, window)
}

// Open ensures the current head's full body and analysis are loaded,
// then transitions listing -> reading. The analysis is served from the
// cache when pre-warm got there first.
func (o *Orchestrator) Open(ctx context.Context) (gmail.ProcessedEmail, gemini.EmailAnalysis, error) {
	o.mu.Lock()
	pending := o.pendingLocked()
	if o.state != StateListing || len(pending) == 0 {
		state := o.state
		o.mu.Unlock()
		return gmail.ProcessedEmail{}, gemini.EmailAnalysis{}, fmt.Errorf("cannot open in state %s", state)
	}
	head := pending[0]
	email, haveFull := o.full[head.ID]
	o.mu.Unlock()

	if !haveFull {
		fetched := o.mailbox.FetchFull(ctx, []string{head.ID})
		if len(fetched) == 0 {
			// Body unavailable; render the snippet in prose form.
			email = gmail.ProcessedEmail{
				ID:        head.ID,
				ThreadID:  head.ThreadID,
				From:      head.From,
				FromEmail: head.FromEmail,
				Subject:   head.Subject,
				Snippet:   head.Snippet,
				Date:      head.Date,
				Body:      head.Snippet,
				Labels:    head.Labels,
			}
		} else {
			email = fetched[0]
		}
		o.mu.Lock()
		o.full[head.ID] = email
		o.mu.Unlock()
	}

	analysis, err := o.cache.Get(head.ID)
	if err != nil {
		log.Printf("WARN: cache read failed for %s: %v", head.ID, err)
	}
	if analysis == nil {
		// Pre-warm has not landed; analyze in the foreground. A batch
		// of one routes through the richer single-message prompt.
		analyses := o.analyzer.AnalyzeBatch(ctx, []gemini.EmailInput{inputFor(email)})
		if err := o.cache.Put(analyses); err != nil {
			log.Printf("WARN: cache write failed for %s: %v", head.ID, err)
		}
		analysis = &analyses[0]
	}

	o.mu.Lock()
	o.state = StateReading
	o.mu.Unlock()

	return email, *analysis, nil
}

// Close returns from the detail view. Reading an email consumes it, so
// close implicitly clears the head.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateReading {
		o.mu.Unlock()
		return
	}
	o.state = StateListing
	o.mu.Unlock()

	o.Clear(ctx)
}

// State reports the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LoadFailed reports whether the last Load failed, distinguishing an
// empty queue from a silently failed fetch.
func (o *Orchestrator) LoadFailed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loadFailed
}

// Pending returns the not-yet-cleared emails in queue order.
func (o *Orchestrator) Pending() []gmail.EmailMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingLocked()
}

// Progress reports how many emails were cleared out of the loaded page.
func (o *Orchestrator) Progress() (cleared, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cleared), len(o.emails)
}

// Wait blocks until all in-flight pre-warm work has completed.
func (o *Orchestrator) Wait() {
	o.prewarms.Wait()
}

func (o *Orchestrator) pendingLocked() []gmail.EmailMetadata {
	pending := make([]gmail.EmailMetadata, 0, len(o.emails))
	for _, email := range o.emails {
		if _, ok := o.cleared[email.ID]; !ok {
			pending = append(pending, email)
		}
	}
	return pending
}

// windowLocked returns the ids of the next pre-warm window: the first
// PrewarmWindow pending messages, head included.
func (o *Orchestrator) windowLocked() []string {
	pending := o.pendingLocked()
	n := min(o.config.PrewarmWindow, len(pending))

	ids := make([]string, 0, n)
	for _, email := range pending[:n] {
		ids = append(ids, email.ID)
	}
	return ids
}

// prewarm dispatches analysis for the window's uncached ids without
// blocking the caller's transition. Results landing after their email
// was cleared are still cached for future reuse; they never force a
// state transition.
func (o *Orchestrator) prewarm(ctx context.Context, ids []string) {
	uncached, err := o.cache.UncachedOf(ids)
	if err != nil {
		log.Printf("WARN: cache difference query failed: %v", err)
		uncached = ids
	}

	o.mu.Lock()
	var dispatch []string
	for _, id := range uncached {
		if _, ok := o.inflight[id]; ok {
			continue
		}
		o.inflight[id] = struct{}{}
		dispatch = append(dispatch, id)
	}
	o.mu.Unlock()

	if len(dispatch) == 0 {
		return
	}

	// Detached from the caller's deadline: in-flight work for emails
	// the user moves past is allowed to complete and land in the cache.
	bg := context.WithoutCancel(ctx)

	o.prewarms.Add(1)
	go func() {
		defer o.prewarms.Done()
		defer func() {
			o.mu.Lock()
			for _, id := range dispatch {
				delete(o.inflight, id)
			}
			o.mu.Unlock()
		}()

		emails := o.mailbox.FetchFull(bg, dispatch)
		if len(emails) == 0 {
			return
		}

		inputs := make([]gemini.EmailInput, 0, len(emails))
		for _, email := range emails {
			inputs = append(inputs, inputFor(email))
		}

		analyses := o.analyzer.AnalyzeBatch(bg, inputs)
		if err := o.cache.Put(analyses); err != nil {
			log.Printf("WARN: failed to cache %d pre-warmed analyses: %v", len(analyses), err)
		}

		o.mu.Lock()
		for _, email := range emails {
			o.full[email.ID] = email
		}
		o.mu.Unlock()
	}()
}

func inputFor(email gmail.ProcessedEmail) gemini.EmailInput {
	return gemini.EmailInput{
		ID:      email.ID,
		From:    email.From,
		Subject: email.Subject,
		Body:    email.Body,
		Snippet: email.Snippet,
	}
}
