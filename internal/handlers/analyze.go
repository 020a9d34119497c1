package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"email-triage/internal/gemini"
	"email-triage/internal/server"
)

// Analyzer analyzes a batch of emails. Implementations never fail;
// untrustworthy backend output is substituted per message.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, emails []gemini.EmailInput) []gemini.EmailAnalysis
}

// AnalysisCache receives validated analyses for write-through
// persistence.
type AnalysisCache interface {
	Put(analyses []gemini.EmailAnalysis) error
}

// AnalyzeHandler serves POST /api/analyze.
type AnalyzeHandler struct {
	analyzer Analyzer
	cache    AnalysisCache
}

// NewAnalyzeHandler creates an analyze handler.
func NewAnalyzeHandler(analyzer Analyzer, cache AnalysisCache) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, cache: cache}
}

// Analyze classifies and summarizes the posted emails, writes the
// validated records through to the cache, and returns them. Every
// posted email gets exactly one analysis, fallback or not.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if _, ok := server.SessionToken(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var body struct {
		Emails []gemini.EmailInput `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Emails == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	analyses := h.analyzer.AnalyzeBatch(r.Context(), body.Emails)
	if err := h.cache.Put(analyses); err != nil {
		log.Printf("WARN: failed to cache %d analyses: %v", len(analyses), err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": emptyIfNil(analyses),
	})
}
