package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Config holds the generative-language backend configuration.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns the backend defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:       "gemini-2.5-flash-lite",
		Endpoint:    "https://generativelanguage.googleapis.com",
		MaxTokens:   4096,
		Temperature: 0.2, // low temperature for consistent classification
		Timeout:     60 * time.Second,
	}
}

// Client analyzes emails through the Gemini generateContent API. It
// treats the backend as a best-effort oracle: output is parsed and
// validated, never trusted blindly, and any failure substitutes a
// schema-valid fallback per message. Callers are never exposed to an
// error, only to a guaranteed well-formed analysis.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a Gemini-backed analysis client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// AnalyzeBatch analyzes many emails in one backend round trip. A batch
// of exactly one routes through the single-message prompt, which
// supports a richer reply suggestion. Exactly one analysis is returned
// per input, correlating by emailId; inputs the backend failed to cover
// get the fallback record.
func (c *Client) AnalyzeBatch(ctx context.Context, emails []EmailInput) []EmailAnalysis {
	if len(emails) == 0 {
		return nil
	}
	if len(emails) == 1 {
		return []EmailAnalysis{c.AnalyzeOne(ctx, emails[0])}
	}

	response, err := c.generateContent(ctx, buildBatchPrompt(emails))
	if err != nil {
		log.Printf("WARN: batch analysis failed for %d emails: %v", len(emails), err)
		return fallbackAll(emails)
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(stripFences(response)), &items); err != nil {
		log.Printf("WARN: batch analysis response is not a JSON array: %v", err)
		return fallbackAll(emails)
	}

	// Correlate by emailId, never by position; the backend is asked to
	// answer in order but is not trusted to.
	byID := make(map[string]EmailAnalysis, len(items))
	for _, item := range items {
		id := stringField(item, "emailId")
		if id == "" {
			continue
		}
		byID[id] = coerceAnalysis(id, item)
	}

	analyses := make([]EmailAnalysis, 0, len(emails))
	for _, email := range emails {
		if analysis, ok := byID[email.ID]; ok {
			analyses = append(analyses, analysis)
		} else {
			analyses = append(analyses, FallbackAnalysis(email.ID))
		}
	}
	return analyses
}

// AnalyzeOne analyzes a single email with the focused prompt variant.
func (c *Client) AnalyzeOne(ctx context.Context, email EmailInput) EmailAnalysis {
	response, err := c.generateContent(ctx, buildSinglePrompt(email))
	if err != nil {
		log.Printf("WARN: analysis failed for email %s: %v", email.ID, err)
		return FallbackAnalysis(email.ID)
	}

	var item map[string]any
	if err := json.Unmarshal([]byte(stripFences(response)), &item); err != nil {
		log.Printf("WARN: analysis response for email %s is not JSON: %v", email.ID, err)
		return FallbackAnalysis(email.ID)
	}

	return coerceAnalysis(email.ID, item)
}

// generateContent request/response shapes, per the public v1beta API.
type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generateContent performs one generateContent call and returns the
// backend's free-text reply.
func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contains no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// stripFences removes an optional markdown code-fence wrapper around
// the backend's JSON payload.
func stripFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}

func fallbackAll(emails []EmailInput) []EmailAnalysis {
	analyses := make([]EmailAnalysis, 0, len(emails))
	for _, email := range emails {
		analyses = append(analyses, FallbackAnalysis(email.ID))
	}
	return analyses
}
