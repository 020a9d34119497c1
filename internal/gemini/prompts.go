package gemini

import (
	"fmt"
	"strings"
)

// systemPrompt frames every analysis call. Classification rules live
// here so the per-call prompts stay short.
const systemPrompt = `You are an email analysis assistant for a productivity tool.
Analyze emails and extract actionable insights.

Classification rules:
- Classification: [urgent, newsletter, personal, transactional, promotional, social, work]
- Productivity:
  - "productive" = requires action or a reply (support requests, open cases, approvals, deadlines)
  - "unproductive" = no immediate action needed (greetings, thank-you notes, FYI, automated notifications)
- Sentiment: [positive, neutral, negative, requesting]

Be concise. No filler words. Extract actionable tasks when present.`

// buildBatchPrompt packs every email into one prompt and instructs the
// backend to answer with a bare JSON array, one object per email.
func buildBatchPrompt(emails []EmailInput) string {
	var blocks []string
	for i, email := range emails {
		body := sanitizeBody(email.Body, batchBodyLimit)
		if body == "" {
			body = email.Snippet
		}
		blocks = append(blocks, fmt.Sprintf(`--- EMAIL %d (ID: %s) ---
FROM: %s
SUBJECT: %s
BODY: %s`, i+1, email.ID, email.From, email.Subject, body))
	}

	return fmt.Sprintf(`Analyze ALL %d emails below. Respond ONLY with a JSON array.

%s

For each email, respond with this structure:
{
  "emailId": "exact ID from above",
  "classification": "urgent|newsletter|personal|transactional|promotional|social|work",
  "productivity": "productive|unproductive",
  "sentiment": "positive|neutral|negative|requesting",
  "summary": "Summary of the email (max 15 words)",
  "suggestedReply": "A professional reply suggestion (or null if not applicable)",
  "requiresAction": true|false,
  "keyPoints": ["key point 1", "key point 2"],
  "actionItems": [{"task": "action to take", "priority": "high|medium|low"}]
}

PRODUCTIVITY RULES:
- productive: needs a reply, decision, or approval, or contains a deadline or request
- unproductive: thank-you notes, greetings, newsletters, automated notifications, FYI messages

Return exactly %d objects in order. Only valid JSON, no markdown.`,
		len(emails), strings.Join(blocks, "\n\n"), len(emails))
}

// buildSinglePrompt analyzes one email with a materially richer
// reply-suggestion instruction than the batch variant supports.
func buildSinglePrompt(email EmailInput) string {
	body := sanitizeBody(email.Body, singleBodyLimit)
	if body == "" {
		body = email.Snippet
	}

	return fmt.Sprintf(`Analyze this email.

FROM: %s
SUBJECT: %s
BODY: %s

GENERATE A USEFUL, PROFESSIONAL REPLY SUGGESTION (suggestedReply). If no reply is needed, briefly explain why in suggestedReply instead of null.

Respond with JSON only:
{
  "classification": "urgent|newsletter|personal|transactional|promotional|social|work",
  "productivity": "productive|unproductive",
  "sentiment": "positive|neutral|negative|requesting",
  "summary": "Concise summary",
  "suggestedReply": "Professional reply or null",
  "requiresAction": true|false,
  "keyPoints": ["main points"],
  "actionItems": [{"task": "action", "priority": "high|medium|low"}]
}`, email.From, email.Subject, body)
}
