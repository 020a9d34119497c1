package gemini

// Classification buckets an email for triage.
type Classification string

const (
	ClassificationUrgent        Classification = "urgent"
	ClassificationNewsletter    Classification = "newsletter"
	ClassificationPersonal      Classification = "personal"
	ClassificationTransactional Classification = "transactional"
	ClassificationPromotional   Classification = "promotional"
	ClassificationSocial        Classification = "social"
	ClassificationWork          Classification = "work"
)

// Productivity marks whether an email demands action or can be skimmed.
type Productivity string

const (
	Productive   Productivity = "productive"
	Unproductive Productivity = "unproductive"
)

// Sentiment is the backend's read of the sender's tone.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentRequesting Sentiment = "requesting"
)

// ActionItem is one task extracted from an email.
type ActionItem struct {
	Task     string `json:"task"`
	Priority string `json:"priority"`
	DueDate  string `json:"dueDate,omitempty"`
}

// EmailAnalysis is the validated analysis record for one message.
// Every field carries a valid-enum default when the backend output is
// missing or out of domain; an EmailAnalysis is never partially
// well-typed. Records are immutable once cached; re-analysis overwrites
// by id.
type EmailAnalysis struct {
	EmailID        string         `json:"emailId"`
	Classification Classification `json:"classification"`
	Productivity   Productivity   `json:"productivity"`
	Sentiment      Sentiment      `json:"sentiment"`
	Summary        string         `json:"summary"`
	SuggestedReply string         `json:"suggestedReply,omitempty"`
	RequiresAction bool           `json:"requiresAction"`
	KeyPoints      []string       `json:"keyPoints"`
	ActionItems    []ActionItem   `json:"actionItems"`
}

// EmailInput is the slice of a message the analysis prompt sees.
type EmailInput struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Snippet string `json:"snippet"`
}

const (
	maxKeyPoints   = 3
	maxActionItems = 5
)

// FallbackAnalysis is the schema-valid, low-confidence record
// substituted whenever the backend's output cannot be trusted.
func FallbackAnalysis(emailID string) EmailAnalysis {
	return EmailAnalysis{
		EmailID:        emailID,
		Classification: ClassificationPersonal,
		Productivity:   Unproductive,
		Sentiment:      SentimentNeutral,
		Summary:        "Analysis unavailable.",
		RequiresAction: false,
		KeyPoints:      []string{},
		ActionItems:    []ActionItem{},
	}
}

func coerceClassification(value string) Classification {
	switch c := Classification(value); c {
	case ClassificationUrgent, ClassificationNewsletter, ClassificationPersonal,
		ClassificationTransactional, ClassificationPromotional,
		ClassificationSocial, ClassificationWork:
		return c
	}
	return ClassificationPersonal
}

func coerceProductivity(value string) Productivity {
	if Productivity(value) == Productive {
		return Productive
	}
	return Unproductive
}

func coerceSentiment(value string) Sentiment {
	switch s := Sentiment(value); s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentRequesting:
		return s
	}
	return SentimentNeutral
}

func coercePriority(value string) string {
	switch value {
	case "high", "medium", "low":
		return value
	}
	return "medium"
}

// coerceAnalysis turns one untyped response object into a fully typed
// record, substituting a documented default for every invalid or
// missing field. The untyped tree is never trusted until each field is
// checked.
func coerceAnalysis(emailID string, raw map[string]any) EmailAnalysis {
	analysis := EmailAnalysis{
		EmailID:        emailID,
		Classification: coerceClassification(stringField(raw, "classification")),
		Productivity:   coerceProductivity(stringField(raw, "productivity")),
		Sentiment:      coerceSentiment(stringField(raw, "sentiment")),
		Summary:        stringField(raw, "summary"),
		SuggestedReply: stringField(raw, "suggestedReply"),
		RequiresAction: boolField(raw, "requiresAction"),
		KeyPoints:      []string{},
		ActionItems:    []ActionItem{},
	}
	if analysis.Summary == "" {
		analysis.Summary = "Unable to summarize."
	}

	if points, ok := raw["keyPoints"].([]any); ok {
		for _, point := range points {
			if s, ok := point.(string); ok {
				analysis.KeyPoints = append(analysis.KeyPoints, s)
			}
			if len(analysis.KeyPoints) == maxKeyPoints {
				break
			}
		}
	}

	if items, ok := raw["actionItems"].([]any); ok {
		for _, entry := range items {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			task := stringField(item, "task")
			if task == "" {
				task = "Task"
			}
			analysis.ActionItems = append(analysis.ActionItems, ActionItem{
				Task:     task,
				Priority: coercePriority(stringField(item, "priority")),
				DueDate:  stringField(item, "dueDate"),
			})
			if len(analysis.ActionItems) == maxActionItems {
				break
			}
		}
	}

	return analysis
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func boolField(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}
