package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const (
	maxPromptBodyBytes    = 8000
	maxPromptSnippetBytes = 1500
	maxDraftReplyBytes    = 4000
	maxCategoryBytes      = 64
	maxTeamBytes          = 128
)

const systemPrompt = "You are a backend service that MUST respond with STRICT JSON only. " +
	"No prose, no markdown, no explanations. " +
	"If you cannot comply, return an empty JSON object {}."

const schemaHint = `{
  "category": "short label like 'billing', 'technical', 'account'",
  "priority": "one of: low, medium, high, urgent",
  "team": "best-fit internal team (e.g. 'billing', 'support', 'engineering')",
  "draft_reply": "a short, polite email-style reply to the customer, using the KB if relevant",
  "summary": "one-line summary of the issue",
  "confidence": "number between 0 and 1",
  "auto_resolve": "true only if the draft reply fully resolves the issue without human review"
}`

// LLMClassifier classifies tickets by prompting a chat model for a JSON object.
type LLMClassifier struct {
	provider    models.ChatProvider
	temperature float64
}

// NewLLMClassifier creates an LLMClassifier backed by provider.
func NewLLMClassifier(provider models.ChatProvider, temperature float64) *LLMClassifier {
	return &LLMClassifier{provider: provider, temperature: temperature}
}

func (c *LLMClassifier) Name() string { return c.provider.Name() }

func (c *LLMClassifier) Classify(ctx context.Context, req models.ClassifyRequest) (models.Classification, error) {
	raw, err := c.provider.Complete(ctx, models.ChatRequest{
		System:      systemPrompt,
		Messages:    []models.ChatMessage{{Role: "user", Content: buildPrompt(req)}},
		Temperature: c.temperature,
	})
	if err != nil {
		return models.Classification{}, err
	}

	out, err := parseClassification(raw)
	if err != nil {
		return models.Classification{}, err
	}
	out.RawOutput = truncateString(raw, maxDraftReplyBytes)
	out.ClassifierName = c.Name()
	if out.Summary == "" {
		out.Summary = firstRunes(req.Ticket.Subject, summaryMaxRunes)
	}
	return out, nil
}

func buildPrompt(req models.ClassifyRequest) string {
	var kb strings.Builder
	if len(req.KBResults) == 0 {
		kb.WriteString("No KB context available.")
	}
	for i, r := range req.KBResults {
		if i > 0 {
			kb.WriteString("\n\n-----\n")
		}
		fmt.Fprintf(&kb, "[%s #%d]\n%s", r.DocumentTitle, r.ChunkIndex, truncateString(r.Text, maxPromptSnippetBytes))
	}

	return fmt.Sprintf(`You will receive instructions and must respond with JSON only.

Schema (example shape, not actual data):

%s

You are a support triage assistant for a SaaS product. Classify the ticket,
assign a priority, choose the team, and draft a reply using the knowledge base
when relevant.

Ticket subject:
%s

Ticket body:
%s

Knowledge-base snippets:
%s`, schemaHint, req.Ticket.Subject, truncateString(req.Ticket.Body, maxPromptBodyBytes), kb.String())
}

type llmOutput struct {
	Category    any `json:"category"`
	Priority    any `json:"priority"`
	Team        any `json:"team"`
	DraftReply  any `json:"draft_reply"`
	Summary     any `json:"summary"`
	Confidence  any `json:"confidence"`
	AutoResolve any `json:"auto_resolve"`
}

// parseClassification extracts the outermost JSON object from model text and
// applies defaults for missing or malformed fields.
func parseClassification(raw string) (models.Classification, error) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return models.Classification{}, fmt.Errorf("%w: no JSON object in model output", ErrInvalidResponse)
	}

	var obj llmOutput
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	category := truncateString(plainText(stringField(obj.Category)), maxCategoryBytes)
	if category == "" {
		category = "general"
	}
	team := truncateString(plainText(stringField(obj.Team)), maxTeamBytes)
	if team == "" {
		team = "support"
	}
	priority := strings.ToLower(strings.TrimSpace(stringField(obj.Priority)))
	if !models.ValidPriority(priority) {
		priority = models.PriorityMedium
	}

	return models.Classification{
		Category:    category,
		Label:       category,
		Team:        team,
		Priority:    priority,
		DraftReply:  truncateString(plainText(stringField(obj.DraftReply)), maxDraftReplyBytes),
		Summary:     firstRunes(plainText(stringField(obj.Summary)), summaryMaxRunes),
		Confidence:  confidenceField(obj.Confidence),
		AutoResolve: boolField(obj.AutoResolve),
	}, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// confidenceField accepts a finite number or numeric string, clamped to [0, 1].
func confidenceField(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err != nil {
			return nil
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = min(max(f, 0), 1)
	return &f
}

func boolField(v any) *bool {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			b = true
		case "false", "no":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

var _ models.Classifier = (*LLMClassifier)(nil)
