package ai

import (
	"context"
	"strings"

	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// rule is one keyword family of the rules classifier. The first matching rule wins.
// autoResolve is set only where the draft reply lets the customer fix the
// problem alone; incidents always go to a human whatever the confidence.
type rule struct {
	keywords    []string
	category    string
	label       string
	team        string
	priority    string
	confidence  float64
	autoResolve bool
	reply       string
}

var rules = []rule{
	{
		keywords:    []string{"password", "login", "2fa", "mfa", "auth"},
		category:    "account",
		label:       "login_issue",
		team:        "Auth Support",
		priority:    models.PriorityHigh,
		confidence:  0.88,
		autoResolve: true,
		reply: "Hi,\n\nIt looks like you are having trouble signing in. " +
			"Please reset your password with the \"Forgot password\" link on the sign-in page. " +
			"If two-factor authentication is enabled, check that your authenticator app's clock is in sync. " +
			"If it still fails, reply with the exact error message and we will dig in.\n\n" +
			"Best,\nAuth Support",
	},
	{
		keywords:   []string{"billing", "invoice", "payment", "card", "charge", "refund"},
		category:   "billing",
		label:      "billing",
		team:       "Billing Support",
		priority:   models.PriorityHigh,
		confidence: 0.85,
		reply: "Hi,\n\nThanks for contacting us about billing. " +
			"Please send the invoice ID and the last four digits of the card that was charged. " +
			"We will review the recent transactions on your account and correct any discrepancy.\n\n" +
			"Best,\nBilling Support",
	},
	{
		keywords:   []string{"latency", "slow", "timeout", "500", "503", "error"},
		category:   "technical",
		label:      "performance_incident",
		team:       "Platform SRE",
		priority:   models.PriorityUrgent,
		confidence: 0.9,
		reply: "Hi,\n\nWe are sorry you are seeing degraded performance. " +
			"We are checking service health and logs for elevated latency or errors " +
			"and will follow up with mitigation steps and an ETA shortly.\n\n" +
			"Best,\nPlatform Team",
	},
}

var fallbackRule = rule{
	category:   "general",
	label:      "general_support",
	team:       "General Support",
	priority:   models.PriorityMedium,
	confidence: 0.72,
	reply: "Hi,\n\nThanks for reaching out. We have logged your request " +
		"and our support team is looking into it. We will get back to you with an update soon.\n\n" +
		"Best,\nSupport Team",
}

const summaryMaxRunes = 180

// RulesClassifier is a deterministic keyword classifier. It needs no network
// access and never fails.
type RulesClassifier struct{}

// NewRulesClassifier creates a RulesClassifier.
func NewRulesClassifier() *RulesClassifier {
	return &RulesClassifier{}
}

func (c *RulesClassifier) Name() string { return "rules" }

func (c *RulesClassifier) Classify(_ context.Context, req models.ClassifyRequest) (models.Classification, error) {
	text := strings.ToLower(req.Ticket.Subject + "\n\n" + req.Ticket.Body)

	matched := fallbackRule
	for _, r := range rules {
		if containsAny(text, r.keywords) {
			matched = r
			break
		}
	}

	confidence := matched.confidence
	autoResolve := matched.autoResolve
	return models.Classification{
		Category:       matched.category,
		Label:          matched.label,
		Team:           matched.team,
		Priority:       matched.priority,
		DraftReply:     matched.reply,
		Confidence:     &confidence,
		AutoResolve:    &autoResolve,
		Summary:        firstRunes(req.Ticket.Subject, summaryMaxRunes),
		ClassifierName: c.Name(),
	}, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

var _ models.Classifier = (*RulesClassifier)(nil)
