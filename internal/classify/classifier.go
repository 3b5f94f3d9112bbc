package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// Classifier produces a category and an urgency score in [0,1] for ticket
// text. Both the primary model and the fallback implement it; callers never
// special-case which path produced the result.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Category, float64, error)
}

// categoryRule binds a category to its trigger keywords. Rules are evaluated
// in order; the first category with any keyword hit wins.
type categoryRule struct {
	category domain.Category
	keywords []string
}

var categoryRules = []categoryRule{
	{domain.CategoryBilling, []string{
		"invoice", "payment", "bill", "charge", "refund", "subscription",
		"pricing", "cost", "fee", "transaction", "credit", "debit",
		"billing", "renewal", "upgrade", "downgrade", "plan", "coupon",
	}},
	{domain.CategoryTechnical, []string{
		"error", "bug", "crash", "broken", "not working", "issue",
		"problem", "fix", "debug", "performance", "slow", "loading",
		"api", "server", "database", "connection", "timeout", "503",
		"404", "500", "exception", "stack trace", "freeze",
		"technical", "support", "help",
	}},
	{domain.CategoryLegal, []string{
		"legal", "compliance", "gdpr", "privacy", "terms", "contract",
		"agreement", "law", "regulation", "data protection",
		"intellectual property", "trademark", "copyright", "litigation",
		"lawsuit", "subpoena", "audit",
	}},
}

// urgencyPattern scores text intensity; the highest matching score wins.
type urgencyPattern struct {
	re    *regexp.Regexp
	score float64
}

var urgencyPatterns = []urgencyPattern{
	{regexp.MustCompile(`\b(urgent|asap|immediately|emergency|critical)\b`), 1.0},
	{regexp.MustCompile(`\b(broken|down|crash|crashed|not working)\b`), 0.9},
	{regexp.MustCompile(`\b(soon|quick|fast|priority|high)\b`), 0.7},
	{regexp.MustCompile(`\b(whenever|when you can|low priority)\b`), 0.3},
	{regexp.MustCompile(`\b(fyi|just so you know|information)\b`), 0.1},
}

// KeywordClassifier is the deterministic, bounded-latency fallback. It is
// always available.
type KeywordClassifier struct{}

// NewKeywordClassifier constructs the fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify categorizes text by keyword rules and scores urgency by regex
// intensity patterns. It never returns an error.
func (c *KeywordClassifier) Classify(_ context.Context, text string) (domain.Category, float64, error) {
	lower := strings.ToLower(text)

	category := domain.CategoryGeneral
	for _, rule := range categoryRules {
		if matchesAny(lower, rule.keywords) {
			category = rule.category
			break
		}
	}

	return category, ScoreUrgency(lower), nil
}

// ScoreUrgency derives an urgency score in [0,1] from keyword intensity.
func ScoreUrgency(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, p := range urgencyPatterns {
		if p.re.MatchString(lower) && p.score > score {
			score = p.score
		}
	}
	return score
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
