// Package insights derives coarse tags from narrative text. The narrative is
// never parsed into the structured profile; tags only annotate it.
package insights

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/pkg/logger"
)

// Tag vocabulary.
const (
	TagUrgent       = "urgent-action"
	TagReview       = "review"
	TagOptimization = "optimization"
	TagUpgrade      = "upgrade"
	TagLife         = "life"
	TagHealth       = "health"
	TagPension      = "pension"
	TagEducation    = "education"
	TagDiscount     = "discount"
)

type rule struct {
	tag      string
	keywords []string
}

var defaultRules = []rule{
	{TagUrgent, []string{"urgent", "urgently", "immediate", "immediately", "asap", "דחוף"}},
	{TagReview, []string{"review", "reassess", "בדיקה"}},
	{TagOptimization, []string{"optimize", "optimise", "optimization", "consolidate", "אופטימיזציה"}},
	{TagUpgrade, []string{"upgrade", "increase", "שדרוג"}},
	{TagLife, []string{"life", "חיים"}},
	{TagHealth, []string{"health", "medical", "בריאות"}},
	{TagPension, []string{"pension", "retirement", "פנסיה"}},
	{TagEducation, []string{"education", "tuition", "חינוך"}},
	{TagDiscount, []string{"discount", "discounts", "הנחה"}},
}

var whitespace = regexp.MustCompile(`\s+`)

// KeywordTagExtractor tags text by matching tokens against a fixed keyword
// table. Output follows table order and has no duplicates.
type KeywordTagExtractor struct {
	order   []string
	byToken map[string]string
}

func NewKeywordTagExtractor() *KeywordTagExtractor {
	e := &KeywordTagExtractor{byToken: make(map[string]string)}
	for _, r := range defaultRules {
		e.order = append(e.order, r.tag)
		for _, kw := range r.keywords {
			e.byToken[kw] = r.tag
		}
	}
	return e
}

func (e *KeywordTagExtractor) Extract(text string) []string {
	text = plainText(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Failed to tokenize narrative", zap.Error(err))
		return nil
	}

	found := make(map[string]bool)
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(strings.Trim(tok.Text, ".,;:!?()[]\"'*-_"))
		if tag, ok := e.byToken[word]; ok {
			found[tag] = true
		}
	}

	var tags []string
	for _, tag := range e.order {
		if found[tag] {
			tags = append(tags, tag)
		}
	}
	return tags
}

// plainText strips markup when the model answered with HTML.
func plainText(text string) string {
	if strings.ContainsRune(text, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
