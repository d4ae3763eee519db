package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_PlainText(t *testing.T) {
	e := NewKeywordTagExtractor()

	tags := e.Extract("We recommend you review the family's life coverage immediately. " +
		"A pension plan and the family discount are worth a look.")

	assert.Equal(t, []string{TagUrgent, TagReview, TagLife, TagPension, TagDiscount}, tags)
}

func TestExtract_HTML(t *testing.T) {
	e := NewKeywordTagExtractor()

	tags := e.Extract(`<html><head><style>.health{}</style></head>
<body><h1>Summary</h1><p>Consider an <b>upgrade</b> of health cover.</p></body></html>`)

	assert.Equal(t, []string{TagUpgrade, TagHealth}, tags)
}

func TestExtract_NoMatches(t *testing.T) {
	e := NewKeywordTagExtractor()

	assert.Empty(t, e.Extract("Nothing relevant here."))
	assert.Nil(t, e.Extract("   "))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "a b c", plainText("  a\n\tb   c "))
	assert.Equal(t, "Hi there", plainText("<p>Hi</p> <p>there</p>"))
}
