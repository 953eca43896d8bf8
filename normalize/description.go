package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	breakRegex      = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEndRegex   = regexp.MustCompile(`(?i)</(p|li|div)>`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// Description reduces agent-supplied markup to plain text. Plain text is
// returned as is.
func Description(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}

	withBreaks := breakRegex.ReplaceAllString(raw, "\n")
	withBreaks = blockEndRegex.ReplaceAllString(withBreaks, "\n</$1>")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(withBreaks))
	if err != nil {
		return raw
	}

	text := doc.Text()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
