package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// maxContentRunes caps stored content length after normalization.
	maxContentRunes = 10000

	// maxCombiningRun is the longest run of combining marks kept after a
	// base character. Longer runs are the zalgo pattern and get collapsed.
	maxCombiningRun = 2
)

// SanitizeContent normalizes text to NFC, collapses abusive
// combining-character runs, strips control characters other than
// whitespace, and truncates to the content length cap.
func SanitizeContent(text string) string {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	combining := 0
	count := 0
	for _, r := range text {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r) {
			combining++
			if combining > maxCombiningRun {
				continue
			}
		} else {
			combining = 0
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				continue
			}
		}
		b.WriteRune(r)
		count++
		if count >= maxContentRunes {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
