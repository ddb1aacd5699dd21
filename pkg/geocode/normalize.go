package geocode

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	blockRe       = regexp.MustCompile(`(?i)\bBLOCK\s+`)
	leadingZeroRe = regexp.MustCompile(`\b0+(\d+)`)
)

// abbreviation is a whole-word, case-insensitive street-type expansion.
type abbreviation struct {
	re   *regexp.Regexp
	full string
}

// abbreviations is applied in order. The patterns are disjoint, so order does
// not change the result.
var abbreviations = []abbreviation{
	{regexp.MustCompile(`(?i)\bSt\b`), "Street"},
	{regexp.MustCompile(`(?i)\bAve\b`), "Avenue"},
	{regexp.MustCompile(`(?i)\bBlvd\b`), "Boulevard"},
	{regexp.MustCompile(`(?i)\bPky\b`), "Parkway"},
	{regexp.MustCompile(`(?i)\bPkwy\b`), "Parkway"},
	{regexp.MustCompile(`(?i)\bDr\b`), "Drive"},
	{regexp.MustCompile(`(?i)\bRd\b`), "Road"},
	{regexp.MustCompile(`(?i)\bLn\b`), "Lane"},
	{regexp.MustCompile(`(?i)\bCt\b`), "Court"},
	{regexp.MustCompile(`(?i)\bPl\b`), "Place"},
	{regexp.MustCompile(`(?i)\bHwy\b`), "Highway"},
	{regexp.MustCompile(`(?i)\bFwy\b`), "Freeway"},
	{regexp.MustCompile(`(?i)\bCir\b`), "Circle"},
	{regexp.MustCompile(`(?i)\bTer\b`), "Terrace"},
	{regexp.MustCompile(`(?i)\bWy\b`), "Way"},
}

// Normalize cleans a raw dispatch location so textual variants of the same
// place collapse to one form:
//   - NFKC folding (non-breaking and full-width spaces become plain spaces)
//   - "/" becomes " and " (5TH/MAIN is an intersection)
//   - the word BLOCK and the whitespace after it are dropped
//   - leading zeros are stripped from numeric tokens (04TH -> 4TH)
//   - whitespace runs collapse to one space, ends are trimmed
//
// Normalize is idempotent and never fails; empty input yields "".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = collapseSpaces(norm.NFKC.String(s))
	s = strings.ReplaceAll(s, "/", " and ")
	s = blockRe.ReplaceAllString(s, "")
	s = leadingZeroRe.ReplaceAllString(s, "${1}")
	return collapseSpaces(s)
}

// ExpandAbbreviations expands street-type abbreviations (St, Ave, Blvd, ...)
// to full words. Matches are whole-word only, so "Stanley" is left alone.
func ExpandAbbreviations(s string) string {
	for _, a := range abbreviations {
		s = a.re.ReplaceAllString(s, a.full)
	}
	return s
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
