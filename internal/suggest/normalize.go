package suggest

import (
	"regexp"
	"strings"
)

// NoTitleSentinel is the exact reply the identification prompt asks the
// provider to give when it cannot name a single movie.
const NoTitleSentinel = "NO_CLEAR_MOVIE_TITLE_FOUND"

var (
	quotedPattern = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)

	leadInPattern = regexp.MustCompile(
		`(?i)^(?:the most probable movie title is|the movie title is|it is likely)\s*:?\s*`,
	)
	labelPattern = regexp.MustCompile(`(?i)^(?:movie title|title|movie)\s*:\s*`)

	// "1.", "2)", "3," numbering or "-", "*", "•" bullets. A bare number is
	// left alone so "1917" survives.
	listMarkerPattern = regexp.MustCompile(`^(?:\d+[.,)]\s*|[-*•]+\s*)`)

	lineSplit = regexp.MustCompile(`\r?\n`)
)

// errorPhrasePattern matches the failure phrases providers reply with, as
// whole words so titles like "Terror Train" survive.
var errorPhrasePattern = regexp.MustCompile(
	`(?i)\b(?:error|not configured|timed out|did not return|failed to connect)\b`,
)

// stage is one pure cleaning step over a candidate title.
type stage func(string) string

// titleStages run after the candidate has been chosen (quoted substring or
// prefix-stripped text).
var titleStages = []stage{
	stripQuotes,
	stripTrailingPeriod,
}

// NormalizeSingle turns one provider reply into a title. ok is false when the
// reply is the sentinel, cleans to nothing, or reads like a provider error.
func NormalizeSingle(raw string) (title string, ok bool) {
	text := strings.TrimSpace(raw)
	if isSentinel(text) {
		return "", false
	}

	if quoted, found := extractQuoted(text); found {
		text = quoted
	} else {
		text = stripPrefix(text)
	}
	for _, st := range titleStages {
		text = strings.TrimSpace(st(text))
	}

	if text == "" || IsErrorPhrase(text) {
		return "", false
	}
	return text, true
}

// NormalizeList splits a multi-line reply into at most maxItems distinct
// titles, keeping first-seen order. Duplicates compare case-insensitively.
func NormalizeList(raw string, maxItems int) []string {
	if maxItems <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	titles := make([]string, 0, maxItems)
	for _, line := range lineSplit.Split(raw, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = stripListMarker(line)
		title, ok := NormalizeSingle(line)
		if !ok {
			continue
		}
		key := Key(title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		titles = append(titles, title)
		if len(titles) == maxItems {
			break
		}
	}
	return titles
}

// Key is the comparison form of a title: trimmed and lower-cased.
func Key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// IsErrorPhrase reports whether text contains one of the phrases providers
// use for failures, as whole words.
func IsErrorPhrase(text string) bool {
	return errorPhrasePattern.MatchString(text)
}

func isSentinel(text string) bool {
	return text == NoTitleSentinel
}

func extractQuoted(text string) (string, bool) {
	m := quotedPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func stripPrefix(text string) string {
	text = leadInPattern.ReplaceAllString(text, "")
	text = labelPattern.ReplaceAllString(text, "")
	return stripListMarker(strings.TrimSpace(text))
}

func stripListMarker(text string) string {
	return strings.TrimSpace(listMarkerPattern.ReplaceAllString(text, ""))
}

var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
	{"‘", "’"},
}

func stripQuotes(text string) string {
	for _, p := range quotePairs {
		if len(text) > len(p[0])+len(p[1])-1 &&
			strings.HasPrefix(text, p[0]) && strings.HasSuffix(text, p[1]) {
			return text[len(p[0]) : len(text)-len(p[1])]
		}
	}
	return text
}

// stripTrailingPeriod drops one final period but keeps dotted initials such
// as "E.T.".
func stripTrailingPeriod(text string) string {
	if !strings.HasSuffix(text, ".") {
		return text
	}
	n := len(text)
	if n >= 3 && text[n-3] == '.' {
		return text
	}
	return text[:n-1]
}
