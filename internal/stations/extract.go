package stations

import (
	"regexp"
	"strings"
)

// Query is an origin/destination phrase pair pulled out of dictated text.
// Either field may be empty when no matching phrase was found; downstream
// resolution simply fails to match for nonsense phrases.
type Query struct {
	FromPhrase string
	ToPhrase   string
}

// queryPattern pairs a compiled regex with the submatch-to-Query assignment
// for that phrasing.
type queryPattern struct {
	re     *regexp.Regexp
	assign func(q *Query, matches []string)
}

// queryPatterns is checked in order; the first match wins. Earlier entries
// are the more explicit phrasings.
var queryPatterns = []queryPattern{
	{
		// "… from london to brighton"
		re: regexp.MustCompile(`\bfrom\s+(.+?)\s+to\s+(.+)$`),
		assign: func(q *Query, m []string) {
			q.FromPhrase = m[1]
			q.ToPhrase = m[2]
		},
	},
	{
		// "… to brighton from london"
		re: regexp.MustCompile(`\bto\s+(.+?)\s+from\s+(.+)$`),
		assign: func(q *Query, m []string) {
			q.ToPhrase = m[1]
			q.FromPhrase = m[2]
		},
	},
	{
		// "london to brighton"
		re: regexp.MustCompile(`^(.+?)\s+to\s+(.+)$`),
		assign: func(q *Query, m []string) {
			q.FromPhrase = m[1]
			q.ToPhrase = m[2]
		},
	},
	{
		// "… from london"
		re: regexp.MustCompile(`\bfrom\s+(.+)$`),
		assign: func(q *Query, m []string) {
			q.FromPhrase = m[1]
		},
	},
	{
		// "… to brighton"
		re: regexp.MustCompile(`\bto\s+(.+)$`),
		assign: func(q *Query, m []string) {
			q.ToPhrase = m[1]
		},
	},
}

// fillerPrefix strips lead-ins like "next train", "trains", "train times
// please" that dictation tends to put before the station phrases.
var fillerPrefix = regexp.MustCompile(`^(?:the\s+)?(?:next\s+)?trains?(?:\s+times?)?\s+`)

// nonWord matches everything that is not a letter, digit, space, or
// apostrophe. Dictation engines occasionally emit punctuation.
var nonWord = regexp.MustCompile(`[^a-z0-9' ]+`)

// ExtractQuery derives an origin/destination phrase pair from free dictated
// text. Matching is case-insensitive and tolerant of leading filler words.
// The zero Query is returned when the text contains no usable phrasing.
func ExtractQuery(transcript string) Query {
	text := strings.ToLower(strings.TrimSpace(transcript))
	text = nonWord.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	text = fillerPrefix.ReplaceAllString(text, "")

	var q Query
	if text == "" {
		return q
	}

	for _, p := range queryPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		p.assign(&q, m)
		break
	}

	q.FromPhrase = strings.TrimSpace(q.FromPhrase)
	q.ToPhrase = strings.TrimSpace(q.ToPhrase)
	return q
}
