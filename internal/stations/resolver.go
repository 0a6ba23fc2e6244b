package stations

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Match is a candidate station for a dictated phrase, with its similarity
// score in [0, 1]. Only the top-ranked candidate is used for departure
// lookups; the rest exist for logging and diagnostics.
type Match struct {
	Station Station
	Score   float64
}

// ResolverOption is a functional option for configuring a [Resolver].
type ResolverOption func(*Resolver)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched station to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) ResolverOption {
	return func(r *Resolver) {
		r.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required for a
// station with no phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) ResolverOption {
	return func(r *Resolver) {
		r.fuzzyThreshold = threshold
	}
}

// Resolver maps free-text phrases to ranked station candidates.
//
// Matching proceeds in two stages: Double Metaphone codes filter the
// directory down to phonetic candidates, then Jaro-Winkler similarity ranks
// them. Stations without phonetic overlap still qualify when their string
// similarity clears the higher fuzzy threshold, which catches dictation
// output that is spelled almost right but sounds different ("grate" for
// "gate"). Multi-word names are compared full-string, concatenated, and
// pairwise per token, keeping the best score.
//
// Resolver is read-only after construction and safe for concurrent use.
type Resolver struct {
	dir               *Directory
	phoneticThreshold float64
	fuzzyThreshold    float64

	// codes[i] is the precomputed Double Metaphone code set for dir.stations[i].
	codes []map[string]struct{}
}

// NewResolver creates a Resolver over the given directory.
func NewResolver(dir *Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		dir:               dir,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}

	r.codes = make([]map[string]struct{}, len(dir.stations))
	for i, s := range dir.stations {
		r.codes[i] = codesForTokens(strings.Fields(strings.ToLower(s.Name)))
	}
	return r
}

// Resolve returns all candidate stations for phrase, ordered by descending
// score. An empty or whitespace-only phrase yields an empty slice; a miss is
// a valid outcome, never an error.
func (r *Resolver) Resolve(phrase string) []Match {
	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	if phraseLower == "" {
		return nil
	}

	phraseTokens := strings.Fields(phraseLower)
	phraseCodes := codesForTokens(phraseTokens)

	var matches []Match
	for i, s := range r.dir.stations {
		nameLower := strings.ToLower(s.Name)
		nameTokens := strings.Fields(nameLower)

		score := bestJWScore(phraseTokens, nameTokens, phraseLower, nameLower)

		threshold := r.fuzzyThreshold
		if codesOverlap(phraseCodes, r.codes[i]) {
			threshold = r.phoneticThreshold
		}
		if score >= threshold {
			matches = append(matches, Match{Station: s, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (words too short or without consonants) are
// excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// phrase and the station name over three strategies: full strings,
// space-stripped strings, and the best pairwise token score.
func bestJWScore(phraseTokens, nameTokens []string, phraseFull, nameFull string) float64 {
	score := matchr.JaroWinkler(phraseFull, nameFull, false)

	if len(phraseTokens) > 1 || len(nameTokens) > 1 {
		concat1 := strings.Join(phraseTokens, "")
		concat2 := strings.Join(nameTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, pt := range phraseTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(pt, nt, false); s > score {
				score = s
			}
		}
	}

	return score
}
