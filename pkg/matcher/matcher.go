// Package matcher scores how well a download's on-disk name matches the title
// that was requested, and picks the best entry in a download directory.
package matcher

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SkipExtensions mark entries that are never candidates: partial downloads,
// torrent and nzb metadata, sync markers, and our own quarantine and unpack
// directories.
var SkipExtensions = map[string]struct{}{
	".fail":    {},
	".part":    {},
	".bts":     {},
	".!ut":     {},
	".torrent": {},
	".magnet":  {},
	".nzb":     {},
	".unpack":  {},
}

// Skippable reports whether name carries a skipped extension.
func Skippable(name string) bool {
	_, ok := SkipExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

type Matcher struct {
	tagMarker string
	threshold int
}

// New returns a matcher that cuts names at " <libTag>.(" and accepts scores at
// or above threshold.
func New(libTag string, threshold int) *Matcher {
	return &Matcher{
		tagMarker: " " + libTag + ".(",
		threshold: threshold,
	}
}

func (m *Matcher) Threshold() int {
	return m.threshold
}

// Normalize drops the library tag suffix and turns underscores into spaces.
func (m *Matcher) Normalize(name string) string {
	if i := strings.Index(name, m.tagMarker); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "_", " ")
}

// Score compares requested and candidate on a 0..100 scale. Word order,
// repeated words and punctuation do not affect the score.
func (m *Matcher) Score(requested, candidate string) int {
	return TokenSetRatio(m.Normalize(requested), m.Normalize(candidate))
}

// Candidate is one scored directory entry.
type Candidate struct {
	Name  string
	Score int
}

// Best scores every non-skipped name against requested and returns the
// highest. Ties keep the earliest name. ok reports whether the best score
// clears the threshold; the best candidate is returned either way so misses
// can be logged.
func (m *Matcher) Best(requested string, names []string) (best Candidate, ok bool) {
	best.Score = -1
	for _, name := range names {
		if Skippable(name) {
			continue
		}
		score := m.Score(requested, name)
		if score > best.Score {
			best = Candidate{Name: name, Score: score}
		}
	}
	if best.Score < 0 {
		return Candidate{}, false
	}
	return best, best.Score >= m.threshold
}

// foldAccents returns a fresh transformer, chains are not safe for concurrent use.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// process lowercases s, folds accents to ASCII and turns anything that is not
// a letter or digit into a space.
func process(s string) string {
	folded, _, err := transform.String(foldAccents(), s)
	if err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r > unicode.MaxASCII:
			// Characters with no ASCII fold are dropped.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func percent(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	// Round half to even, matching the reference scorer.
	return int(math.RoundToEven(100 * ratio(a, b)))
}

// TokenSetRatio compares the shared and distinct words of a and b. Two strings
// with the same set of words always score 100.
func TokenSetRatio(a, b string) int {
	pa, pb := process(a), process(b)
	if pa == "" || pb == "" {
		return 0
	}

	setA, setB := tokenSet(pa), tokenSet(pb)
	common := map[string]struct{}{}
	onlyA := map[string]struct{}{}
	onlyB := map[string]struct{}{}
	for t := range setA {
		if _, ok := setB[t]; ok {
			common[t] = struct{}{}
		} else {
			onlyA[t] = struct{}{}
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB[t] = struct{}{}
		}
	}

	sect := strings.Join(sortedKeys(common), " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(sortedKeys(onlyA), " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(sortedKeys(onlyB), " "))

	return max(
		percent(sect, combinedA),
		percent(sect, combinedB),
		percent(combinedA, combinedB),
	)
}
