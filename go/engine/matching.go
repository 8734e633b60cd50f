package engine

import (
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/slub/hallucinator/go/set"
)

// DefaultTitleMatchThreshold is the fuzzy-ratio cutoff a backend uses when
// its own threshold is zero or negative.
const DefaultTitleMatchThreshold = 0.95

// greekSubstitutions maps spelled-out Greek letter names to their symbol, so
// "alpha-beta divergence" and "αβ divergence" normalize to the same key.
var greekSubstitutions = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"zeta": "ζ", "eta": "η", "theta": "θ", "iota": "ι", "kappa": "κ",
	"lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ", "omicron": "ο",
	"pi": "π", "rho": "ρ", "sigma": "σ", "tau": "τ", "upsilon": "υ",
	"phi": "φ", "chi": "χ", "psi": "ψ", "omega": "ω",
}

// greekNamesLongestFirst fixes the substitution order: longer names go first
// so "beta", "zeta" and "theta" are replaced before "eta", and "epsilon" and
// "upsilon" before "psi".
var greekNamesLongestFirst = func() []string {
	names := make([]string, 0, len(greekSubstitutions))
	for name := range greekSubstitutions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

var diacriticStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeTitle is the canonical cache-key transform: HTML entity decoding,
// Unicode NFKD decomposition with diacritic-mark stripping, Greek-letter name
// substitution, lowercasing, and collapse of non-alphanumerics to empty. Two
// titles differing only in diacritics, HTML entities, or Greek letter
// spellings normalize to the same key.
func normalizeTitle(title string) string {
	s := html.UnescapeString(title)
	if stripped, _, err := transform.String(diacriticStripper, s); err == nil {
		s = stripped
	}
	s = strings.ToLower(s)
	for _, word := range greekNamesLongestFirst {
		s = strings.ReplaceAll(s, word, greekSubstitutions[word])
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// titleRatio returns a similarity score in [0,1] between two titles, using
// normalized Levenshtein distance the way rapidfuzz's `ratio` does:
// 1 - distance/max(len(a), len(b)).
func titleRatio(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" && nb == "" {
		return 1
	}
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	ratio := 1 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// titlesMatch reports whether a and b are the same work, at or above
// threshold. A threshold <= 0 uses DefaultTitleMatchThreshold.
func titlesMatch(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultTitleMatchThreshold
	}
	return titleRatio(a, b) >= threshold
}

// surnameToken reduces one author name to its bare, lowercase, diacritic-
// stripped surname — the last whitespace-separated component, since authors
// are commonly given as "First Last" or "F. Last".
func surnameToken(author string) string {
	author = strings.TrimSpace(author)
	author = strings.TrimSuffix(author, ".")
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	stripped, _, err := transform.String(diacriticStripper, last)
	if err != nil {
		stripped = last
	}
	var b strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// surnameSet reduces a list of author names to a set of surname tokens,
// skipping "et al." and empty entries.
func surnameSet(authors []string) set.Set {
	s := set.New()
	for _, a := range authors {
		low := strings.ToLower(strings.TrimSpace(a))
		if low == "" || low == "et al" || low == "et al." || low == "others" {
			continue
		}
		if tok := surnameToken(a); tok != "" {
			s.Add(tok)
		}
	}
	return s
}

// NormalizeTitle exports the canonical title-normalization transform for use
// by backend implementations that need to build their own candidate-ranking
// logic (e.g. local FTS5 stores) consistent with the engine's own matching.
func NormalizeTitle(title string) string { return normalizeTitle(title) }

// TitleRatio exports the fuzzy title-similarity ratio for backend use.
func TitleRatio(a, b string) float64 { return titleRatio(a, b) }

// TitlesMatch exports the threshold comparison for backend use.
func TitlesMatch(a, b string, threshold float64) bool { return titlesMatch(a, b, threshold) }

// authorsMatch reports whether refAuthors and foundAuthors plausibly
// describe the same author list: at least one surname from one side appears
// in the other. An empty refAuthors list always matches (nothing to
// contradict); this tolerates ordering differences and "et al." truncation.
func authorsMatch(refAuthors, foundAuthors []string) bool {
	if len(refAuthors) == 0 {
		return true
	}
	ref := surnameSet(refAuthors)
	if ref.IsEmpty() {
		return true
	}
	found := surnameSet(foundAuthors)
	if found.IsEmpty() {
		return false
	}
	return !ref.Intersection(found).IsEmpty()
}
