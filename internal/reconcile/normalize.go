package reconcile

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/scrkit/papermeta/internal/model"
)

var doiPrefixRe = regexp.MustCompile(`^(https?://(dx\.)?doi\.org/)`)

// NormalizeDOI returns a canonical DOI: lowercased, whitespace removed, with
// any doi.org URL prefix stripped.
func NormalizeDOI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = doiPrefixRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), "")
}

// CleanString folds a string value for equality comparison: lowercase,
// alphanumerics only, no spaces.
func CleanString(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseYear extracts a four-digit year from a value like "2019",
// "2019-03-01" or "March 2019". Returns 0 when none is found.
func ParseYear(s string) int {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil && y >= 1000 && y <= 9999 {
		return y
	}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r)
	}) {
		if len(f) == 4 {
			if y, err := strconv.Atoi(f); err == nil && y >= 1400 && y <= 2200 {
				return y
			}
		}
	}
	return 0
}

var keywordSplitRe = regexp.MustCompile(`[;,/]+`)

// normalizeKeywords folds a keyword list into a sorted, deduplicated,
// semicolon-joined set so ordering and separator differences compare equal.
func normalizeKeywords(s string) string {
	parts := keywordSplitRe.Split(strings.ToLower(s), -1)
	set := make(map[string]bool)
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ";")
}

// NormalizeField folds a candidate value into the comparison key used for
// grouping. Different fields normalize differently: DOIs canonicalize the
// prefix, years parse to integers, keyword lists compare as sets, and plain
// string fields case-fold and strip punctuation.
func NormalizeField(field, value string) string {
	switch field {
	case model.FieldDOI:
		return NormalizeDOI(value)
	case model.FieldYear:
		y := ParseYear(value)
		if y == 0 {
			return ""
		}
		return strconv.Itoa(y)
	case model.FieldKeywords:
		return normalizeKeywords(value)
	default:
		return CleanString(value)
	}
}

// titleTokens returns the cleaned word set of a title.
func titleTokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = CleanString(f)
		if f != "" {
			set[f] = true
		}
	}
	return set
}

// titleAgreementThreshold is the token-set Jaccard similarity above which two
// differently normalized titles are still treated as the same title. The
// threshold tolerates subtitle truncation and OCR noise without conflating
// genuinely different papers.
const titleAgreementThreshold = 0.85

// TitleSimilarity returns the Jaccard similarity of the two titles' token sets.
func TitleSimilarity(a, b string) float64 {
	ta, tb := titleTokens(a), titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// ValuesAgree reports whether two raw values for a field match within
// normalization tolerance.
func ValuesAgree(field, a, b string) bool {
	na, nb := NormalizeField(field, a), NormalizeField(field, b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if field == model.FieldTitle {
		return TitleSimilarity(a, b) >= titleAgreementThreshold
	}
	return false
}

// Suffixes kept attached to a surname when splitting author names.
var nameSuffixes = map[string]bool{
	"jr": true, "jr.": true, "sr": true, "sr.": true,
	"ii": true, "iii": true, "iv": true,
}

// FirstAuthorSurname extracts the first author's surname from an author
// field. Both "Family, Given; ..." and "Given Family; ..." forms are
// handled; the semicolon separates authors in either form.
func FirstAuthorSurname(author string) string {
	first, _, _ := strings.Cut(author, ";")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}
	if family, _, found := strings.Cut(first, ","); found {
		return CleanString(family)
	}
	parts := strings.Fields(first)
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if nameSuffixes[strings.ToLower(last)] && len(parts) > 1 {
		last = parts[len(parts)-2]
	}
	return CleanString(last)
}
