package extract

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/scrkit/papermeta/internal/model"
)

// FilenameExtractor guesses metadata from the PDF's file name. Reference
// managers commonly export files as "Author - Year - Title.pdf" or
// "Author (Year) Title.pdf"; this extractor recognizes those shapes and
// nothing more. It never fails, it just proposes fewer fields.
type FilenameExtractor struct{}

func NewFilenameExtractor() *FilenameExtractor { return &FilenameExtractor{} }

func (e *FilenameExtractor) Name() string { return "filename" }

var (
	// "Smith - 2019 - AI in Nursing.pdf"
	dashPattern = regexp.MustCompile(`^(.+?)\s+-\s+((?:19|20)\d{2})\s+-\s+(.+)$`)
	// "Smith (2019) AI in Nursing.pdf" / "Smith et al. (2019) AI in Nursing.pdf"
	parenPattern = regexp.MustCompile(`^(.+?)\s*\(((?:19|20)\d{2})\)\s*(.+)$`)
	// Bare year anywhere in the stem, used as a last resort.
	yearPattern = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	etAlSuffix = regexp.MustCompile(`(?i)\s+et\.?\s*al\.?\s*$`)

	alphaWord = regexp.MustCompile(`^[A-Za-z]`)
)

func (e *FilenameExtractor) Extract(_ context.Context, doc *model.Document) ([]model.CandidateField, error) {
	stem := strings.TrimSuffix(filepath.Base(doc.Path), filepath.Ext(doc.Path))
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return nil, nil
	}

	var out []model.CandidateField
	add := func(field, value string, conf float64) {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, model.CandidateField{
				Field:      field,
				Value:      value,
				Source:     e.Name(),
				Confidence: conf,
				Evidence:   stem,
			})
		}
	}

	if m := dashPattern.FindStringSubmatch(stem); m != nil {
		add(model.FieldAuthor, etAlSuffix.ReplaceAllString(m[1], ""), 0.7)
		add(model.FieldYear, m[2], 0.8)
		add(model.FieldTitle, m[3], 0.6)
		return out, nil
	}

	if m := parenPattern.FindStringSubmatch(stem); m != nil {
		add(model.FieldAuthor, etAlSuffix.ReplaceAllString(m[1], ""), 0.6)
		add(model.FieldYear, m[2], 0.8)
		add(model.FieldTitle, m[3], 0.5)
		return out, nil
	}

	if m := yearPattern.FindStringSubmatch(stem); m != nil {
		add(model.FieldYear, m[1], 0.5)
	}
	// A stem without a recognized shape is more likely a title than anything
	// else, but only if it reads like words rather than an export ID.
	if looksLikeTitle(stem) {
		add(model.FieldTitle, yearPattern.ReplaceAllString(stem, ""), 0.3)
	}

	return out, nil
}

// looksLikeTitle rejects stems such as "1-s2.0-S0123456789" or "fulltext".
func looksLikeTitle(stem string) bool {
	words := strings.Fields(stem)
	if len(words) < 3 {
		return false
	}
	alpha := 0
	for _, w := range words {
		if alphaWord.MatchString(w) {
			alpha++
		}
	}
	return alpha*2 >= len(words)
}
