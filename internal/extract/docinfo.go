package extract

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"

	"github.com/scrkit/papermeta/internal/model"
)

// DocinfoExtractor reads the PDF's embedded document information dictionary
// (Title, Author, Keywords, CreationDate) and sweeps the first pages of text
// for a DOI. Info dict values are author-supplied and often stale or tooling
// noise, so they rank below structured extraction.
type DocinfoExtractor struct {
	// doiPages bounds the DOI text sweep. DOIs almost always sit on page one.
	doiPages int
}

func NewDocinfoExtractor() *DocinfoExtractor {
	return &DocinfoExtractor{doiPages: 3}
}

func (e *DocinfoExtractor) Name() string { return "docinfo" }

var (
	doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

	// CreationDate is "D:YYYYMMDDHHmmSS..." per the PDF spec.
	pdfDatePattern = regexp.MustCompile(`^D:((?:19|20)\d{2})`)

	// Producer strings that leak into Title/Author fields.
	toolingNoise = regexp.MustCompile(`(?i)microsoft word|acrobat|untitled|\.docx?$|\.indd$|\.qxd$`)
)

func (e *DocinfoExtractor) Extract(ctx context.Context, doc *model.Document) ([]model.CandidateField, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "docinfo: open %s", doc.Path)
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return nil, eris.Wrapf(err, "docinfo: read %s", doc.Path)
	}

	var out []model.CandidateField
	add := func(field, value string, conf float64, evidence string) {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, model.CandidateField{
				Field:      field,
				Value:      value,
				Source:     e.Name(),
				Confidence: conf,
				Evidence:   evidence,
			})
		}
	}

	xref := pdfCtx.XRefTable
	if title := xref.Title; title != "" && !toolingNoise.MatchString(title) {
		add(model.FieldTitle, title, 0.8, "info dict /Title")
	}
	if author := xref.Author; author != "" && !toolingNoise.MatchString(author) {
		add(model.FieldAuthor, author, 0.7, "info dict /Author")
	}
	if kw := xref.Keywords; kw != "" {
		add(model.FieldKeywords, kw, 0.7, "info dict /Keywords")
	}
	if m := pdfDatePattern.FindStringSubmatch(xref.CreationDate); m != nil {
		// Creation date trails actual publication, sometimes by years.
		add(model.FieldYear, m[1], 0.4, "info dict /CreationDate")
	}

	if doi := e.findDOI(doc); doi != "" {
		add(model.FieldDOI, doi, 0.9, "page text pattern match")
	}

	return out, nil
}

// findDOI scans the first pages of already-ingested text for a DOI pattern.
func (e *DocinfoExtractor) findDOI(doc *model.Document) string {
	pages := doc.Pages
	if len(pages) > e.doiPages {
		pages = pages[:e.doiPages]
	}
	for _, page := range pages {
		for _, match := range doiPattern.FindAllString(page, -1) {
			match = strings.TrimRight(match, ".,;:)")
			if isPlausibleDOI(match) {
				return match
			}
		}
	}
	return ""
}

func isPlausibleDOI(doi string) bool {
	slash := strings.Index(doi, "/")
	return len(doi) >= 10 && slash > 0 && slash < len(doi)-1
}
