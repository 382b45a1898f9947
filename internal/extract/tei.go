package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/scrkit/papermeta/internal/model"
)

// HeaderService processes a PDF and returns its bibliographic header as a
// TEI XML document.
type HeaderService interface {
	ProcessHeader(ctx context.Context, pdfPath string) ([]byte, error)
}

// GrobidExtractor sends the PDF to a GROBID service and parses the returned
// TEI header. Structured header analysis is the strongest local signal, so its
// candidates carry the highest raw confidences.
type GrobidExtractor struct {
	client HeaderService
}

func NewGrobidExtractor(client HeaderService) *GrobidExtractor {
	return &GrobidExtractor{client: client}
}

func (e *GrobidExtractor) Name() string { return "grobid" }

// teiHeader mirrors the subset of GROBID's TEI output the pipeline consumes.
type teiHeader struct {
	FileDesc struct {
		TitleStmt struct {
			Titles []teiTitle `xml:"title"`
		} `xml:"titleStmt"`
		SourceDesc struct {
			BiblStruct struct {
				Analytic struct {
					Authors []teiAuthor `xml:"author"`
					IDNos   []teiIDNo   `xml:"idno"`
				} `xml:"analytic"`
				Monogr struct {
					Titles []teiTitle `xml:"title"`
					Imprint struct {
						Dates []teiDate `xml:"date"`
					} `xml:"imprint"`
				} `xml:"monogr"`
			} `xml:"biblStruct"`
		} `xml:"sourceDesc"`
	} `xml:"fileDesc"`
	ProfileDesc struct {
		TextClass struct {
			Keywords struct {
				Terms []string `xml:"term"`
			} `xml:"keywords"`
		} `xml:"textClass"`
	} `xml:"profileDesc"`
}

type teiTitle struct {
	Level string `xml:"level,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type teiAuthor struct {
	PersName struct {
		Forenames []string `xml:"forename"`
		Surname   string   `xml:"surname"`
	} `xml:"persName"`
	Affiliations []struct {
		Address struct {
			Country string `xml:"country"`
		} `xml:"address"`
	} `xml:"affiliation"`
}

type teiIDNo struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type teiDate struct {
	Type string `xml:"type,attr"`
	When string `xml:"when,attr"`
	Text string `xml:",chardata"`
}

func (e *GrobidExtractor) Extract(ctx context.Context, doc *model.Document) ([]model.CandidateField, error) {
	tei, err := e.client.ProcessHeader(ctx, doc.Path)
	if err != nil {
		return nil, eris.Wrap(err, "grobid: process header")
	}
	return e.parseTEI(tei)
}

func (e *GrobidExtractor) parseTEI(tei []byte) ([]model.CandidateField, error) {
	header, err := decodeTEIHeader(tei)
	if err != nil {
		return nil, err
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
				Evidence:   "tei header",
			})
		}
	}

	add(model.FieldTitle, pickTitle(header.FileDesc.TitleStmt.Titles, "a"), 0.9)
	add(model.FieldJournal, pickTitle(header.FileDesc.SourceDesc.BiblStruct.Monogr.Titles, "j"), 0.8)

	analytic := header.FileDesc.SourceDesc.BiblStruct.Analytic
	if names := joinAuthors(analytic.Authors); names != "" {
		add(model.FieldAuthor, names, 0.9)
	}
	if country := firstCountry(analytic.Authors); country != "" {
		add(model.FieldCountry, country, 0.6)
	}
	for _, id := range analytic.IDNos {
		if strings.EqualFold(id.Type, "doi") {
			add(model.FieldDOI, id.Value, 0.95)
			break
		}
	}

	add(model.FieldYear, pickYear(header.FileDesc.SourceDesc.BiblStruct.Monogr.Imprint.Dates), 0.8)

	if terms := header.ProfileDesc.TextClass.Keywords.Terms; len(terms) > 0 {
		var kept []string
		for _, t := range terms {
			if t = strings.TrimSpace(t); t != "" {
				kept = append(kept, t)
			}
		}
		add(model.FieldKeywords, strings.Join(kept, "; "), 0.85)
	}

	return out, nil
}

// decodeTEIHeader pulls the teiHeader element out of a full TEI document,
// tolerating non-UTF8 declared charsets.
func decodeTEIHeader(tei []byte) (*teiHeader, error) {
	decoder := xml.NewDecoder(bytes.NewReader(tei))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "grobid: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil, eris.New("grobid: no teiHeader element in response")
		}
		if err != nil {
			return nil, eris.Wrap(err, "grobid: read token")
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "teiHeader" {
			continue
		}
		var header teiHeader
		if err := decoder.DecodeElement(&header, &se); err != nil {
			return nil, eris.Wrap(err, "grobid: decode teiHeader")
		}
		return &header, nil
	}
}

// pickTitle prefers the title at the requested level ("a" article, "j" journal)
// and falls back to the first non-empty entry.
func pickTitle(titles []teiTitle, level string) string {
	for _, t := range titles {
		if t.Level == level && strings.TrimSpace(t.Value) != "" {
			return t.Value
		}
	}
	for _, t := range titles {
		if strings.TrimSpace(t.Value) != "" {
			return t.Value
		}
	}
	return ""
}

// joinAuthors renders authors as "Surname, Forenames" joined by semicolons,
// matching how registries report author lists.
func joinAuthors(authors []teiAuthor) string {
	var parts []string
	for _, a := range authors {
		surname := strings.TrimSpace(a.PersName.Surname)
		forename := strings.TrimSpace(strings.Join(a.PersName.Forenames, " "))
		switch {
		case surname != "" && forename != "":
			parts = append(parts, surname+", "+forename)
		case surname != "":
			parts = append(parts, surname)
		case forename != "":
			parts = append(parts, forename)
		}
	}
	return strings.Join(parts, "; ")
}

// firstCountry returns the first affiliation country among the authors.
func firstCountry(authors []teiAuthor) string {
	for _, a := range authors {
		for _, aff := range a.Affiliations {
			if c := strings.TrimSpace(aff.Address.Country); c != "" {
				return c
			}
		}
	}
	return ""
}

// pickYear prefers the published date's when attribute, then its text.
func pickYear(dates []teiDate) string {
	pick := func(d teiDate) string {
		if d.When != "" {
			return d.When
		}
		return strings.TrimSpace(d.Text)
	}
	for _, d := range dates {
		if d.Type == "published" {
			if v := pick(d); v != "" {
				return v
			}
		}
	}
	for _, d := range dates {
		if v := pick(d); v != "" {
			return v
		}
	}
	return ""
}
