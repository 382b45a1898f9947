package extract

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/pkg/anthropic"
)

const llmSystemPrompt = `You extract bibliographic metadata from the first page of academic papers.
Respond with a single JSON object and nothing else. Use null for fields you cannot determine.
Keys: title, author, year, doi, author_keywords, country, source_journal, study_type.
author is "Surname, Given; Surname, Given". author_keywords is a semicolon-separated list.
country is the first author's affiliation country. study_type is a short label such as
"randomized controlled trial", "systematic review", "qualitative study".`

const llmDOIPrompt = `You find the DOI of an academic paper from its first page.
Respond with a single JSON object {"doi": "..."} and nothing else. Use null when no DOI is present.`

// LLMExtractor sends first-page text to a language model with a fixed JSON
// extraction instruction. Model output is never trusted on its own; a
// well-formed answer still enters reconciliation at the lowest band, and a
// malformed one drops to zero confidence rather than failing the document.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	pageChars int
}

func NewLLMExtractor(client anthropic.Client, modelID string, maxTokens int64, pageChars int) *LLMExtractor {
	return &LLMExtractor{client: client, model: modelID, maxTokens: maxTokens, pageChars: pageChars}
}

func (e *LLMExtractor) Name() string { return "llm" }

// llmFields uses json.RawMessage so numeric years and nulls both decode.
type llmFields map[string]json.RawMessage

func (e *LLMExtractor) Extract(ctx context.Context, doc *model.Document) ([]model.CandidateField, error) {
	page := e.firstPage(doc)
	if page == "" {
		return nil, nil
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    llmSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: "First page text:\n\n" + page},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: extract")
	}
	resp.Usage.LogCost(e.model, "extract")

	fields, salvaged, ok := parseJSONObject(resp.Text())
	if !ok {
		zap.L().Warn("llm response not parseable", zap.String("doc", doc.Path))
		return nil, nil
	}

	// A response that needed brace salvage did not follow the instruction;
	// its values enter reconciliation at the bottom of the band.
	conf := 0.8
	if salvaged {
		conf = 0.0
	}

	var out []model.CandidateField
	for _, field := range model.Fields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		val := decodeScalar(raw)
		if val == "" {
			continue
		}
		out = append(out, model.CandidateField{
			Field:      field,
			Value:      val,
			Source:     e.Name(),
			Confidence: conf,
			Evidence:   "model response",
		})
	}
	return out, nil
}

// ProbeDOI asks only for the DOI. It is cheaper than full extraction and lets
// registry lookup proceed by DOI when full extraction is disabled.
func (e *LLMExtractor) ProbeDOI(ctx context.Context, doc *model.Document) (string, error) {
	page := e.firstPage(doc)
	if page == "" {
		return "", nil
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 256,
		System:    llmDOIPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: "First page text:\n\n" + page},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: probe doi")
	}
	resp.Usage.LogCost(e.model, "probe_doi")

	fields, _, ok := parseJSONObject(resp.Text())
	if !ok {
		return "", nil
	}
	return decodeScalar(fields["doi"]), nil
}

func (e *LLMExtractor) firstPage(doc *model.Document) string {
	page := strings.TrimSpace(doc.FirstPage())
	if e.pageChars > 0 {
		if r := []rune(page); len(r) > e.pageChars {
			page = string(r[:e.pageChars])
		}
	}
	return page
}

// parseJSONObject tolerates markdown code fences and leading prose around the
// JSON object models sometimes emit. salvaged reports that the object had to
// be cut out of surrounding text.
func parseJSONObject(text string) (fields llmFields, salvaged, ok bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), &fields); err == nil {
		return fields, false, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, false, false
	}
	return fields, true, true
}

// decodeScalar renders a JSON string, number, or array value as a plain
// string; null and objects become "".
func decodeScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, "; "))
	}
	return ""
}
