// Package openalex is a client for the OpenAlex works API.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/reconcile"
	"github.com/scrkit/papermeta/internal/resilience"
)

// Client queries api.openalex.org with client-side rate limiting.
type Client struct {
	baseURL string
	mailTo  string
	limiter *rate.Limiter
	client  *http.Client
	retry   resilience.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(cl *Client) { cl.retry = p }
}

// NewClient creates an OpenAlex client.
func NewClient(baseURL, mailTo string, ratePerSec float64, burst int, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.openalex.org"
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		mailTo:  mailTo,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultPolicy(),
	}
	c.retry.OnRetry = resilience.RetryLogger("openalex", "works")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements the registry interface.
func (c *Client) Name() string { return "openalex" }

// work mirrors the subset of an OpenAlex work the pipeline consumes.
type work struct {
	DisplayName     string `json:"display_name"`
	DOI             string `json:"doi"`
	PublicationYear int    `json:"publication_year"`
	Type            string `json:"type"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Countries []string `json:"countries"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Keywords []struct {
		DisplayName string `json:"display_name"`
	} `json:"keywords"`
}

// LookupDOI resolves one work by DOI. A 404 is a non-match, not an error.
func (c *Client) LookupDOI(ctx context.Context, doi string) (*model.EnrichmentResult, error) {
	var w work
	found, err := c.get(ctx, "/works/"+url.PathEscape("https://doi.org/"+doi), &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return &model.EnrichmentResult{Registry: c.Name()}, nil
	}
	return c.result(&w, 0.95), nil
}

// SearchTitle queries by title and scores the best hit by title similarity.
// A non-empty year narrows the query to works published that year.
func (c *Client) SearchTitle(ctx context.Context, title, year string) (*model.EnrichmentResult, error) {
	var payload struct {
		Results []work `json:"results"`
	}
	path := "/works?per-page=5&filter=title.search:" + url.QueryEscape(title)
	if year != "" {
		path += ",publication_year:" + year
	}
	found, err := c.get(ctx, path, &payload)
	if err != nil {
		return nil, err
	}
	if !found || len(payload.Results) == 0 {
		return &model.EnrichmentResult{Registry: c.Name()}, nil
	}

	best := &payload.Results[0]
	bestScore := 0.0
	for i := range payload.Results {
		w := &payload.Results[i]
		if score := reconcile.TitleSimilarity(title, w.DisplayName); score > bestScore {
			best, bestScore = w, score
		}
	}
	if bestScore == 0 {
		return &model.EnrichmentResult{Registry: c.Name()}, nil
	}
	return c.result(best, bestScore), nil
}

func (c *Client) result(w *work, confidence float64) *model.EnrichmentResult {
	fields := map[string]string{
		model.FieldTitle:   w.DisplayName,
		model.FieldDOI:     strings.TrimPrefix(w.DOI, "https://doi.org/"),
		model.FieldJournal: w.PrimaryLocation.Source.DisplayName,
		model.FieldStudy:   w.Type,
	}
	if w.PublicationYear != 0 {
		fields[model.FieldYear] = strconv.Itoa(w.PublicationYear)
	}
	if names := joinAuthors(w); names != "" {
		fields[model.FieldAuthor] = names
	}
	if country := firstCountry(w); country != "" {
		fields[model.FieldCountry] = country
	}
	if kw := joinKeywords(w); kw != "" {
		fields[model.FieldKeywords] = kw
	}
	return &model.EnrichmentResult{
		Matched:    true,
		Registry:   c.Name(),
		Fields:     fields,
		Confidence: confidence,
	}
}

// get performs one rate-limited GET with retry. It returns found=false on 404.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) (bool, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, eris.Wrap(err, "openalex: rate limit wait")
		}

		u := c.baseURL + path
		if c.mailTo != "" {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			u += sep + "mailto=" + url.QueryEscape(c.mailTo)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return false, eris.Wrap(err, "openalex: build request")
		}
		req.Header.Set("User-Agent", fmt.Sprintf("papermeta/1.0 (mailto:%s)", c.mailTo))

		resp, err := c.client.Do(req)
		if err != nil {
			return false, eris.Wrap(err, "openalex: request")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			return false, nil
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			io.Copy(io.Discard, resp.Body)
			return false, resilience.NewTransientError(
				eris.Errorf("openalex: status %d", resp.StatusCode), resp.StatusCode)
		default:
			io.Copy(io.Discard, resp.Body)
			return false, eris.Errorf("openalex: status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, eris.Wrap(err, "openalex: decode response")
		}
		zap.L().Debug("openalex response", zap.String("path", path))
		return true, nil
	})
}

func joinAuthors(w *work) string {
	var parts []string
	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "; ")
}

func firstCountry(w *work) string {
	for _, a := range w.Authorships {
		for _, c := range a.Countries {
			if c != "" {
				return c
			}
		}
	}
	return ""
}

func joinKeywords(w *work) string {
	var parts []string
	for _, k := range w.Keywords {
		if name := strings.TrimSpace(k.DisplayName); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "; ")
}
