// Package crossref is a client for the Crossref works API.
package crossref

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

// Client queries api.crossref.org with polite-pool identification and
// client-side rate limiting.
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

// NewClient creates a Crossref client. ratePerSec and burst bound outbound
// request rate; mailTo joins the polite pool when set.
func NewClient(baseURL, mailTo string, ratePerSec float64, burst int, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.crossref.org"
	}
	if ratePerSec <= 0 {
		ratePerSec = 2
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
	c.retry.OnRetry = resilience.RetryLogger("crossref", "works")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements the registry interface.
func (c *Client) Name() string { return "crossref" }

// work mirrors the subset of a Crossref work message the pipeline consumes.
type work struct {
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	DOI            string   `json:"DOI"`
	Subject        []string `json:"subject"`
	Type           string   `json:"type"`
	Author         []struct {
		Family string `json:"family"`
		Given  string `json:"given"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

// LookupDOI resolves one work by DOI. A 404 is a non-match, not an error.
func (c *Client) LookupDOI(ctx context.Context, doi string) (*model.EnrichmentResult, error) {
	var payload struct {
		Message work `json:"message"`
	}
	found, err := c.get(ctx, "/works/"+url.PathEscape(doi), &payload)
	if err != nil {
		return nil, err
	}
	if !found {
		return &model.EnrichmentResult{Registry: c.Name()}, nil
	}
	// A DOI hit is an exact identifier match.
	return c.result(&payload.Message, 0.95), nil
}

// SearchTitle queries by title and scores the best hit by title similarity.
// A non-empty year narrows the query to works published that year.
func (c *Client) SearchTitle(ctx context.Context, title, year string) (*model.EnrichmentResult, error) {
	var payload struct {
		Message struct {
			Items []work `json:"items"`
		} `json:"message"`
	}
	path := "/works?rows=5&query.title=" + url.QueryEscape(title)
	if year != "" {
		path += "&filter=from-pub-date:" + year + "-01-01,until-pub-date:" + year + "-12-31"
	}
	found, err := c.get(ctx, path, &payload)
	if err != nil {
		return nil, err
	}
	if !found || len(payload.Message.Items) == 0 {
		return &model.EnrichmentResult{Registry: c.Name()}, nil
	}

	best := &payload.Message.Items[0]
	bestScore := 0.0
	for i := range payload.Message.Items {
		w := &payload.Message.Items[i]
		if score := reconcile.TitleSimilarity(title, firstOf(w.Title)); score > bestScore {
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
		model.FieldTitle:    firstOf(w.Title),
		model.FieldJournal:  firstOf(w.ContainerTitle),
		model.FieldDOI:      w.DOI,
		model.FieldKeywords: strings.Join(w.Subject, "; "),
	}
	if names := joinAuthors(w); names != "" {
		fields[model.FieldAuthor] = names
	}
	if y := issuedYear(w); y != 0 {
		fields[model.FieldYear] = strconv.Itoa(y)
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
			return false, eris.Wrap(err, "crossref: rate limit wait")
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
			return false, eris.Wrap(err, "crossref: build request")
		}
		req.Header.Set("User-Agent", userAgent(c.mailTo))

		resp, err := c.client.Do(req)
		if err != nil {
			return false, eris.Wrap(err, "crossref: request")
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
				eris.Errorf("crossref: status %d", resp.StatusCode), resp.StatusCode)
		default:
			io.Copy(io.Discard, resp.Body)
			return false, eris.Errorf("crossref: status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, eris.Wrap(err, "crossref: decode response")
		}
		zap.L().Debug("crossref response", zap.String("path", path))
		return true, nil
	})
}

func userAgent(mailTo string) string {
	if mailTo == "" {
		return "papermeta/1.0"
	}
	return fmt.Sprintf("papermeta/1.0 (mailto:%s)", mailTo)
}

func firstOf(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinAuthors(w *work) string {
	var parts []string
	for _, a := range w.Author {
		switch {
		case a.Family != "" && a.Given != "":
			parts = append(parts, a.Family+", "+a.Given)
		case a.Family != "":
			parts = append(parts, a.Family)
		}
	}
	return strings.Join(parts, "; ")
}

func issuedYear(w *work) int {
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		return w.Issued.DateParts[0][0]
	}
	return 0
}
