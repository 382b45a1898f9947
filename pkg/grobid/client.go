// Package grobid is a client for a GROBID header-extraction service.
package grobid

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/resilience"
)

const (
	headerPath  = "/api/processHeaderDocument"
	isAlivePath = "/api/isalive"
)

// Client calls a GROBID service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	retry   resilience.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) { g.client = c }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(g *Client) { g.retry = p }
}

// NewClient creates a client for the GROBID service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retry:   resilience.DefaultPolicy(),
	}
	c.retry.OnRetry = resilience.RetryLogger("grobid", "process_header")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAlive reports whether the service answers its health endpoint.
func (c *Client) IsAlive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+isAlivePath, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ProcessHeader uploads the PDF and returns the TEI XML header document.
// Transient service errors are retried with backoff; a 204 means GROBID could
// not find a header and is reported as an error so the caller can degrade.
func (c *Client) ProcessHeader(ctx context.Context, pdfPath string) ([]byte, error) {
	body, contentType, err := headerForm(pdfPath)
	if err != nil {
		return nil, err
	}

	return resilience.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+headerPath, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "grobid: build request")
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/xml")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "grobid: process header")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNoContent:
			return nil, eris.Errorf("grobid: no header found in %s", filepath.Base(pdfPath))
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			io.Copy(io.Discard, resp.Body)
			return nil, resilience.NewTransientError(
				eris.Errorf("grobid: status %d", resp.StatusCode), resp.StatusCode)
		default:
			io.Copy(io.Discard, resp.Body)
			return nil, eris.Errorf("grobid: status %d", resp.StatusCode)
		}

		tei, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "grobid: read response")
		}
		zap.L().Debug("grobid header processed",
			zap.String("pdf", filepath.Base(pdfPath)),
			zap.Int("tei_bytes", len(tei)),
		)
		return tei, nil
	})
}

// headerForm builds the multipart body GROBID expects. The form is built once
// per call so each retry attempt can replay it.
func headerForm(pdfPath string) ([]byte, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", eris.Wrapf(err, "grobid: open %s", pdfPath)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("input", filepath.Base(pdfPath))
	if err != nil {
		return nil, "", eris.Wrap(err, "grobid: create form file")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", eris.Wrap(err, "grobid: copy pdf")
	}
	if err := w.WriteField("consolidateHeader", "1"); err != nil {
		return nil, "", eris.Wrap(err, "grobid: write field")
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "grobid: close form")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
