// Package ingest discovers input PDFs and reads them into documents.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
)

// Source yields the documents of one corpus.
type Source interface {
	// List returns the paths of every document in the corpus, sorted.
	List(ctx context.Context) ([]string, error)
	// Read loads one document, hashing its content and extracting page text.
	Read(ctx context.Context, path string) (*model.Document, error)
}

// DirSource reads every PDF under a directory tree.
type DirSource struct {
	root string
	// maxPages bounds text extraction per document; 0 reads everything.
	maxPages int
}

func NewDirSource(root string, maxPages int) *DirSource {
	return &DirSource{root: root, maxPages: maxPages}
}

// List walks the tree and returns all .pdf paths in sorted order, so a corpus
// is always processed in the same sequence.
func (s *DirSource) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: walk %s", s.root)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read hashes the file and extracts per-page text. A PDF whose text layer
// cannot be parsed still yields a document; downstream extractors that need
// page text simply find none.
func (s *DirSource) Read(ctx context.Context, path string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{Path: path, ContentHash: hash}

	pages, pageCount, err := readPages(path, s.maxPages)
	if err != nil {
		zap.L().Warn("pdf text layer unreadable",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	doc.Pages = pages
	doc.PageCount = pageCount

	return doc, nil
}

// hashFile returns the hex sha256 of the file's bytes. The hash identifies
// the document across runs regardless of where the file lives.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "ingest: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readPages(path string, maxPages int) ([]string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: parse %s", path)
	}
	defer f.Close()

	total := r.NumPage()
	limit := total
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	var pages []string
	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, total, nil
}
