package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/scrkit/papermeta/internal/model"
)

const idPrefix = "paper_"

// TupleKey returns the normalized (title, first-author-surname, year) tuple
// used for both stable IDs and duplicate detection. Empty when the record
// lacks a usable title.
func TupleKey(rec *model.CanonicalRecord) string {
	title := CleanString(rec.Get(model.FieldTitle))
	if title == "" {
		return ""
	}
	surname := FirstAuthorSurname(rec.Get(model.FieldAuthor))
	year := NormalizeField(model.FieldYear, rec.Get(model.FieldYear))
	return strings.Join([]string{title, surname, year}, "|")
}

// AssignID derives the stable paper ID. It hashes the normalized field tuple
// rather than any extractor output or file path, so the ID survives extractor
// reordering and confidence drift. Records without enough fields to form a
// tuple get a fallback ID from the document content hash and are flagged
// unresolved.
func AssignID(rec *model.CanonicalRecord) {
	key := TupleKey(rec)
	if key == "" {
		rec.PaperID = fallbackID(rec.DocHash)
		rec.Unresolved = true
		return
	}
	sum := sha256.Sum256([]byte(key))
	rec.PaperID = idPrefix + hex.EncodeToString(sum[:])[:12]
}

func fallbackID(contentHash string) string {
	if len(contentHash) >= 12 {
		return idPrefix + contentHash[:12]
	}
	sum := sha256.Sum256([]byte(contentHash))
	return idPrefix + hex.EncodeToString(sum[:])[:12]
}
