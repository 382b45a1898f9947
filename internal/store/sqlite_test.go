package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/scrkit/papermeta/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func sampleRecord(docHash, paperID string) *model.CanonicalRecord {
	return &model.CanonicalRecord{
		PaperID: paperID,
		DocHash: docHash,
		Path:    "/corpus/a.pdf",
		Fields: map[string]model.ResolvedField{
			model.FieldTitle: {Value: "AI in Nursing", Provenance: "grobid", Confidence: 0.9},
		},
	}
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "run-1", "/corpus")
	if err != nil {
		t.Fatal(err)
	}
	if run.FinishedAt != nil {
		t.Error("new run must not be finished")
	}

	if err := s.CompleteRun(ctx, "run-1", []byte(`{"documents":3}`)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt == nil || len(got.Report) == 0 {
		t.Errorf("completed run should carry finish time and report: %+v", got)
	}
}

func TestSQLiteCompleteUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.CompleteRun(context.Background(), "nope", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteSaveRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateRun(ctx, "run-1", "/corpus"); err != nil {
		t.Fatal(err)
	}

	rec := sampleRecord("hash-a", "paper_aaa")
	set := &model.CandidateSet{DocHash: "hash-a", Candidates: []model.CandidateField{
		{Field: model.FieldTitle, Value: "AI in Nursing", Source: "grobid", Confidence: 0.9},
	}}
	if err := s.SaveRecord(ctx, "run-1", rec, set); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRecord(ctx, "paper_aaa")
	if err != nil {
		t.Fatal(err)
	}
	if got.Get(model.FieldTitle) != "AI in Nursing" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestSQLiteSaveRecordUpsertsByHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateRun(ctx, "run-1", "/corpus"); err != nil {
		t.Fatal(err)
	}
	set := &model.CandidateSet{DocHash: "hash-a"}

	if err := s.SaveRecord(ctx, "run-1", sampleRecord("hash-a", "paper_aaa"), set); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRecord(ctx, "run-1", sampleRecord("hash-a", "paper_bbb"), set); err != nil {
		t.Fatal(err)
	}

	hashes, err := s.ProcessedHashes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes["hash-a"] != "paper_bbb" {
		t.Errorf("same content hash must upsert, got %v", hashes)
	}
}

func TestSQLiteGetRecordNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRecord(context.Background(), "paper_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
