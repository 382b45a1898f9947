package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const workJSON = `{"message":{
	"title":["AI in Nursing Practice"],
	"container-title":["Journal of Advanced Nursing"],
	"DOI":"10.1111/jan.14855",
	"author":[{"family":"Smith","given":"Jane"},{"family":"Doe","given":"John"}],
	"issued":{"date-parts":[[2019,6]]},
	"subject":["Nursing"]
}}`

func fastRetry() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func TestLookupDOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/10.1111%2Fjan.14855", r.URL.EscapedPath())
		assert.Equal(t, "dev@example.org", r.URL.Query().Get("mailto"))
		w.Write([]byte(workJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev@example.org", 100, 10)
	res, err := c.LookupDOI(context.Background(), "10.1111/jan.14855")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, "crossref", res.Registry)
	assert.Equal(t, "AI in Nursing Practice", res.Fields[model.FieldTitle])
	assert.Equal(t, "Smith, Jane; Doe, John", res.Fields[model.FieldAuthor])
	assert.Equal(t, "2019", res.Fields[model.FieldYear])
	assert.Equal(t, "Journal of Advanced Nursing", res.Fields[model.FieldJournal])
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestLookupDOINotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.LookupDOI(context.Background(), "10.1/missing")
	require.NoError(t, err, "a 404 is a non-match, not a failure")
	assert.False(t, res.Matched)
}

func TestSearchTitlePicksBestHit(t *testing.T) {
	const items = `{"message":{"items":[
		{"title":["Something Else Entirely About Fish"],"DOI":"10.1/a"},
		{"title":["AI in Nursing Practice"],"DOI":"10.1/b","issued":{"date-parts":[[2019]]}}
	]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AI in Nursing Practice", r.URL.Query().Get("query.title"))
		assert.Equal(t, "from-pub-date:2019-01-01,until-pub-date:2019-12-31", r.URL.Query().Get("filter"))
		w.Write([]byte(items))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.SearchTitle(context.Background(), "AI in Nursing Practice", "2019")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, "10.1/b", res.Fields[model.FieldDOI])
	assert.InDelta(t, 1.0, res.Confidence, 1e-9, "identical titles score full similarity")
}

func TestSearchTitleWithoutYearOmitsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("filter"))
		w.Write([]byte(`{"message":{"items":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.SearchTitle(context.Background(), "AI in Nursing Practice", "")
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestGetRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(workJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10, WithRetryPolicy(fastRetry()))
	res, err := c.LookupDOI(context.Background(), "10.1111/jan.14855")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, int32(2), calls.Load())
}
