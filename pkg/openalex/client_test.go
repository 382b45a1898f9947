package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const workJSON = `{
	"display_name":"AI in Nursing Practice",
	"doi":"https://doi.org/10.1111/jan.14855",
	"publication_year":2019,
	"type":"review",
	"authorships":[
		{"author":{"display_name":"Jane Smith"},"countries":["AU"]},
		{"author":{"display_name":"John Doe"},"countries":[]}
	],
	"primary_location":{"source":{"display_name":"Journal of Advanced Nursing"}},
	"keywords":[{"display_name":"artificial intelligence"},{"display_name":"nursing"}]
}`

func TestLookupDOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/https:%2F%2Fdoi.org%2F10.1111%2Fjan.14855", r.URL.EscapedPath())
		w.Write([]byte(workJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev@example.org", 100, 10)
	res, err := c.LookupDOI(context.Background(), "10.1111/jan.14855")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, "openalex", res.Registry)
	assert.Equal(t, "AI in Nursing Practice", res.Fields[model.FieldTitle])
	assert.Equal(t, "10.1111/jan.14855", res.Fields[model.FieldDOI], "doi.org prefix stripped")
	assert.Equal(t, "2019", res.Fields[model.FieldYear])
	assert.Equal(t, "Jane Smith; John Doe", res.Fields[model.FieldAuthor])
	assert.Equal(t, "AU", res.Fields[model.FieldCountry])
	assert.Equal(t, "review", res.Fields[model.FieldStudy])
	assert.Equal(t, "artificial intelligence; nursing", res.Fields[model.FieldKeywords])
}

func TestSearchTitle(t *testing.T) {
	const results = `{"results":[
		{"display_name":"Totally Unrelated Work On Soil"},
		{"display_name":"AI in Nursing Practice","publication_year":2019}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("filter"), "title.search:")
		assert.Contains(t, r.URL.Query().Get("filter"), ",publication_year:2019")
		w.Write([]byte(results))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.SearchTitle(context.Background(), "AI in Nursing Practice", "2019")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Equal(t, "2019", res.Fields[model.FieldYear])
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestSearchTitleNoPlausibleHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"display_name":"Totally Unrelated Work On Soil"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.SearchTitle(context.Background(), "AI in Nursing Practice", "")
	require.NoError(t, err)
	assert.False(t, res.Matched, "zero-similarity hits are not matches")
}

func TestLookupDOINotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100, 10)
	res, err := c.LookupDOI(context.Background(), "10.1/missing")
	require.NoError(t, err)
	assert.False(t, res.Matched)
}
