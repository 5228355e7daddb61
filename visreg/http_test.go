package visreg

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewServer(t *testing.T) *httptest.Server {
	t.Helper()
	f := newFixture(t)
	f.run(t)
	srv := httptest.NewServer(NewArchive(f.ledger, f.cfg, quiet).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHTTP_Runs(t *testing.T) {
	srv := reviewServer(t)

	resp, body := get(t, srv, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode, "redirect followed to /runs")

	var runs []RunRecord
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run1", runs[0].ID)
	assert.Equal(t, 1, runs[0].Counts.Changed)
}

func TestHTTP_Report(t *testing.T) {
	srv := reviewServer(t)

	resp, body := get(t, srv, "/runs/run1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "/runs/run1/diff/c.png")
	assert.Contains(t, string(body), "/shots/feed0002/d.png")
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
}

func TestHTTP_Changes(t *testing.T) {
	srv := reviewServer(t)

	resp, body := get(t, srv, "/runs/run1/changes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	assert.Len(t, entries, 4)

	_, body = get(t, srv, "/runs/run1/changes?status=changed")
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].ID)

	resp, _ = get(t, srv, "/runs/run1/changes?status=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Branches(t *testing.T) {
	srv := reviewServer(t)

	resp, body := get(t, srv, "/runs/run1/branches")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var brs []BranchRecord
	require.NoError(t, json.Unmarshal(body, &brs))
	require.Len(t, brs, 2)
	assert.Equal(t, "main", brs[0].Branch)
}

func TestHTTP_Images(t *testing.T) {
	srv := reviewServer(t)

	resp, _ := get(t, srv, "/runs/run1/diff/c.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, _ = get(t, srv, "/shots/c0ffee01/a.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv, "/runs/run1/diff/b.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unchanged components have no diff image")
}

func TestHTTP_Errors(t *testing.T) {
	srv := reviewServer(t)

	tests := []struct {
		path string
		code int
	}{
		{"/runs/nope", http.StatusNotFound},
		{"/runs/nope/changes", http.StatusNotFound},
		{"/runs/run1/diff/c.txt", http.StatusBadRequest},
		{"/shots/c0ffee01/%2E%2E.png", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, _ := get(t, srv, tt.path)
		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
	}
}

func TestArchive_NoLedger(t *testing.T) {
	a := NewArchive(nil, DefaultConfig(), quiet)
	_, err := a.Runs(t.Context(), 0)
	assert.ErrorIs(t, err, ErrNoLedger)
}
