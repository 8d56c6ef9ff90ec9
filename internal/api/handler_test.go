package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstonehq/workspace-search/internal/searcher/query"
	"github.com/gridstonehq/workspace-search/internal/store"
	"github.com/gridstonehq/workspace-search/pkg/errors"
)

const testWorkspaceID = "b2c41d30-0000-4000-8000-0000000000ff"

type fakeSearch struct {
	workspaceID string
	query       *query.Query
	response    *query.Response
	err         error
}

func (f *fakeSearch) Search(_ context.Context, workspaceID string, q *query.Query) (*query.Response, error) {
	f.workspaceID = workspaceID
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeSuggest struct {
	prefix      string
	suggestions []string
	err         error
}

func (f *fakeSuggest) Suggest(_ context.Context, _, prefix string) ([]string, error) {
	f.prefix = prefix
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

type fakeReindexer struct {
	job      *store.ReindexJob
	startErr error
	latest   *store.ReindexJob
}

func (f *fakeReindexer) Start(_ context.Context, workspaceID string) (*store.ReindexJob, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.job, nil
}

func (f *fakeReindexer) Status(context.Context, string) (*store.ReindexJob, error) {
	if f.latest == nil {
		return nil, errors.Newf(errors.ErrNotFound, 404, "no reindex job")
	}
	return f.latest, nil
}

type fakeStatusReader struct {
	status *store.IndexStatus
}

func (f *fakeStatusReader) GetIndexStatus(context.Context, string) (*store.IndexStatus, error) {
	if f.status == nil {
		return nil, errors.Newf(errors.ErrNotFound, 404, "no index status")
	}
	return f.status, nil
}

func newTestHandler(search *fakeSearch, suggest *fakeSuggest, reindex *fakeReindexer, status *fakeStatusReader) *Handler {
	if search == nil {
		search = &fakeSearch{}
	}
	if suggest == nil {
		suggest = &fakeSuggest{}
	}
	if reindex == nil {
		reindex = &fakeReindexer{}
	}
	if status == nil {
		status = &fakeStatusReader{}
	}
	return New(search, suggest, reindex, status, nil)
}

func doRequest(h http.HandlerFunc, method, target, workspaceID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if workspaceID != "" {
		req.Header.Set(WorkspaceHeader, workspaceID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSearchRequiresWorkspaceHeader(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(h.Search, http.MethodPost, "/api/v1/search", "", `{"q":"jane"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h.Search, http.MethodPost, "/api/v1/search", "not-a-uuid", `{"q":"jane"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)
	rec := doRequest(h.Search, http.MethodPost, "/api/v1/search", testWorkspaceID, `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchReturnsEngineResponse(t *testing.T) {
	search := &fakeSearch{response: &query.Response{
		Data: []query.Result{},
		Meta: query.Meta{Total: 0, Page: 1, PageSize: 20},
	}}
	h := newTestHandler(search, nil, nil, nil)

	rec := doRequest(h.Search, http.MethodPost, "/api/v1/search", testWorkspaceID, `{"q":"jane","page":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, testWorkspaceID, search.workspaceID)
	require.NotNil(t, search.query)
	assert.Equal(t, "jane", search.query.Q)
	assert.Equal(t, 2, search.query.Page)
}

func TestSearchErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Validationf("bad query"), http.StatusBadRequest},
		{errors.Newf(errors.ErrTimeout, 504, "deadline"), http.StatusGatewayTimeout},
		{errors.Newf(errors.ErrUnavailable, 503, "engine down"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		h := newTestHandler(&fakeSearch{err: tc.err}, nil, nil, nil)
		rec := doRequest(h.Search, http.MethodPost, "/api/v1/search", testWorkspaceID, `{"q":"jane"}`)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"])
	}
}

func TestSuggestReturnsSuggestions(t *testing.T) {
	suggest := &fakeSuggest{suggestions: []string{"Jane Cooper", "Jane Fonda"}}
	h := newTestHandler(nil, suggest, nil, nil)

	rec := doRequest(h.Suggest, http.MethodGet, "/api/v1/suggest?q=jan", testWorkspaceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jan", suggest.prefix)

	var body struct {
		Suggestions []string `json:"suggestions"`
		Count       int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"Jane Cooper", "Jane Fonda"}, body.Suggestions)
	assert.Equal(t, 2, body.Count)
}

func TestSuggestEmptyListIsNotNull(t *testing.T) {
	h := newTestHandler(nil, &fakeSuggest{}, nil, nil)
	rec := doRequest(h.Suggest, http.MethodGet, "/api/v1/suggest?q=zz", testWorkspaceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"suggestions":[]`)
}

func TestReindexAccepted(t *testing.T) {
	now := time.Now().UTC()
	reindexer := &fakeReindexer{job: &store.ReindexJob{
		ID:          "job-1",
		WorkspaceID: testWorkspaceID,
		Status:      store.JobRunning,
		StartedAt:   &now,
	}}
	h := newTestHandler(nil, nil, reindexer, nil)

	rec := doRequest(h.Reindex, http.MethodPost, "/api/v1/reindex", testWorkspaceID, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job store.ReindexJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, store.JobRunning, job.Status)
}

func TestReindexConflict(t *testing.T) {
	reindexer := &fakeReindexer{startErr: errors.Newf(errors.ErrConflict, 409, "reindex already in progress")}
	h := newTestHandler(nil, nil, reindexer, nil)

	rec := doRequest(h.Reindex, http.MethodPost, "/api/v1/reindex", testWorkspaceID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReindexStatusNotFound(t *testing.T) {
	h := newTestHandler(nil, nil, &fakeReindexer{}, nil)
	rec := doRequest(h.ReindexStatus, http.MethodGet, "/api/v1/reindex/status", testWorkspaceID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexStatus(t *testing.T) {
	status := &fakeStatusReader{status: &store.IndexStatus{
		WorkspaceID:   testWorkspaceID,
		DocumentCount: 12,
		IndexVersion:  "v1",
		Status:        store.IndexReady,
	}}
	h := newTestHandler(nil, nil, nil, status)

	rec := doRequest(h.IndexStatus, http.MethodGet, "/api/v1/index/status", testWorkspaceID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st store.IndexStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, int64(12), st.DocumentCount)
	assert.Equal(t, store.IndexReady, st.Status)
}
