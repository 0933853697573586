package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/yandl/internal/downloaders/yande"
	"github.com/tanq16/yandl/internal/store"
)

type memoryStore struct {
	records []*store.Record
	fail    bool
}

func (m *memoryStore) Get(ctx context.Context, id int64) (*store.Record, error) {
	for _, rec := range m.records {
		if rec.Post.ID == id {
			return rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryStore) List(ctx context.Context, limit, offset int) ([]*store.Record, error) {
	if m.fail {
		return nil, errors.New("db down")
	}
	if offset >= len(m.records) {
		return nil, nil
	}
	return m.records[offset:min(offset+limit, len(m.records))], nil
}

func (m *memoryStore) Count(ctx context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: []*store.Record{
		{Post: yande.Post{ID: 3, Tags: "c"}, State: "completed", DownFlag: true},
		{Post: yande.Post{ID: 2, Tags: "b"}, State: "incomplete"},
		{Post: yande.Post{ID: 1, Tags: "a"}, State: "queued"},
	}}
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(newMemoryStore()), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListPosts(t *testing.T) {
	rec := do(t, NewRouter(newMemoryStore()), "/api/posts?limit=2&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Total)
	require.Len(t, body.Records, 2)
	assert.Equal(t, int64(2), body.Records[0].Post.ID)

	rec = do(t, NewRouter(newMemoryStore()), "/api/posts?offset=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)

	rec = do(t, NewRouter(newMemoryStore()), "/api/posts?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, NewRouter(&memoryStore{fail: true}), "/api/posts")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetPost(t *testing.T) {
	router := NewRouter(newMemoryStore())
	rec := do(t, router, "/api/posts/3")
	require.Equal(t, http.StatusOK, rec.Code)
	var body store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.DownFlag)
	assert.Equal(t, "completed", body.State)

	assert.Equal(t, http.StatusNotFound, do(t, router, "/api/posts/404").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, "/api/posts/abc").Code)
}
