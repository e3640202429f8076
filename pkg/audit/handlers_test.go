package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records []*Record
	filter  SearchFilter
}

func (f *fakeStore) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	f.filter = filter
	return f.records, nil
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return &Stats{Total: int64(len(f.records))}, nil
}

func (f *fakeStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	return Encode(f.records, format)
}

func (f *fakeStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return 0, nil
}

func newTestRouter(store Store) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(store).RegisterRoutes(router)
	return router
}

func TestHandlers_ListRecords(t *testing.T) {
	store := &fakeStore{records: sampleRecords()}
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/records?session=TGT-1&status=failure,success&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
		Limit int `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 5, body.Limit)

	assert.Equal(t, logout.SessionIDClaim("TGT-1"), store.filter.SessionHash)
	assert.Equal(t, []logout.Status{logout.StatusFailure, logout.StatusSuccess}, store.filter.Statuses)
}

func TestHandlers_GetRecord(t *testing.T) {
	router := newTestRouter(&fakeStore{records: sampleRecords()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/records/2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/records/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_Export(t *testing.T) {
	router := newTestRouter(&fakeStore{records: sampleRecords()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export?format=csv", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "https://b.example.com")
}

func TestHandlers_Stats(t *testing.T) {
	router := newTestRouter(&fakeStore{records: sampleRecords()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/stats?start_time=2026-01-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Total)
}

func TestHandlers_BadRequests(t *testing.T) {
	router := newTestRouter(&fakeStore{records: sampleRecords()})

	for _, target := range []string{
		"/audit/records?limit=ten",
		"/audit/records?start_time=yesterday",
		"/audit/export?format=xml",
		"/audit/stats?end_time=soon",
	} {
		t.Run(target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHandlers_LimitClamped(t *testing.T) {
	store := &fakeStore{}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/records?limit=50000&offset=20", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, store.filter.Limit)
	assert.Equal(t, 20, store.filter.Offset)
}
