package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_PredictThenQuery(t *testing.T) {
	s := newTestServer(t, testConfig(), WithPipeline(newDigitPipeline(t, 6)), WithStore(openMemoryStore(t)))

	var ids []int64
	for i := range 3 {
		rec := serve(s, multipartRequest(t, "/predict", "file", fmt.Sprintf("d%d.png", i), drawingPNG(t)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeBody[PredictResponse](t, rec)
		require.NotZero(t, resp.ID)
		ids = append(ids, resp.ID)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/predictions?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[PredictionListResponse](t, rec)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Limit)
	require.Len(t, list.Predictions, 2)
	assert.Equal(t, ids[2], list.Predictions[0].ID)
	assert.Equal(t, "d2.png", list.Predictions[0].Filename)
	assert.Equal(t, 6, list.Predictions[0].Digit)
	assert.Len(t, list.Predictions[0].AllPredictions, 10)

	rec = serve(s, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/predictions/%d", ids[0]), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filename":"d0.png"`)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[StatsResponse](t, rec)
	assert.Equal(t, 3, stats.TotalPredictions)
	assert.Equal(t, 3, stats.DigitHistogram["6"])
	assert.Equal(t, 0, stats.DigitHistogram["0"])
	assert.EqualValues(t, 3, stats.Pipeline["images"])
}

func TestHistory_BadRequests(t *testing.T) {
	s := newTestServer(t, testConfig(), WithStore(openMemoryStore(t)))

	tests := []struct {
		url    string
		status int
	}{
		{"/predictions?limit=0", http.StatusBadRequest},
		{"/predictions?limit=abc", http.StatusBadRequest},
		{"/predictions?offset=-1", http.StatusBadRequest},
		{"/predictions/abc", http.StatusBadRequest},
		{"/predictions/0", http.StatusBadRequest},
		{"/predictions/999", http.StatusNotFound},
		{"/predictions?limit=10000", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/predictions?limit=10000", nil))
	list := decodeBody[PredictionListResponse](t, rec)
	assert.Equal(t, maxListLimit, list.Limit)
	assert.NotNil(t, list.Predictions)
}

func TestHistory_DisabledWithoutStore(t *testing.T) {
	s := newTestServer(t, testConfig(), WithPipeline(newDigitPipeline(t, 1)))

	for _, url := range []string{"/predictions", "/predictions/1"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, url)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[StatsResponse](t, rec)
	assert.Zero(t, stats.TotalPredictions)
	assert.Nil(t, stats.DigitHistogram)
	assert.NotNil(t, stats.Pipeline)
	assert.Empty(t, stats.Notifier)
}

func TestCleanup_PrunesExpiredHistory(t *testing.T) {
	st := openMemoryStore(t)
	cfg := testConfig()
	cfg.HistoryRetention = 24 * time.Hour
	s := newTestServer(t, cfg, WithStore(st))

	ctx := context.Background()
	repo := st.Predictions()
	require.NoError(t, repo.Insert(ctx, &storage.Prediction{Digit: 1, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}))
	require.NoError(t, repo.Insert(ctx, &storage.Prediction{Digit: 2}))

	s.cleanup(ctx)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
