package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IDEA-FinAI/RagLLaVA/internal/observability"
	"github.com/IDEA-FinAI/RagLLaVA/internal/pipeline"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.ExampleDone("ok", 2, false)

	progress := NewProgress(10)
	s := NewStatusServer(StatusServerConfig{Addr: ":0", Progress: progress, Gatherer: reg})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	progress.Start()
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	stats := pipeline.NewRunStatistics()
	stats.Processed = 3
	stats.Failed = 1
	progress.Update(stats.Summary())

	rec := get(t, h, "/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		State   string         `json:"state"`
		Total   int            `json:"total"`
		Done    int            `json:"done"`
		Summary map[string]any `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 4, snap.Done)
	assert.Nil(t, snap.Summary["precision"])

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rageval_examples_total{outcome="ok"} 1`)
}

func TestProgress_Finish(t *testing.T) {
	p := NewProgress(1)
	p.Start()
	p.Finish(nil)
	assert.Equal(t, StateFinished, p.Snapshot().State)

	p = NewProgress(1)
	p.Finish(errors.New("interrupted"))
	snap := p.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "interrupted", snap.Error)
	assert.Empty(t, snap.Elapsed)
}
