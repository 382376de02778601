package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pdf-rag/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAsk(t *testing.T) {
	m := NewMetrics()

	m.ObserveAsk(&models.Answer{Sources: make([]models.Match, 3)}, nil, time.Second)
	m.ObserveAsk(&models.Answer{Fallback: true}, nil, time.Millisecond)
	m.ObserveAsk(nil, errors.New("timeout"), 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues(OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues(OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuestionsTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 3, testutil.CollectAndCount(m.QuestionsTotal))
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.IndexedChunks.Set(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pdf_rag_indexed_chunks 42")
}

func TestRegistriesAreIndependent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
