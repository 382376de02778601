// Package metrics provides Prometheus metrics for the ask endpoint
package metrics

import (
	"net/http"
	"time"

	"pdf-rag/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds the collectors on their own registry so several servers
// (and tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	QuestionsTotal  *prometheus.CounterVec
	AskDuration     prometheus.Histogram
	RetrievedChunks prometheus.Histogram
	IndexedChunks   prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdf_rag_questions_total",
				Help: "Total number of questions by outcome",
			},
			[]string{"outcome"},
		),
		AskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdf_rag_ask_duration_seconds",
				Help:    "Time to answer a question, retrieval and generation included",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RetrievedChunks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdf_rag_retrieved_chunks",
				Help:    "Number of chunks placed in the prompt context",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		),
		IndexedChunks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdf_rag_indexed_chunks",
				Help: "Number of chunks in the vector index",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveAsk records one answered (or failed) question.
func (m *Metrics) ObserveAsk(ans *models.Answer, err error, took time.Duration) {
	m.AskDuration.Observe(took.Seconds())
	switch {
	case err != nil:
		m.QuestionsTotal.WithLabelValues(OutcomeError).Inc()
		return
	case ans.Fallback:
		m.QuestionsTotal.WithLabelValues(OutcomeFallback).Inc()
	default:
		m.QuestionsTotal.WithLabelValues(OutcomeAnswered).Inc()
	}
	m.RetrievedChunks.Observe(float64(len(ans.Sources)))
}
