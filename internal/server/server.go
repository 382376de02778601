package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Asker answers a single question.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.Answer, error)
}

type AskRequest struct {
	Question string `json:"question"`
}

type Source struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float32 `json:"score"`
	Text   string  `json:"text"`
}

type AskResponse struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Fallback bool     `json:"fallback"`
	Sources  []Source `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const sourcePreviewChars = 300

type Server struct {
	asker   Asker
	metrics *metrics.Metrics
}

// New serves asker. m may be nil, in which case /metrics is not exposed.
func New(asker Asker, m *metrics.Metrics) *Server {
	return &Server{asker: asker, metrics: m}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestID)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ask", s.askHandler).Methods(http.MethodPost)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

// NewHTTPServer wraps the router with timeouts long enough for a model call.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	start := time.Now()
	ans, err := s.asker.Ask(r.Context(), req.Question)
	if s.metrics != nil {
		s.metrics.ObserveAsk(ans, err, time.Since(start))
	}
	if err != nil {
		log.Error().Err(err).
			Str("request_id", w.Header().Get("X-Request-ID")).
			Str("question", req.Question).
			Msg("Failed to answer question")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	resp := AskResponse{
		Question: ans.Question,
		Answer:   ans.Text,
		Fallback: ans.Fallback,
		Sources:  make([]Source, 0, len(ans.Sources)),
	}
	for _, m := range ans.Sources {
		resp.Sources = append(resp.Sources, Source{
			Source: m.Chunk.Source,
			Page:   m.Chunk.Page,
			Score:  m.Score,
			Text:   helper.Preview(m.Chunk.Content, sourcePreviewChars),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestID tags every response with an X-Request-ID, reusing the caller's.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			var err error
			if id, err = helper.GenerateUUID(); err != nil {
				log.Warn().Err(err).Msg("Failed to generate request id")
			}
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Handled request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
