// Package server exposes the telephony webhook surface:
//
//	POST /            — call-start event; remembers who is calling
//	POST /c/recording — recording-ready event; kicks off the pipeline
//
// plus the operational routes (/healthz, /readyz, /metrics). Webhook
// deliveries are acknowledged immediately; all real work happens after
// the acknowledgement so the telephony provider never times out waiting
// on transcription.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trntxt/trntxt/internal/health"
	"github.com/trntxt/trntxt/internal/observe"
	"github.com/trntxt/trntxt/internal/pipeline"
	"github.com/trntxt/trntxt/internal/session"
)

// Runner starts the recording pipeline for one event.
type Runner interface {
	Run(ctx context.Context, ev pipeline.RecordingEvent) (status string, err error)
}

// Server holds the webhook handlers and their dependencies.
type Server struct {
	sessions *session.Cache
	runner   Runner
	health   *health.Handler
	metrics  *observe.Metrics

	// wg tracks in-flight pipeline runs so Drain can wait for them
	// during shutdown.
	wg sync.WaitGroup
}

// New creates a Server. health may be nil, in which case no health routes
// are registered; metrics may be nil to use the package default.
func New(sessions *session.Cache, runner Runner, h *health.Handler, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{sessions: sessions, runner: runner, health: h, metrics: m}
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleCallStart)
	mux.HandleFunc("POST /c/recording", s.handleRecording)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return observe.Middleware(s.metrics)(mux)
}

// Drain blocks until all in-flight pipeline runs have finished.
func (s *Server) Drain() {
	s.wg.Wait()
}

// callStartEvent is the call-start webhook body.
type callStartEvent struct {
	From             string `json:"from"`
	ConversationUUID string `json:"conversation_uuid"`
}

// handleCallStart caches the caller's number keyed by conversation so the
// notifier can find it once the recording has been processed. Events
// missing either field are acknowledged and ignored; the provider sends
// several event shapes to the same URL.
func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	var ev callStartEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.From != "" && ev.ConversationUUID != "" {
		s.sessions.Put(ev.ConversationUUID, ev.From)
		observe.Logger(r.Context()).InfoContext(r.Context(), "call started",
			"conversation_uuid", ev.ConversationUUID)
	}
	w.WriteHeader(http.StatusOK)
}

// recordingEvent is the recording-ready webhook body.
type recordingEvent struct {
	RecordingURL     string `json:"recording_url"`
	RecordingUUID    string `json:"recording_uuid"`
	ConversationUUID string `json:"conversation_uuid"`
}

// handleRecording acknowledges the webhook and then runs the pipeline on a
// context detached from the request, so the provider's delivery timeout
// never cancels a transcription in progress.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	var ev recordingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.RecordingURL == "" || ev.RecordingUUID == "" || ev.ConversationUUID == "" {
		http.Error(w, "recording_url, recording_uuid and conversation_uuid are required", http.StatusBadRequest)
		return
	}

	run := pipeline.RecordingEvent{
		RecordingURL:     ev.RecordingURL,
		RecordingUUID:    ev.RecordingUUID,
		ConversationUUID: ev.ConversationUUID,
	}
	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		status, err := s.runner.Run(ctx, run)
		log := observe.Logger(ctx).With("conversation_uuid", run.ConversationUUID)
		if err != nil {
			log.ErrorContext(ctx, "pipeline finished with error", "status", status, "error", err)
			return
		}
		log.InfoContext(ctx, "pipeline finished", "status", status)
	}()

	w.WriteHeader(http.StatusOK)
}
