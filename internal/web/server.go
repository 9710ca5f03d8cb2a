// Package web is the HTTP boundary: job submission and inspection plus
// direct processing endpoints for callers that bypass the queue.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/orchestrator"
	"github.com/pokerlens/pokeragent-worker/internal/storage"
)

// JobService is the orchestrator surface the handlers call.
type JobService interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*models.AnalysisJob, error)
	DispatchPhase2(ctx context.Context, jobID string, hands []models.HandTimestamp) (*models.AnalysisJob, error)
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
}

// SegmentRunner and HandRunner run one unit of work synchronously.
type SegmentRunner interface {
	Process(ctx context.Context, payload models.SegmentTaskPayload) error
}

type HandRunner interface {
	Process(ctx context.Context, payload models.HandTaskPayload) error
}

// LayoutResolver picks a broadcast layout from stream metadata when the
// caller does not name a platform.
type LayoutResolver interface {
	Detect(metadataText, channelName string) models.LayoutDecision
}

// Server wires the HTTP handlers.
type Server struct {
	jobs     JobService
	segments SegmentRunner
	hands    HandRunner
	layouts  LayoutResolver
	log      zerolog.Logger
}

func NewServer(jobs JobService, segments SegmentRunner, hands HandRunner, layouts LayoutResolver, log zerolog.Logger) *Server {
	return &Server{
		jobs:     jobs,
		segments: segments,
		hands:    hands,
		layouts:  layouts,
		log:      log.With().Str("component", "web").Logger(),
	}
}

// Routes builds the ServeMux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/phase2", s.handleDispatchPhase2)
	mux.HandleFunc("POST /api/segments/process", s.handleProcessSegment)
	mux.HandleFunc("POST /api/hands/process", s.handleProcessHand)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type submitJobRequest struct {
	JobID     string             `json:"jobId,omitempty"`
	StreamID  string             `json:"streamId"`
	SourceRef string             `json:"sourceRef"`
	Platform  string             `json:"platform,omitempty"`
	Metadata  string             `json:"metadata,omitempty"` // title/description/tags blob
	Channel   string             `json:"channelName,omitempty"`
	Segments  []models.TimeRange `json:"segments"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	platform := req.Platform
	if platform == "" && s.layouts != nil {
		decision := s.layouts.Detect(req.Metadata, req.Channel)
		platform = decision.Layout
		s.log.Info().Str("stream_id", req.StreamID).Str("layout", decision.Layout).
			Float64("confidence", decision.Confidence).Str("source", string(decision.Source)).
			Msg("layout detected from metadata")
	}

	job, err := s.jobs.Submit(r.Context(), orchestrator.SubmitRequest{
		JobID:     req.JobID,
		StreamID:  req.StreamID,
		SourceRef: req.SourceRef,
		Platform:  platform,
		Segments:  req.Segments,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "job": job})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job})
}

type dispatchPhase2Request struct {
	Hands []models.HandTimestamp `json:"hands"`
}

func (s *Server) handleDispatchPhase2(w http.ResponseWriter, r *http.Request) {
	var req dispatchPhase2Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	job, err := s.jobs.DispatchPhase2(r.Context(), r.PathValue("id"), req.Hands)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job})
}

func (s *Server) handleProcessSegment(w http.ResponseWriter, r *http.Request) {
	var payload models.SegmentTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if payload.JobID == "" || payload.SourceRef == "" {
		s.writeError(w, http.StatusBadRequest, "jobId and sourceRef are required")
		return
	}
	if !payload.Range.Valid() {
		s.writeError(w, http.StatusBadRequest, "range must be non-empty with start >= 0")
		return
	}

	if err := s.segments.Process(r.Context(), payload); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type processHandRequest struct {
	JobID         string               `json:"jobId"`
	StreamID      string               `json:"streamId"`
	SourceRef     string               `json:"sourceRef"`
	HandTimestamp models.HandTimestamp `json:"handTimestamp"`
	Platform      string               `json:"platform"`
}

func (s *Server) handleProcessHand(w http.ResponseWriter, r *http.Request) {
	var req processHandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.JobID == "" || req.SourceRef == "" {
		s.writeError(w, http.StatusBadRequest, "jobId and sourceRef are required")
		return
	}
	if req.HandTimestamp.Start == "" || req.HandTimestamp.End == "" {
		s.writeError(w, http.StatusBadRequest, "handTimestamp start and end are required")
		return
	}

	payload := models.HandTaskPayload{
		JobID:     req.JobID,
		StreamID:  req.StreamID,
		SourceRef: req.SourceRef,
		Hand:      req.HandTimestamp,
		Platform:  req.Platform,
	}
	if err := s.hands.Process(r.Context(), payload); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrJobNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
