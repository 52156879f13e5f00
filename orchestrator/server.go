// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/deploy/shared/logger"
)

// Server is the HTTP façade over the orchestrator. The pipeline itself
// is transport-agnostic; this layer only translates requests and
// responses.
type Server struct {
	orch *DeploymentOrchestrator
	log  *logger.Logger
}

// NewServer creates an HTTP server around an orchestrator.
func NewServer(orch *DeploymentOrchestrator) *Server {
	return &Server{
		orch: orch,
		log:  logger.New("http"),
	}
}

// RegisterRoutes attaches all API routes to a router.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/jobs", s.submitJobHandler).Methods("POST")
	r.HandleFunc("/api/v1/jobs/{id}", s.jobStatusHandler).Methods("GET")
	r.HandleFunc("/api/v1/jobs/{id}", s.cancelJobHandler).Methods("DELETE")
	r.HandleFunc("/api/v1/statistics", s.statisticsHandler).Methods("GET")
}

// Handler returns the fully wired handler: router plus CORS middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// ListenAndServe starts the server on the given port.
func (s *Server) ListenAndServe(port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info("", "", "deployment control plane listening", map[string]interface{}{
		"port": port,
	})
	return srv.ListenAndServe()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "deploy-orchestrator",
	})
}

func (s *Server) submitJobHandler(w http.ResponseWriter, r *http.Request) {
	var job JobDefinition
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.orch.SubmitJob(r.Context(), &job)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateJob):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrNilJob), errors.Is(err, ErrInvalidJobName),
			errors.Is(err, ErrUnknownCategory), errors.Is(err, ErrMissingPrimaryAgent):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.ErrorWithErr(job.JobID, "", "job submission failed", err, nil)
			writeError(w, http.StatusInternalServerError, "submission failed")
		}
		return
	}

	status := http.StatusAccepted
	if !result.CanProceed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	view := s.orch.GetJobStatus(jobID)
	if view == nil {
		writeError(w, http.StatusNotFound, "job not found: "+jobID)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	err := s.orch.CancelJob(r.Context(), jobID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(StatusCancelled),
		})
	case errors.Is(err, ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobNotCancelable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.ErrorWithErr(jobID, "", "cancel failed", err, nil)
		writeError(w, http.StatusInternalServerError, "cancel failed")
	}
}

func (s *Server) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetStatistics())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
