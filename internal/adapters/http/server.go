package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"orgwatch/internal/domain"
	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
	scanrunner "orgwatch/internal/workers/scanrunner"
)

const (
	defaultWaitTimeout = 120 * time.Second
	maxRequestBody     = 1 << 20
)

type Server struct {
	scanner    ports.Scanner
	gate       ports.Gate
	duplicates ports.DuplicateAuditor
	jobs       ports.JobRepository
	processor  scanrunner.ScanProcessor
	metrics    http.Handler
	log        logger.Logger
}

func New(scanner ports.Scanner, gate ports.Gate, duplicates ports.DuplicateAuditor, jobs ports.JobRepository,
	processor scanrunner.ScanProcessor, metrics http.Handler, log logger.Logger) *Server {
	return &Server{
		scanner:    scanner,
		gate:       gate,
		duplicates: duplicates,
		jobs:       jobs,
		processor:  processor,
		metrics:    metrics,
		log:        log,
	}
}

// Routes returns the service router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/scans", s.postScan)
	r.Get("/scans/{id}", s.getScan)
	r.Get("/organizations/{id}/gate", s.getGate)
	r.Post("/duplicates/audit", s.postDuplicateAudit)
	return r
}

type scanRequest struct {
	OrganizationID string `json:"organization_id"`
}

type scanAccepted struct {
	ScanID string `json:"scan_id"`
}

type scanResponse struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	Status         string             `json:"status"`
	Progress       float64            `json:"progress"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
	Result         *domain.ScanResult `json:"result,omitempty"`
}

type auditResponse struct {
	Applied bool                   `json:"applied"`
	Pairs   []domain.DuplicatePair `json:"pairs"`
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil || req.OrganizationID == "" {
		writeError(w, http.StatusBadRequest, "body must contain organization_id")
		return
	}
	id, err := s.scanner.Enqueue(r.Context(), req.OrganizationID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id})
		return
	}

	timeout := defaultWaitTimeout
	if v, err := strconv.Atoi(r.URL.Query().Get("timeout")); err == nil && v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	// Same processor as the background workers.
	if err := scanrunner.ProcessInline(ctx, s.jobs, s.processor, id); err != nil {
		s.fail(w, r, err)
		return
	}
	scan, err := s.scanner.Status(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(scan))
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.scanner.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(scan))
}

func (s *Server) getGate(w http.ResponseWriter, r *http.Request) {
	d, err := s.gate.Decide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) postDuplicateAudit(w http.ResponseWriter, r *http.Request) {
	apply, _ := strconv.ParseBool(r.URL.Query().Get("apply"))
	pairs, err := s.duplicates.Run(r.Context(), apply)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pairs == nil {
		pairs = []domain.DuplicatePair{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Applied: apply, Pairs: pairs})
}

func toScanResponse(s domain.Scan) scanResponse {
	return scanResponse{
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		Status:         s.Status,
		Progress:       s.Progress,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Result:         s.Result,
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "timed out")
		return
	}
	s.log.Error("request failed",
		logger.String("path", r.URL.Path),
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
