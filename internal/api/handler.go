package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/semmidev/backupkeeper/internal/domain"
	"github.com/semmidev/backupkeeper/internal/usecase"
)

const maxRequestBodySize = 1 << 16

// RequesterHeader names the caller of a manual backup. The host's auth
// layer is expected to set it.
const RequesterHeader = "X-Requester-ID"

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Scheduler is the part of usecase.Scheduler the admin API drives.
type Scheduler interface {
	GetStatus(ctx context.Context) (domain.Status, error)
	UpdateSchedule(ctx context.Context, frequencyHours int, enabled bool) error
	ListBackups(ctx context.Context) ([]domain.BackupRecord, error)
	RunFullNow(ctx context.Context, requesterID string) (domain.BackupRecord, error)
	EnforceRetention(ctx context.Context) (usecase.RetentionReport, error)
	State() domain.SchedulerState
}

// ScheduleRequest is the body of POST /api/system/backups/schedule.
type ScheduleRequest struct {
	FrequencyHours *int  `json:"frequencyHours"`
	Enabled        *bool `json:"enabled"`
}

type CleanupResponse struct {
	Deleted []domain.BackupRecord `json:"deleted"`
	Failed  []string              `json:"failed"`
}

type HealthResponse struct {
	Status string                `json:"status"`
	State  domain.SchedulerState `json:"state"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// Handler serves the backup administration routes. It carries no
// authentication and is expected to sit behind the host's auth layer.
type Handler struct {
	scheduler Scheduler
	logger    Logger
	router    *http.ServeMux
}

// NewHandler registers every route. metrics may be nil, in which case
// /metrics is not served.
func NewHandler(scheduler Scheduler, metrics http.Handler, logger Logger) *Handler {
	h := &Handler{
		scheduler: scheduler,
		logger:    logger,
		router:    http.NewServeMux(),
	}

	h.router.HandleFunc("GET /api/system/backups", h.handleList)
	h.router.HandleFunc("GET /api/system/backups/status", h.handleStatus)
	h.router.HandleFunc("POST /api/system/backups/schedule", h.handleSchedule)
	h.router.HandleFunc("POST /api/system/backups/run", h.handleRun)
	h.router.HandleFunc("POST /api/system/backups/cleanup", h.handleCleanup)
	h.router.HandleFunc("GET /healthz", h.handleHealth)
	if metrics != nil {
		h.router.Handle("GET /metrics", metrics)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, "Failed to get backup status")
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.FrequencyHours == nil || req.Enabled == nil {
		h.writeError(w, http.StatusBadRequest, "frequencyHours and enabled are required")
		return
	}

	err := h.scheduler.UpdateSchedule(r.Context(), *req.FrequencyHours, *req.Enabled)
	switch {
	case errors.Is(err, domain.ErrInvalidFrequency):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrSchedulerClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Errorf("Error updating backup schedule: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to update backup schedule")
		return
	}

	h.writeStatus(w, r, "Failed to update backup schedule")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.scheduler.ListBackups(r.Context())
	if err != nil {
		h.logger.Errorf("Error fetching backups: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch backup list")
		return
	}
	if records == nil {
		records = []domain.BackupRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.scheduler.RunFullNow(r.Context(), r.Header.Get(RequesterHeader))
	switch {
	case errors.Is(err, domain.ErrReservedRequester):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Errorf("Error running backup: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create backup")
		return
	}
	h.logger.Infof("Manual backup %s created by %s", rec.ID, rec.RequestedBy)
	h.writeStatus(w, r, "Failed to get backup status")
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.EnforceRetention(r.Context())
	if err != nil {
		h.logger.Errorf("Error enforcing retention: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to clean up backups")
		return
	}

	resp := CleanupResponse{
		Deleted: report.Deleted,
		Failed:  make([]string, 0, len(report.Failed)),
	}
	if resp.Deleted == nil {
		resp.Deleted = []domain.BackupRecord{}
	}
	for _, ferr := range report.Failed {
		resp.Failed = append(resp.Failed, ferr.Error())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", State: h.scheduler.State()})
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, failure string) {
	status, err := h.scheduler.GetStatus(r.Context())
	if err != nil {
		h.logger.Errorf("Error getting backup status: %v", err)
		h.writeError(w, http.StatusInternalServerError, failure)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnf("Failed to write response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Message: message})
}
