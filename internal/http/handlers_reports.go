// Package httpx exposes the report pipeline over HTTP.
package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/target/mmk-reports/internal/domain/model"
)

// ReportService is the set of operations the API calls.
type ReportService interface {
	Submit(ctx context.Context, req model.SubmitReportRequest) (*model.Report, error)
	GetStatus(ctx context.Context, id string) (*model.ReportStatusResult, error)
	List(ctx context.Context, page, limit int) (*model.ReportPage, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.ReportStats, error)
}

// ReportHandlers provides HTTP handlers for report operations.
type ReportHandlers struct {
	Svc ReportService
}

type submitReportResponse struct {
	ReportID  string             `json:"reportId"`
	Status    model.ReportStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	Message   string             `json:"message"`
}

// Submit handles POST /api/reports. The report is accepted even when it could not be queued yet.
func (h *ReportHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitReportRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	report, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, submitReportResponse{
		ReportID:  report.ID,
		Status:    report.Status,
		CreatedAt: report.CreatedAt,
		Message:   "report accepted for processing",
	})
}

type reportStatusResponse struct {
	*model.Report
	FromCache bool `json:"fromCache"`
}

// GetStatus handles GET /api/reports/{id}.
func (h *ReportHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, reportStatusResponse{Report: res.Report, FromCache: res.FromCache})
}

// List handles GET /api/reports?page=&limit=.
func (h *ReportHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.Svc.List(r.Context(), parseIntQuery(r, "page", 1), parseIntQuery(r, "limit", 0))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// Delete handles DELETE /api/reports/{id}.
func (h *ReportHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/reports/stats/summary.
func (h *ReportHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
