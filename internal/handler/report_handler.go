package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/model"
)

// ReportServiceInterface は通報を受け付けるサービス。take.Serviceが満たす。
type ReportServiceInterface interface {
	CreateReport(ctx context.Context, reporterUserID *string, targetType model.ReportTarget, targetID, reason string) (*model.Report, error)
}

// ReportHandler は通報のHTTPハンドラー。
type ReportHandler struct {
	service ReportServiceInterface
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(service ReportServiceInterface) *ReportHandler {
	return &ReportHandler{service: service}
}

type reportRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason"`
}

// CreateReport はテイクまたはコメントへの通報を受け付ける。匿名でも通報できる。
// POST /reports
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var reporter *string
	if userID := middleware.OptionalUserID(r.Context()); userID != "" {
		reporter = &userID
	}

	if _, err := h.service.CreateReport(r.Context(), reporter, model.ReportTarget(req.TargetType), req.TargetID, req.Reason); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Report submitted successfully"})
}
