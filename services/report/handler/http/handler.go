package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/utils"
	"github.com/jagawarga/jagawarga/services/report"
)

// ProximityReporter is the reporting surface exposed over the control API.
type ProximityReporter interface {
	Submit(ctx context.Context) (*models.ProximityResult, error)
	LastResult() *models.ProximityResult
}

// ReportHandler handles HTTP requests for proximity reports
type ReportHandler struct {
	reporter ProximityReporter
}

// NewReportHandler creates a new report handler
func NewReportHandler(reporter ProximityReporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

// RegisterRoutes registers the report endpoints
func (h *ReportHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/report", h.SubmitReport)
	e.GET("/report/last", h.LastReport)
}

// SubmitReport triggers one proximity report from the current location.
// A report already underway is rejected rather than queued.
func (h *ReportHandler) SubmitReport(c echo.Context) error {
	result, err := h.reporter.Submit(c.Request().Context())
	switch {
	case err == nil:
		return utils.SuccessResponse(c, http.StatusOK, "Report submitted", result)
	case errors.Is(err, report.ErrNoPeersInRange):
		return utils.SuccessResponse(c, http.StatusOK, "No volunteers within range", nil)
	case errors.Is(err, report.ErrReportInFlight):
		return utils.ConflictResponse(c, "A report is already being submitted")
	case errors.Is(err, report.ErrNoLocation):
		return utils.ConflictResponse(c, "No location fix available yet")
	default:
		logger.Error("Failed to submit report", logger.Err(err))
		return utils.BadGatewayResponse(c, "Failed to reach the case backend")
	}
}

// LastReport returns the most recent successful proximity result.
func (h *ReportHandler) LastReport(c echo.Context) error {
	result := h.reporter.LastResult()
	if result == nil {
		return utils.NotFoundResponse(c, "No report has been submitted yet")
	}
	return utils.SuccessResponse(c, http.StatusOK, "Last report", result)
}
