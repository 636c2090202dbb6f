package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/utils"
	"github.com/jagawarga/jagawarga/services/inbox"
)

// CaseInbox is the inbox surface exposed over the control API.
type CaseInbox interface {
	Cases() []models.Case
	FalseReport(ctx context.Context, sharedID string) error
}

// LocationSource supplies the agent's own position for distance display.
type LocationSource interface {
	LastFix() (models.Coordinate, bool)
}

// CaseView is the display form of one inbox entry.
type CaseView struct {
	SharedID       string  `json:"sharedId"`
	SharedUsername string  `json:"sharedUsername"`
	ReportedAt     string  `json:"reportedAt"`
	DirectionURL   string  `json:"directionUrl"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
	IsActive       bool    `json:"isActive"`
}

type falseReportRequest struct {
	Confirm bool `json:"confirm"`
}

// InboxHandler handles HTTP requests for the case inbox
type InboxHandler struct {
	inbox    CaseInbox
	location LocationSource
}

// NewInboxHandler creates a new inbox handler
func NewInboxHandler(caseInbox CaseInbox, location LocationSource) *InboxHandler {
	return &InboxHandler{inbox: caseInbox, location: location}
}

// RegisterRoutes registers the inbox endpoints
func (h *InboxHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/cases", h.ListCases)
	e.POST("/cases/:id/false-report", h.FalseReport)
}

// ListCases returns the current display window, newest first, dressed up
// for display: local clock time, a maps direction link and, when the agent
// has a fix of its own, the straight-line distance.
func (h *InboxHandler) ListCases(c echo.Context) error {
	cases := h.inbox.Cases()

	fix, hasFix := models.Coordinate{}, false
	if h.location != nil {
		fix, hasFix = h.location.LastFix()
	}

	views := make([]CaseView, 0, len(cases))
	for _, cs := range cases {
		view := CaseView{
			SharedID:       cs.SharedID,
			SharedUsername: cs.SharedUsername,
			ReportedAt:     utils.FormatClock(cs.LocationStartTime),
			DirectionURL:   utils.DirectionURL(cs.SharedLat, cs.SharedLong),
			IsActive:       cs.IsActive,
		}
		if hasFix {
			view.DistanceMeters = utils.CalculateDistance(fix, models.Coordinate{
				Latitude:  cs.SharedLat,
				Longitude: cs.SharedLong,
			})
		}
		views = append(views, view)
	}

	return utils.SuccessResponse(c, http.StatusOK, "Current cases", views)
}

// FalseReport flags a case as a false report. The body must carry an
// explicit confirmation; moderation is destructive for the reporter.
func (h *InboxHandler) FalseReport(c echo.Context) error {
	sharedID := c.Param("id")
	if sharedID == "" {
		return utils.BadRequestResponse(c, "Missing case id")
	}

	var req falseReportRequest
	if err := c.Bind(&req); err != nil {
		logger.Warn("Invalid false report payload",
			logger.Err(err),
			logger.String("shared_id", sharedID))
		return utils.BadRequestResponse(c, "Invalid request payload")
	}
	if !req.Confirm {
		return utils.BadRequestResponse(c, "False report must be confirmed")
	}

	err := h.inbox.FalseReport(c.Request().Context(), sharedID)
	switch {
	case err == nil:
		return utils.SuccessResponse(c, http.StatusOK, "Case flagged as false report", nil)
	case errors.Is(err, inbox.ErrModerationInFlight):
		return utils.ConflictResponse(c, "A false report is already being processed")
	case errors.Is(err, inbox.ErrNotLive):
		return utils.ConflictResponse(c, "Case inbox is not live")
	default:
		logger.Error("Failed to flag case",
			logger.Err(err),
			logger.String("shared_id", sharedID))
		return utils.BadGatewayResponse(c, "Failed to reach the case backend")
	}
}
