package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Status is the health endpoint response body.
type Status struct {
	Status      string    `json:"status"`
	ServiceName string    `json:"service_name"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	Channel     string    `json:"channel"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChannelStateFunc reports the event channel state for readiness.
type ChannelStateFunc func() string

// RegisterHealthEndpoints wires /health and /health/ready on the control API.
// Readiness degrades when the event channel is offline so an operator can
// spot the persistent-offline condition without reading logs.
func RegisterHealthEndpoints(e *echo.Echo, serviceName, version string, channelState ChannelStateFunc) {
	start := time.Now()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, Status{
			Status:      "ok",
			ServiceName: serviceName,
			Version:     version,
			Uptime:      time.Since(start).Round(time.Second).String(),
			Channel:     channelState(),
			Timestamp:   time.Now(),
		})
	})

	e.GET("/health/ready", func(c echo.Context) error {
		state := channelState()
		code := http.StatusOK
		status := "ready"
		if state != "connected" {
			code = http.StatusServiceUnavailable
			status = "offline"
		}
		return c.JSON(code, Status{
			Status:      status,
			ServiceName: serviceName,
			Version:     version,
			Uptime:      time.Since(start).Round(time.Second).String(),
			Channel:     state,
			Timestamp:   time.Now(),
		})
	})
}
