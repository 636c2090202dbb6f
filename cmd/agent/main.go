package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/jagawarga/jagawarga/internal/pkg/config"
	"github.com/jagawarga/jagawarga/internal/pkg/health"
	"github.com/jagawarga/jagawarga/internal/pkg/location"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/pkg/notify"
	"github.com/jagawarga/jagawarga/internal/pkg/ws"
	"github.com/jagawarga/jagawarga/services/inbox"
	inboxHTTP "github.com/jagawarga/jagawarga/services/inbox/handler/http"
	inboxUC "github.com/jagawarga/jagawarga/services/inbox/usecase"
	reportGW "github.com/jagawarga/jagawarga/services/report/gateway/http"
	reportHTTP "github.com/jagawarga/jagawarga/services/report/handler/http"
	reportUC "github.com/jagawarga/jagawarga/services/report/usecase"
)

func main() {
	appName := "jagawarga-agent"

	configs, err := config.Load(os.Getenv("AGENT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: configs.Logger.Level})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Close()
	logger.SetGlobalLogger(zapLogger)

	logger.Info("Starting agent",
		logger.String("app", appName),
		logger.String("version", configs.App.Version),
		logger.String("environment", configs.App.Environment),
		logger.String("user_id", configs.Session.UserID),
	)

	session := models.Session{
		UserID:   configs.Session.UserID,
		Username: configs.Session.Username,
		Token:    configs.Session.Token,
	}

	provider, err := location.NewFixed(models.Coordinate{
		Latitude:  configs.Location.Latitude,
		Longitude: configs.Location.Longitude,
	}, configs.Location.JitterMeters)
	if err != nil {
		logger.Fatal("Invalid location configuration", logger.Err(err))
	}

	backend := reportGW.NewClient(configs.Backend.BaseURL, configs.Backend.Timeout, session.Token)

	events := ws.NewClient(ws.Config{
		URL:               configs.Events.URL,
		Token:             session.Token,
		ReconnectAttempts: configs.Events.ReconnectAttempts,
		RequestTimeout:    configs.Events.RequestTimeout,
	})

	sink := notify.NewSinkFromConfig(configs.Notify)

	reporter := reportUC.NewReporter(session, provider, backend, events, configs.Location.WatchInterval)
	caseInbox := inboxUC.NewInbox(session, events, backend, sink, inbox.SystemTicker, configs.Inbox.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := caseInbox.Start(ctx); err != nil {
		logger.Fatal("Failed to start case inbox", logger.Err(err))
	}
	defer caseInbox.Stop()

	if err := reporter.Start(ctx); err != nil {
		logger.Error("Proximity reporting unavailable", logger.Err(err))
	}
	defer reporter.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	health.RegisterHealthEndpoints(e, appName, configs.App.Version, func() string {
		return events.State().String()
	})
	reportHTTP.NewReportHandler(reporter).RegisterRoutes(e)
	inboxHTTP.NewInboxHandler(caseInbox, reporter).RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf("%s:%d", configs.Server.Host, configs.Server.Port)
		logger.Info("Starting control API", logger.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start control API", logger.Err(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", logger.String("app", appName))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), configs.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Control API shutdown failed", logger.Err(err))
	}
}
