package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

// Server relays telemetry calls from the desk UI or backend jobs to a
// Gate. Guarded operations always answer 202, whether or not the gate
// let them through, so callers cannot tell disabled telemetry apart from
// enabled telemetry.
type Server struct {
	e       *echo.Echo
	gate    *telemetry.Gate
	metrics *metrics
}

func New(gate *telemetry.Gate) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())

	s := &Server{
		e:       e,
		gate:    gate,
		metrics: newMetrics(gate),
	}

	group := e.Group("/api")

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus metrics
	group.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	// Gate state
	group.GET("/telemetry/status", s.status)
	// Capture an event
	group.POST("/telemetry/capture", s.capture)
	// Session recording
	group.POST("/telemetry/session/start", s.startSession)
	group.POST("/telemetry/session/stop", s.stopSession)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down relay server", "error", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		slog.Error("Failed to start server", "error", err)
		return err
	}

	return nil
}

func (s *Server) status(c echo.Context) error {
	resp := StatusResponse{
		State: s.gate.Snapshot(),
		App:   s.gate.App(),
	}
	if st, ok := s.gate.Settings(); ok {
		resp.SettingsReceived = true
		resp.SiteAge = &st.SiteAge
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) capture(c echo.Context) error {
	var req CaptureRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.recordEvent(resultRejected)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	req.Event = strings.TrimSpace(req.Event)
	if req.Event == "" {
		s.metrics.recordEvent(resultRejected)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "event is required"})
	}

	var opts []telemetry.CaptureOptions
	if req.Data != nil {
		opts = append(opts, telemetry.CaptureOptions{Data: req.Data})
	}
	s.gate.Capture(c.Request().Context(), req.Event, opts...)
	if s.gate.Snapshot().Enabled {
		s.metrics.recordEvent(resultForwarded)
	} else {
		s.metrics.recordEvent(resultDisabled)
	}

	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) startSession(c echo.Context) error {
	s.gate.RecordSession()
	s.metrics.recordSession("start", s.gate.Snapshot().Enabled)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) stopSession(c echo.Context) error {
	s.gate.StopSession()
	s.metrics.recordSession("stop", s.gate.Snapshot().Enabled)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}
