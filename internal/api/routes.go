package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/internal/websocket"
)

const startTimeout = 30 * time.Second

// VoiceService is the controller surface served over HTTP
type VoiceService interface {
	websocket.Controller
	SetInterview(interview entities.Interview) error
	Interview() entities.Interview
}

type handler struct {
	voice  VoiceService
	logger *zap.Logger
}

// InitRoutes initializes all API routes. metrics and guard may be nil.
func InitRoutes(e *echo.Echo, voice VoiceService, hub *websocket.Hub, metrics http.Handler, guard echo.MiddlewareFunc, logger *zap.Logger) {
	h := &handler{voice: voice, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "interview-coach",
		})
	})

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	var guards []echo.MiddlewareFunc
	if guard != nil {
		guards = append(guards, guard)
	}

	// API v1 routes
	v1 := e.Group("/api/v1", guards...)
	v1.GET("/interview", h.getInterview)
	v1.PUT("/interview/context", h.putContext)
	v1.POST("/interview/start", h.start)
	v1.POST("/interview/stop", h.stop)

	// Status feed and commands
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	}, guards...)
}

func (h *handler) state() InterviewResponse {
	interview := h.voice.Interview()
	return InterviewResponse{
		Snapshot: h.voice.Snapshot(),
		Ready:    interview.Ready(),
		ReportID: interview.ReportKey(),
	}
}

func (h *handler) getInterview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state())
}

func (h *handler) putContext(c echo.Context) error {
	var req InterviewContextRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind interview context", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	err := h.voice.SetInterview(entities.Interview{
		ResumeText:     req.ResumeText,
		JobDescription: req.JobDescription,
		ReportID:       req.ReportID,
	})
	switch {
	case errors.Is(err, entities.ErrContextTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "context_too_large",
			Message: err.Error(),
		})
	case errors.Is(err, entities.ErrControllerClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "closed"})
	case err != nil:
		h.logger.Error("Failed to set interview context", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}

	h.logger.Info("Interview context updated", zap.String("reportID", req.ReportID))
	return c.JSON(http.StatusOK, h.state())
}

func (h *handler) start(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startTimeout)
	defer cancel()

	err := h.voice.Start(ctx)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, h.state())
	case errors.Is(err, entities.ErrAlreadyActive):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_active",
			Message: "A conversation is already running",
		})
	case errors.Is(err, entities.ErrControllerClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "closed"})
	case errors.Is(err, entities.ErrPermissionDenied), errors.Is(err, entities.ErrDeviceNotFound):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "media_error",
			Message: entities.MediaErrorMessage(err),
		})
	default:
		h.logger.Error("Failed to start conversation", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "start_failed",
			Message: err.Error(),
		})
	}
}

func (h *handler) stop(c echo.Context) error {
	skip := false
	if raw := c.QueryParam("skip_report"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "skip_report must be a boolean",
			})
		}
		skip = v
	}

	h.voice.Stop(skip)
	return c.JSON(http.StatusOK, h.state())
}
