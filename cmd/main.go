package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/interview-coach/adapters/backend"
	"github.com/satriahrh/interview-coach/adapters/llm"
	"github.com/satriahrh/interview-coach/adapters/sound"
	"github.com/satriahrh/interview-coach/adapters/vad"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/api"
	"github.com/satriahrh/interview-coach/internal/auth"
	"github.com/satriahrh/interview-coach/internal/config"
	"github.com/satriahrh/interview-coach/internal/telemetry"
	"github.com/satriahrh/interview-coach/internal/websocket"
	"github.com/satriahrh/interview-coach/usecase"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger := newLogger(cfg.Telemetry.LogLevel)
	defer logger.Sync()

	tel, err := telemetry.Setup(context.Background(), "interview-coach", cfg.Telemetry.MetricsEnabled, logger)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Initialize adapters
	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		TokenTimeout:  config.Millis(cfg.Backend.TokenTimeoutMS),
		ReportTimeout: config.Millis(cfg.Backend.ReportTimeoutMS),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create backend client", zap.Error(err))
	}

	var dialer repositories.LiveDialer
	switch cfg.Live.Mode {
	case "mock":
		dialer = llm.NewMockGeminiLive(llm.MockLiveConfig{
			ReplyAfter:  cfg.Live.MockReplyAfter,
			EndAfter:    config.Millis(cfg.Live.MockEndAfterMS),
			EndFunction: cfg.Live.EndFunction,
		}, logger)
		logger.Info("Using mock live endpoint")
	default:
		dialer = llm.NewGeminiLive(llm.GeminiLiveConfig{
			Model:      cfg.Live.Model,
			APIVersion: cfg.Live.APIVersion,
		}, logger)
	}

	audioBackend, err := sound.NewMalgoBackend(cfg.Audio.MicSampleRate, logger)
	if err != nil {
		logger.Fatal("Failed to initialize audio backend", zap.Error(err))
	}
	defer audioBackend.Close()

	detectors, err := vad.NewFactory(vad.Config{
		Threshold: cfg.VAD.Threshold,
		Debounce:  config.Millis(cfg.VAD.DebounceMS),
		Hangover:  config.Millis(cfg.VAD.HangoverMS),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create voice activity detector", zap.Error(err))
	}

	// Initialize usecase services
	controller, err := usecase.NewVoiceController(usecase.ControllerConfig{
		Model:            cfg.Live.Model,
		EndFunction:      cfg.Live.EndFunction,
		PCMSampleRate:    cfg.Audio.PCMSampleRate,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		BufferSize:       cfg.Audio.BufferSize,
		QueueMaxLength:   cfg.Audio.QueueMaxLength,
		QueueTTL:         config.Millis(cfg.Audio.QueueTTLMS),
		ShutdownDelay:    config.Millis(cfg.Session.ShutdownDelayMS),
		PlayerStopDelay:  config.Millis(cfg.Session.PlayerStopDelayMS),
		PlaybackLead:     config.Millis(cfg.Audio.PlaybackLeadMS),
	}, usecase.Dependencies{
		Credentials:   backendClient,
		Reports:       backendClient,
		Dialer:        dialer,
		Microphone:    audioBackend,
		Detectors:     detectors,
		AudioContexts: audioBackend,
		Meter:         tel.Meter(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create voice controller", zap.Error(err))
	}
	defer controller.Dispose()

	interview, err := cfg.InterviewContext()
	if err != nil {
		logger.Fatal("Failed to load interview context", zap.Error(err))
	}
	if err := controller.SetInterview(interview); err != nil {
		logger.Fatal("Failed to set interview context", zap.Error(err))
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(controller, logger)
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var guard echo.MiddlewareFunc
	if cfg.HTTP.AuthSecret != "" {
		issuer, err := auth.NewIssuer(cfg.HTTP.AuthSecret, auth.DefaultTTL)
		if err != nil {
			logger.Fatal("Failed to create token issuer", zap.Error(err))
		}
		guard = issuer.Middleware(logger)
		logger.Info("Bearer token auth enabled for control API")
	}

	// Initialize API routes
	api.InitRoutes(e, controller, hub, tel.Handler(), guard, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Interview coach started",
		zap.String("addr", cfg.Addr()),
		zap.String("liveMode", cfg.Live.Mode),
		zap.Bool("interviewReady", interview.Ready()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopHub()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(ctx); err != nil {
		logger.Warn("Failed to flush telemetry", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger
}
