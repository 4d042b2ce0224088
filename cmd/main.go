package main

import (
	"context"
	"net/http"

	"shell-service/internal/batch"
	"shell-service/internal/canvas"
	"shell-service/internal/handler"
	mid "shell-service/internal/middleware"
	"shell-service/internal/store"
	"shell-service/pkg/config"
	"shell-service/pkg/database"
	"shell-service/pkg/jwtutil"
	"shell-service/pkg/logger"
	"shell-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration (reads .env if present)
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.InitLogger(appConfig)
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting shell-service",
		zap.String("environment", appConfig.Server.Env),
		zap.String("port", appConfig.Server.Port))

	// Initialize JWT utility
	jwtutil.Initialize(&appConfig.JWT)
	log.Info("JWT utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database and store
	db, err := database.Connect(appConfig)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	st := store.NewGormStore(db)
	log.Info("Database connection established")

	// Canvas OAuth manager and API client. A configured static token wins;
	// otherwise the client rides the service-wide OAuth connection.
	oauthManager := canvas.NewOAuthManager(&appConfig.Canvas, st, log)
	var tokens canvas.TokenSource
	if appConfig.Canvas.APIToken != "" {
		tokens = canvas.NewStaticTokenSource(appConfig.Canvas.APIToken)
		log.Info("Using static Canvas API token")
	} else {
		tokens = oauthManager.ServiceTokenSource()
		log.Info("Using Canvas OAuth tokens from the store")
	}
	canvasClient := canvas.NewClient(&appConfig.Canvas, tokens, log)
	discoverer := canvas.NewDiscoverer(canvasClient, &appConfig.Discovery, log)

	// Batch runner: workers drain the queue until shutdown
	runner := batch.NewRunner(st, canvasClient, appConfig.Worker, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	if err := runner.Recover(); err != nil {
		log.Error("Failed to recover interrupted batches", zap.Error(err))
	}

	// Handlers
	healthHandler := handler.NewHealthHandler(db)
	authHandler := handler.NewAuthHandler(st, appConfig.Auth, oauthManager)
	accountHandler := handler.NewAccountHandler(st, discoverer)
	shellHandler := handler.NewShellHandler(st, runner)

	// Initialize Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", healthHandler.Check)

	// Authentication endpoints
	e.POST("/api/auth/login", authHandler.Login)
	e.POST("/api/auth/okta-callback", authHandler.OktaCallback)

	// Canvas redirects here; the state parameter authenticates the flow
	e.GET("/api/canvas/oauth/callback", authHandler.CanvasCallback)

	// Authenticated API routes
	api := e.Group("/api", mid.Auth(st))
	api.GET("/auth/me", authHandler.Me)
	api.GET("/accounts", accountHandler.List)
	api.POST("/course-shells", shellHandler.Create)
	api.GET("/batches/:batchId", shellHandler.Status)
	api.GET("/batches/:batchId/status", shellHandler.Status)
	api.GET("/recent-activity", shellHandler.RecentActivity)
	api.GET("/canvas/oauth/authorize", authHandler.CanvasAuthorize)
	api.GET("/canvas/oauth/status", authHandler.CanvasStatus)
	api.DELETE("/canvas/oauth", authHandler.CanvasRevoke)

	// Start server
	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		log.Fatal("Server error", zap.Error(err))
	}
}
