package main

import (
	"agreement-service/internal/handler"
	"agreement-service/internal/middleware"
	"agreement-service/internal/persona"
	"agreement-service/internal/signing"
	"agreement-service/pkg/config"
	"agreement-service/pkg/database"
	"agreement-service/pkg/logger"
	"agreement-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting agreement service...", zap.String("environment", cfg.Server.Env))

	// Initialize database (includes migrations)
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize auth middleware with the shared identity signing key
	middleware.InitAuth(cfg)

	// Wire the signing session manager: identity-service persona resolution
	// plus the agreement store
	personaClient := persona.NewClient(cfg.Identity.BaseURL, cfg.Identity.Timeout, log)
	signingManager := signing.NewManager(database.GetDB(), personaClient, signing.Config{
		TokenTTL: cfg.Signing.TokenTTL,
		BaseURL:  cfg.Signing.BaseURL,
	}, log)
	handler.InitSigning(signingManager)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/", handler.Hello)
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", prometheus.HandlerFunc())

	// Signing session routes - the opaque token is the credential
	e.GET("/sign/:token", handler.GetSigningSession)
	e.POST("/sign/:token/complete", handler.CompleteSigning)

	// Portal routes - require a valid identity-service JWT
	agreements := e.Group("/agreements")
	agreements.Use(middleware.JWTAuthMiddleware)
	agreements.POST("", handler.CreateAgreement)
	agreements.GET("", handler.ListAgreements)
	agreements.GET("/:id", handler.GetAgreement)
	agreements.POST("/:id/approve", handler.ApproveAgreement)
	agreements.POST("/:id/reject", handler.RejectAgreement)
	agreements.POST("/:id/cancel", handler.CancelAgreement)
	agreements.POST("/:id/sign", handler.InitiateSigning)

	parties := e.Group("/parties")
	parties.Use(middleware.JWTAuthMiddleware)
	parties.POST("/arrangers", handler.CreateArranger)
	parties.GET("/arrangers", handler.ListArrangers)
	parties.POST("/introducers", handler.CreateIntroducer)
	parties.GET("/introducers", handler.ListIntroducers)
	parties.POST("/commercial-partners", handler.CreateCommercialPartner)
	parties.GET("/commercial-partners", handler.ListCommercialPartners)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
