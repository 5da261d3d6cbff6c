package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lendbook/lendbook-backend/docs"
	"github.com/lendbook/lendbook-backend/internal/config"
	"github.com/lendbook/lendbook-backend/internal/handler"
	"github.com/lendbook/lendbook-backend/internal/middleware"
	"github.com/lendbook/lendbook-backend/internal/repository/cache"
	"github.com/lendbook/lendbook-backend/internal/repository/postgres"
	"github.com/lendbook/lendbook-backend/internal/service"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// @title LendBook API
// @version 1.0
// @description Loan schedules, repayments, overdue accrual and balances for microfinance lenders.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Auth0 access token, prefixed with "Bearer "
func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	transactor := postgres.NewTransactor(pool)
	loanRepo := postgres.NewLoanRepository(pool)
	installmentRepo := postgres.NewInstallmentRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	var userStore cache.Store
	redisStore, err := cache.NewRedisStore(context.Background(), cfg.RedisAddr)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, user cache disabled")
	} else if redisStore != nil {
		defer redisStore.Close()
		userStore = redisStore
		log.Info().Str("addr", cfg.RedisAddr).Msg("User cache enabled")
	}
	userRepo := cache.NewUserRepository(postgres.NewUserRepository(pool), userStore, cache.DefaultUserTTL, log.Logger)

	// Initialize WebSocket hub
	hub := websocket.NewHub()

	var mailer service.Mailer
	if smtp := service.NewSMTPMailer(service.SMTPConfig(cfg.SMTP)); smtp != nil {
		mailer = smtp
		log.Info().Str("host", cfg.SMTP.Host).Msg("Mail notifications enabled")
	}

	// Initialize services
	auditService := service.NewAuditService(auditRepo, log.Logger)
	authService := service.NewAuthService(userRepo, auditService)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, mailer, log.Logger)
	notificationService.SetEventPublisher(hub)
	loanService := service.NewLoanService(transactor, loanRepo, installmentRepo, paymentRepo, userRepo, auditService, cfg.CurrencyScale, log.Logger)
	loanService.SetEventPublisher(hub)
	paymentService := service.NewPaymentService(transactor, loanRepo, installmentRepo, paymentRepo, auditService, notificationService, cfg.CurrencyScale, log.Logger)
	paymentService.SetEventPublisher(hub)
	balanceService := service.NewBalanceService(loanRepo, installmentRepo, paymentRepo)
	accrualService := service.NewAccrualService(transactor, loanRepo, installmentRepo, cfg.OverduePeriodPolicy, log.Logger)
	overdueNotifier := service.NewOverdueNotifier(loanRepo, installmentRepo, userRepo, notificationRepo, notificationService, cfg.CurrencyScale, log.Logger)
	overdueNotifier.SetEventPublisher(hub)

	// Accrual worker
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	accrualWorker := service.NewAccrualWorker(accrualService, overdueNotifier, auditService, log.Logger, service.AccrualWorkerConfig{
		Schedule: cfg.AccrualSchedule,
	})
	accrualWorker.SetEventPublisher(hub)
	if cfg.AccrualEnabled {
		if err := accrualWorker.Start(workerCtx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start accrual worker")
		}
	}

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	paymentLimiter := middleware.NewRateLimiterWithConfig(cfg.PaymentRateLimit, middleware.DefaultBurstSize)

	wsAuth, err := websocket.NewAuthenticator(cfg.Auth0Domain, cfg.Auth0Audience, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WebSocket authenticator")
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Loan:         handler.NewLoanHandler(loanService, balanceService, cfg.CurrencyScale),
		Payment:      handler.NewPaymentHandler(paymentService, loanService, cfg.CurrencyScale),
		Balance:      handler.NewBalanceHandler(balanceService, cfg.CurrencyScale),
		Notification: handler.NewNotificationHandler(notificationService),
		Admin:        handler.NewAdminHandler(accrualWorker, overdueNotifier, auditService),
	}
	wsHandler := handler.NewWebSocketHandler(hub, wsAuth, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":         "ok",
			"accrualRunning": accrualWorker.IsRunning(),
			"wsClients":      hub.TotalClientCount(),
			"wsStaffClients": hub.StaffCount(),
		})
	})

	// API docs
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", handler.OpenAPI3Handler(handler.DefaultServers(cfg.PublicURL)))

	// WebSocket endpoint authenticates via query token
	e.GET("/ws", wsHandler.HandleWS)

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, paymentLimiter, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()
	if cfg.AccrualEnabled {
		accrualWorker.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := log.Info()
			if res.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
