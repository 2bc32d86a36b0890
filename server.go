package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/handlers"
	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/metrics"
	"github.com/foodtrust/foodtrust_backend/middlewares"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
	"github.com/foodtrust/foodtrust_backend/utils"
	"github.com/foodtrust/foodtrust_backend/workflow"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// swappable serves the startup handler until the application router is ready.
type swappable struct {
	current atomic.Value
}

func (s *swappable) set(h http.Handler) {
	s.current.Store(&h)
}

func (s *swappable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.current.Load().(*http.Handler)).ServeHTTP(w, r)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// correlationId reuses the caller's x-correlation-id or generates one.
func correlationId() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

// startupRouter answers health probes while dependencies connect.
func startupRouter() *gin.Engine {
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service starting"})
	})
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening immediately; app endpoints return 503 until ready.
	root := &swappable{}
	root.set(startupRouter())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	st, db := connectStore(logger)
	if db != nil {
		sqlDB, _ := db.DB()
		defer func() {
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		}()
	}
	redisReady := config.ConnectRedisWithRetry(sigCtx)

	ledgerCfg, err := config.LoadLedgerConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "ledger"}).Fatal("invalid ledger config: " + err.Error())
	}
	gateway, err := ledger.NewGateway(ledgerCfg, ledger.NewHorizonClient(ledgerCfg), ledger.NewFunder(ledgerCfg), ledger.WithLogger(logger))
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "ledger"}).Fatal(err.Error())
	}
	if gateway.IssuerAddress() == "" {
		logger.WithFields(logrus.Fields{"field": "ledger"}).Warn("STELLAR_ISSUER_SECRET not set; approvals will fail until configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := workflow.NewEngine(st, gateway, newLocker(logger, redisReady, db),
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics.New(registry)),
	)
	if err := engine.EnsureAdmin(sigCtx, os.Getenv("ADMIN_NAME"), os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		config.LogError(logger, "server.go", "main", "EnsureAdmin", nil, err)
	}

	var redisClient *redis.Client
	if redisReady {
		redisClient = config.GetRedisDB()
	}
	sessions := middlewares.NewSessions(redisClient)

	r := gin.New()
	r.Use(correlationId())
	r.Use(cors.New(corsConfig()))
	if redisClient != nil && strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		r.Use(NewRateLimiter(redisClient, limit, time.Duration(windowSec)*time.Second).RateLimitMiddleware)
	}
	r.Use(middlewares.AuthMiddleware())
	r.Use(sessions.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	handlers.New(engine, sessions, registry, logger, gin.H{
		"network":  ledgerCfg.Network,
		"horizon":  ledgerCfg.Horizon(),
		"issuer":   gateway.IssuerAddress(),
		"store":    config.StoreBackend(),
		"redis":    redisReady,
		"database": config.DatabaseDriver(),
	}).Register(r)
	r.NoRoute(customNotFoundHandler)

	root.set(r)
	logger.WithFields(logrus.Fields{
		"info":    "Connection Established",
		"network": ledgerCfg.Network,
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// connectStore opens the configured persistence backend and runs migrations
// unless SKIP_MIGRATIONS=true.
func connectStore(logger *logrus.Logger) (store.Store, *gorm.DB) {
	if config.StoreBackend() == "memory" {
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_BACKEND=memory; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	return store.NewGormStore(db), db
}

// newLocker prefers Redis, then MySQL advisory locks, then in-process locks.
func newLocker(logger *logrus.Logger, redisReady bool, db *gorm.DB) workflow.Locker {
	wait := config.LockWait()
	switch {
	case redisReady:
		return workflow.NewRedisLocker(config.GetRedisLock(), config.LockTTL(), wait)
	case db != nil && config.DatabaseDriver() == "mysql":
		logger.WithFields(logrus.Fields{"field": "locks"}).Info("redis unavailable; using database advisory locks")
		return workflow.NewAdvisoryLocker(db, wait)
	default:
		logger.WithFields(logrus.Fields{"field": "locks"}).Warn("using in-process locks; run a single replica")
		return workflow.NewLocalLocker(wait)
	}
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "RateLimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis trouble should not take the API down.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
