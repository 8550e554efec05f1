package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventtrack/internal/accounts"
	"eventtrack/internal/auditlog"
	"eventtrack/internal/auth"
	"eventtrack/internal/config"
	"eventtrack/internal/events"
	"eventtrack/internal/httpmiddleware"
	"eventtrack/internal/lifecycle"
	"eventtrack/internal/queue"
	"eventtrack/internal/reports"
	"eventtrack/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "eventtrack:audit")
	}

	engine := lifecycle.NewEngine(lifecycle.NewSQLStore(db.Client), cfg.CheckinWindow, q)

	acctRepo := accounts.NewRepository(db.Client)
	acctHandler := accounts.NewHandler(accounts.NewService(acctRepo), acctRepo, cfg)
	eventHandler := events.NewHandler(events.NewRepository(db.Client))
	reportHandler := reports.NewHandler(reports.NewRepository(db.Client))
	auditHandler := auditlog.NewHandler(auditlog.NewStore(db.Client))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{cfg.CORSOrigin}
	corsCfg.AllowCredentials = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.Use(securityHeaders())

	// Fall back to the in-process bucket when Redis is unreachable at boot.
	if redisClient.Healthy(context.Background()) {
		r.Use(httpmiddleware.NewRedisFixedWindow(redisClient.Client, "eventtrack:rl", cfg.RateLimitPerMin).GinMiddleware())
	} else {
		log.Println("warning: redis not reachable, using in-memory rate limiter")
		r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api/v1")
	acctHandler.RegisterPublicRoutes(api)

	admin := api.Group("/admin", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))
	acctHandler.RegisterAdminRoutes(admin)
	eventHandler.RegisterAdminRoutes(admin)
	reportHandler.RegisterAdminRoutes(admin)
	auditHandler.RegisterAdminRoutes(admin)

	volunteer := api.Group("/volunteer", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleVolunteer))
	acctHandler.RegisterVolunteerRoutes(volunteer)
	eventHandler.RegisterVolunteerRoutes(volunteer)
	reportHandler.RegisterVolunteerRoutes(volunteer)

	student := api.Group("/student", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))
	acctHandler.RegisterStudentRoutes(student)
	eventHandler.RegisterStudentRoutes(student)
	reportHandler.RegisterStudentRoutes(student)

	lifecycle.RegisterRoutes(volunteer, student, engine)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
