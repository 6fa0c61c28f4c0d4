package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/civic-complaints/platform/internal/agency"
	"github.com/civic-complaints/platform/internal/ai"
	complaintapi "github.com/civic-complaints/platform/internal/complaint/api"
	complaintapp "github.com/civic-complaints/platform/internal/complaint/app"
	"github.com/civic-complaints/platform/internal/complaint/domain"
	complaintinfra "github.com/civic-complaints/platform/internal/complaint/infrastructure"
	"github.com/civic-complaints/platform/internal/notification"
	"github.com/civic-complaints/platform/internal/shared/auth"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/database"
	"github.com/civic-complaints/platform/internal/shared/events"
	"github.com/civic-complaints/platform/internal/shared/metrics"
	secmiddleware "github.com/civic-complaints/platform/internal/shared/middleware"
)

const maxBodyBytes = 1 << 20

// App holds all application dependencies
type App struct {
	Config     *config.Config
	DB         *database.DB
	Redis      *redis.Client
	Bus        events.EventBus
	Classifier *ai.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not available: %v\n", err)
		os.Exit(1)
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	go reportPoolStats(ctx, db)

	// Event bus: KurrentDB when configured, otherwise in-process
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(ctx, cfg.KurrentDB)
		if err != nil {
			fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		} else {
			app.Bus = bus
			fmt.Println("KurrentDB Event Bus initialized")
		}
	}
	if app.Bus == nil {
		app.Bus = events.NewMemoryBus()
		fmt.Println("Using in-process event bus")
	}
	defer app.Bus.Close()

	// Complaint repository, with the tracking cache in front when Redis is up
	var complaints domain.Repository = complaintinfra.NewPostgresRepository(db.Pool)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("Warning: Redis not available, tracking cache disabled: %v\n", err)
			rdb.Close()
		} else {
			app.Redis = rdb
			defer rdb.Close()
			complaints = complaintinfra.NewCachedRepository(complaints, rdb, cfg.Redis.CacheTTL)
		}
	}

	var classifier complaintapp.Classifier
	if cfg.AI.Enabled {
		app.Classifier = ai.NewClient(cfg.AI)
		classifier = app.Classifier
		fmt.Printf("Classifier enabled (service: %s)\n", cfg.AI.URL)
	}

	directory := agency.NewRepository(db.Pool)
	complaintService := complaintapp.NewService(complaints, directory, classifier, app.Bus, cfg.Complaints)

	// Citizen notifications
	var provider notification.EmailProvider = notification.NewConsoleProvider("DEV")
	if cfg.SMTP.Host != "" {
		provider = notification.NewSMTPProvider(cfg.SMTP)
	}
	notifyCfg := notification.DefaultServiceConfig()
	notifyCfg.TrackBaseURL = cfg.SMTP.TrackURL
	notifier := notification.NewService(provider, notifyCfg)
	if err := notifier.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "notification service failed to start: %v\n", err)
		os.Exit(1)
	}
	defer notifier.Stop()
	if err := notifier.Subscribe(ctx, app.Bus); err != nil {
		fmt.Printf("Warning: notification subscriber failed to start: %v\n", err)
	}

	// Anonymous endpoints are throttled per client IP
	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit.Enabled {
		limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		go limiter.Run(ctx, 5*time.Minute)
		limit = limiter.Middleware
	}
	authenticate := auth.Middleware(cfg.Auth)

	corsCfg := secmiddleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORS.AllowedOrigins

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(corsCfg))
	r.Use(secmiddleware.BodyLimit(maxBodyBytes))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		agencyHandler := agency.NewHandler(directory, authenticate)
		r.Mount("/", agencyHandler.Routes())

		complaintHandler := complaintapi.NewHandler(complaintService, authenticate, limit)
		complaintHandler.RegisterPublic(r)
		r.Mount("/complaints", complaintHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("Civic Complaints Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Classifier:     %v\n", cfg.AI.Enabled)
	fmt.Printf("Tracking cache: %v\n", app.Redis != nil)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

// reportPoolStats exports the number of acquired connections until ctx ends
func reportPoolStats(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBConnections(int(db.Pool.Stat().AcquiredConns()))
		}
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Civic Complaints Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{
			"server":   "ready",
			"database": checkStatus(app.DB.Health(ctx)),
			"events":   checkStatus(app.Bus.Health()),
		}

		checks["redis"] = "not configured"
		if app.Redis != nil {
			checks["redis"] = checkStatus(app.Redis.Ping(ctx).Err())
		}

		// The classifier only degrades automatic routing, so it is reported
		// without failing readiness.
		classifier := "not configured"
		if app.Classifier != nil {
			classifier = checkStatus(app.Classifier.Health(ctx))
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}
		checks["classifier"] = classifier

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func checkStatus(err error) string {
	if err != nil {
		return "not ready: " + err.Error()
	}
	return "ready"
}
