package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/krishisangam/backend/internal/auth"
	"github.com/krishisangam/backend/internal/config"
	"github.com/krishisangam/backend/internal/jobs"
	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/notifications"
	"github.com/krishisangam/backend/internal/payments"
	"github.com/krishisangam/backend/internal/payout"
	"github.com/krishisangam/backend/internal/provider"
	"github.com/krishisangam/backend/internal/router"
	"github.com/krishisangam/backend/internal/services"
	"github.com/krishisangam/backend/internal/users"
	"github.com/krishisangam/backend/internal/workrequests"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Payment gateway
	var gateway provider.Client
	if cfg.Mock() {
		gateway = provider.NewMock()
		slog.Warn("Payment gateway running in mock mode; no real money moves")
	} else {
		gateway = provider.NewRazorpay(cfg.ProviderKeyID, cfg.ProviderKeySecret)
	}

	// Repositories
	authRepo := auth.NewRepository(pool)
	usersRepo := users.NewRepository(pool)
	jobsRepo := jobs.NewRepository(pool)
	wrRepo := workrequests.NewRepository(pool)
	paymentsRepo := payments.NewRepository(pool)
	notifRepo := notifications.NewRepository(pool)

	notifSvc := notifications.NewService(notifRepo, logger)

	// Payments: the enqueue func is set after the River client is created
	// (breaks the init cycle between service and worker).
	var enqueueMu sync.Mutex
	var enqueueFn payments.EnqueueTransferFunc
	enqueueTransfer := func(ctx context.Context, paymentID uuid.UUID) error {
		enqueueMu.Lock()
		fn := enqueueFn
		enqueueMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, paymentID)
	}

	paymentsSvc := payments.NewService(paymentsRepo, jobsRepo, usersRepo, gateway,
		notifSvc, enqueueTransfer, cfg, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, payout.NewTransferWorker(paymentsSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueMu.Lock()
	enqueueFn = func(ctx context.Context, paymentID uuid.UUID) error {
		_, err := riverClient.Insert(ctx, payout.TransferArgs{PaymentID: paymentID}, &river.InsertOpts{
			ScheduledAt: time.Now().Add(payout.TransferDelay),
		})
		return err
	}
	enqueueMu.Unlock()

	// Services and handlers
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	jobsSvc := jobs.NewService(jobsRepo, notifSvc)
	wrSvc := workrequests.NewService(wrRepo, usersRepo, notifSvc)

	validator, err := services.NewValidator(cfg.SchemaDir)
	if err != nil {
		slog.Error("Schema validator init failed", "dir", cfg.SchemaDir, "error", err)
		os.Exit(1)
	}

	apiRouter := router.New(router.Deps{
		Auth:          auth.NewHandler(authSvc, logger),
		Users:         users.NewHandler(usersRepo, logger),
		Jobs:          jobs.NewHandler(jobsSvc, validator, logger),
		WorkRequests:  workrequests.NewHandler(wrSvc, validator, logger),
		Payments:      payments.NewHandler(paymentsSvc, cfg.WebhookSecret, logger),
		Notifications: notifications.NewHandler(notifSvc, logger),
		Protect:       middleware.Protect(authSvc, usersRepo),
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://krishisangam.dev"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Razorpay-Signature"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (runs deferred payouts)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr, "payment_mode", cfg.PaymentMode)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
