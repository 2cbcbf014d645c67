package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/quemvence/market-engine/internal/ledger"
	"github.com/quemvence/market-engine/internal/metrics"
	"github.com/quemvence/market-engine/internal/model"
	"github.com/quemvence/market-engine/internal/payment"
	"github.com/quemvence/market-engine/internal/sim"
	"github.com/quemvence/market-engine/internal/store"
	"github.com/quemvence/market-engine/internal/trade"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
		seedDemoCandidates(st)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Core services ---
	historyCap := envInt("HISTORY_CAP", trade.DefaultHistoryCap)
	lg := ledger.New(st)
	tradeSvc := trade.NewService(st, lg, wsHub, historyCap)
	gateway := payment.NewGateway(tradeSvc, envDuration("PAYMENT_EXPIRY", payment.DefaultExpiry))

	// --- Market simulation ---
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()
	if os.Getenv("SIM_ENABLED") != "false" {
		interval := envDuration("SIM_INTERVAL", sim.DefaultInterval)
		driver := sim.New(tradeSvc, st, interval, rand.New(rand.NewSource(time.Now().UnixNano())))
		go driver.Run(simCtx)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", wsHub.HandleWS)

		tradeSvc.Routes(r)
		gateway.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSim()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}

// seedDemoCandidates loads a pair of demo markets so a fresh in-memory
// instance has something to trade and simulate against.
func seedDemoCandidates(st store.Store) {
	now := time.Now().UTC()
	demo := []model.Candidate{
		{
			ID:              "c1-001",
			Name:            "Roberto Silva",
			Role:            "Governador",
			Status:          model.StatusActive,
			SupplyVenceSold: 2500,
			SupplyPerdeSold: 2250,
			CreatedAt:       now,
		},
		{
			ID:              "c1-002",
			Name:            "Maria Souza",
			Role:            "Governador",
			Status:          model.StatusActive,
			SupplyVenceSold: 150,
			SupplyPerdeSold: 135,
			CreatedAt:       now,
		},
	}
	for i := range demo {
		if err := st.CreateCandidate(context.Background(), &demo[i]); err != nil {
			slog.Error("demo seed failed", "candidate", demo[i].ID, "err", err)
			continue
		}
		metrics.ActiveCandidates.Inc()
	}
	slog.Info("demo candidates seeded", "count", len(demo))
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer env value, using default", "key", key, "value", v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration env value, using default", "key", key, "value", v)
	}
	return fallback
}
