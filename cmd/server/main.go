package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chessmata/internal/auth"
	"chessmata/internal/config"
	"chessmata/internal/engine"
	"chessmata/internal/gateway"
	"chessmata/internal/handlers"
	"chessmata/internal/matchmaking"
	"chessmata/internal/middleware"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"
	"chessmata/internal/timer"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting chessmata server", "environment", cfg.Environment)

	s, err := store.New(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	}()
	logger.Info("connected to mongodb", "database", cfg.MongoDB.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis ping failed, presence cache and rate limiting degrade to fail-open", "error", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret)
	passwordService := auth.NewPasswordService()
	googleOAuth := auth.NewGoogleOAuthService(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.GoogleRedirectURL)
	rateLimiter := middleware.NewRateLimiter(rdb)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, s)

	// Session Router: in-process binding plus the cross-process fan-out Bus.
	hub := gateway.NewHub(logger)
	router := sessionrouter.New(hub, logger)
	bus := sessionrouter.NewBus(router, s.Database(), logger)
	if err := bus.EnsureIndexes(context.Background()); err != nil {
		logger.Warn("failed to create router event indexes", "error", err)
	}
	bus.Start()
	defer bus.Stop()

	// Timer Service: durable sweep, dispatched through the "normal" pool
	// once the priority pools exist below.
	timerService := timer.New(s.Database(), logger)
	if err := timer.EnsureIndexes(context.Background(), s.Database()); err != nil {
		logger.Warn("failed to create timer indexes", "error", err)
	}
	if cfg.Timer.PollInterval > 0 {
		timerService.SetPollInterval(time.Duration(cfg.Timer.PollInterval) * time.Millisecond)
	}

	gameEngine := engine.New(s, timerService, bus, logger)
	gameEngine.RegisterTimerHandlers()

	pools := gateway.NewPools(
		cfg.Gateway.HighWorkers, cfg.Gateway.NormalWorkers, cfg.Gateway.LowWorkers, cfg.Gateway.SearchWorkers,
		cfg.Gateway.QueueSize, logger,
	)
	defer pools.Stop()
	timerService.SetDispatch(pools.Normal)

	timerCtx, stopTimers := context.WithCancel(context.Background())
	defer stopTimers()
	go timerService.Run(timerCtx)

	matchmaker := matchmaking.New(s, bus, gameEngine, rdb)

	gw := gateway.New(hub, router, s, gameEngine, matchmaker, jwtService, pools, rateLimiter, logger)
	authHandler := handlers.NewAuthHandler(s, jwtService, passwordService, googleOAuth, logger)

	r := mux.NewRouter()

	r.HandleFunc("/ws", rateLimiter.RateLimitHandler(
		middleware.WebSocketUpgradeLimit,
		func(req *http.Request) string { return "ws:" + middleware.GetClientIP(req) },
		gw.HandleWS,
	))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", rateLimiter.RateLimitHandler(
		middleware.AccountCreationLimit,
		func(req *http.Request) string { return "register:" + middleware.GetClientIP(req) },
		authHandler.Register,
	)).Methods("POST")
	api.HandleFunc("/auth/login", rateLimiter.RateLimitHandler(
		middleware.LoginAttemptLimit,
		func(req *http.Request) string { return "login:" + middleware.GetClientIP(req) },
		authHandler.Login,
	)).Methods("POST")
	api.HandleFunc("/auth/refresh", rateLimiter.RateLimitHandler(
		middleware.TokenRefreshLimit,
		func(req *http.Request) string { return "refresh:" + middleware.GetClientIP(req) },
		authHandler.Refresh,
	)).Methods("POST")
	api.HandleFunc("/auth/google", authHandler.GoogleOAuth).Methods("GET")
	api.HandleFunc("/auth/google/callback", authHandler.GoogleOAuthCallback).Methods("GET")

	authApi := api.PathPrefix("/auth").Subrouter()
	authApi.Use(authMiddleware.RequireAuth)
	authApi.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	authApi.HandleFunc("/me", authHandler.Me).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.URL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      middleware.SecurityHeaders()(corsHandler.Handler(r)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	logger.Info("server stopped")
}
