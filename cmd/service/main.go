package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/temmie0232/music-controller/internal/session"
	"github.com/temmie0232/music-controller/internal/spotify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfigFromEnv()
	if err != nil {
		zlog.Fatal().Err(err).Msg("session-service: config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("session-service: pg connect")
	}
	defer pool.Close()

	if err := session.AutoMigrate(ctx, pool); err != nil {
		zlog.Fatal().Err(err).Msg("session-service: migrate")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("session-service: invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	sessionSrv := session.NewServer(pool, rdb)
	sessionSrv.StartSweeper(ctx, cfg.SweepInterval)

	playerSrv := spotify.NewServer(spotify.NewClient(cfg.SpotifyAPIURL))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(corsMiddleware)
	r.Use(bodySizeLimitMiddleware(1 << 20))

	auth := jwtAuthMiddleware(cfg.JWTSecret)
	r.Mount("/", sessionSrv.Router(auth))
	r.Mount("/spotify", playerSrv.Router(auth))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("session-service: shutdown")
		}
	}()

	zlog.Info().Str("port", cfg.Port).Msg("session-service listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal().Err(err).Msg("session-service")
	}
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "text" {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
