package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Foundasion/appointment-confirmation-bot/internal/api"
	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
	"github.com/Foundasion/appointment-confirmation-bot/internal/config"
	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
	"github.com/Foundasion/appointment-confirmation-bot/internal/logging"
	"github.com/Foundasion/appointment-confirmation-bot/internal/realtime"
	"github.com/Foundasion/appointment-confirmation-bot/internal/registry"
	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev").Fatalf("config load error: %v", err)
	}

	log := logging.New(cfg.Env)
	log.WithField("env", cfg.Env).WithField("http_port", cfg.HTTPPort).Info("confirmbot starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Directory: Postgres when configured, demo data otherwise.
	var (
		dir    directory.Directory
		pgPool *pgxpool.Pool
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = directory.Connect(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		dir = directory.NewPgDirectory(pgPool)
		log.Info("connected to Postgres")
	} else {
		dir = directory.NewMemoryDirectory()
		log.Warn("POSTGRES_DSN not set, using in-memory demo directory")
	}

	// Call store: Redis when configured, in-memory otherwise.
	var (
		store callstore.Store
		rdb   *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb, err = callstore.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("error closing redis")
			}
		}()
		store = callstore.NewRedisStore(rdb)
		log.Info("connected to Redis")
	} else {
		store = callstore.NewMemoryStore()
		log.Warn("REDIS_ADDR not set, using in-memory call store")
	}

	reg := registry.New(cfg.SessionIdleTTL)
	go reg.Run(rootCtx)

	var caller api.Caller
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" {
		client, err := telephony.NewClient(telephony.ClientConfig{
			AccountSID:      cfg.TwilioAccountSID,
			AuthToken:       cfg.TwilioAuthToken,
			PhoneNumber:     cfg.TwilioPhoneNumber,
			TestingMode:     cfg.TwilioTestingMode,
			OverrideNumbers: cfg.OverrideNumbers,
			Logger:          log,
		})
		if err != nil {
			log.Fatalf("telephony client error: %v", err)
		}
		caller = client
	} else {
		log.Warn("Twilio credentials not set, outbound calls disabled")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, media streams will fail session setup")
	}

	sessionCfg := realtime.Config{
		URL:            cfg.RealtimeURL,
		APIKey:         cfg.OpenAIAPIKey,
		Voice:          cfg.Voice,
		ConfirmRetries: cfg.ConfirmRetries,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}
	openSession := func(ctx context.Context, appt *directory.AppointmentDetails, resolver *realtime.Resolver) (api.StreamSession, error) {
		return realtime.Open(ctx, sessionCfg, appt, resolver, log)
	}

	server := api.NewServer(cfg, dir, store, reg, caller, openSession, log)
	health := api.NewHealthHandler(pgPool, rdb, cfg.Env, version)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(server, health, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down confirmbot")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
}
