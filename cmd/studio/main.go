package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tattoostudio/internal/api"
	"tattoostudio/internal/appointments"
	"tattoostudio/internal/authn"
	adminbot "tattoostudio/internal/bot"
	"tattoostudio/internal/config"
	"tattoostudio/internal/content"
	"tattoostudio/internal/database"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/events"
	"tattoostudio/internal/google"
	"tattoostudio/internal/logging"
	"tattoostudio/internal/metrics"
	"tattoostudio/internal/notify"
	"tattoostudio/internal/repository"
	"tattoostudio/internal/session"
	"tattoostudio/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

type storage struct {
	docs  domain.DocumentStore
	users domain.UserDirectory
	db    *database.DB
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "studio-main")

	catalog, err := loadContent(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	store, err := initStorage(cfg, bus, base)
	if err != nil {
		return err
	}
	if store.db != nil {
		defer store.db.Close()
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
		bridge := events.NewRedisBridge(bus, redisClient, cfg.Redis.Channel, logging.Component(base, "redis-bridge"))
		if err := bridge.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis bridge failed, changes stay local to this process")
		} else {
			defer bridge.Stop()
		}
	}

	backend := authn.NewBackend(
		store.users,
		initTokenStore(ctx, store, redisClient, base),
		time.Duration(cfg.Auth.SessionTTLSeconds)*time.Second,
		logging.Component(base, "auth"),
	)
	hook := appointments.NewHook(store.docs, bus, logging.Component(base, "appointments"))
	hook.Mount(ctx)

	var wg sync.WaitGroup
	startBackground(ctx, &wg, cfg, store, bus, redisClient, base)

	httpServer := api.NewHTTPServer(&cfg.API, api.Deps{
		Store:        store.docs,
		Appointments: hook,
		Auth:         backend,
		Admins:       session.NewAllowList(cfg.Auth.AdminEmails),
		Catalog:      catalog,
		Booking:      cfg.Booking,
	}, base)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, store.docs, base)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)
	stop()
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func loadContent(cfg *config.Config, logger *zerolog.Logger) (*content.Catalog, error) {
	path := os.Getenv("CONTENT_PATH")
	if path == "" {
		path = cfg.Content.Path
	}
	catalog, err := content.Load(path)
	if err != nil {
		logger.Error().Err(err).Str("content_path", path).Msg("load content")
		return nil, err
	}
	logger.Info().Int("works", len(catalog.Portfolio)).Msg("content loaded")
	return catalog, nil
}

func initStorage(cfg *config.Config, feed domain.ChangeFeed, logger *zerolog.Logger) (storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return storage{
			docs:  repository.NewMemoryDocumentStore(feed),
			users: repository.NewMemoryUserDirectory(),
		}, nil
	}

	db, err := database.NewDB(cfg.Database.Path, feed, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return storage{}, err
	}
	return storage{docs: db, users: db, db: db}, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initTokenStore prefers Redis (falling back to memory while it is down),
// then the sqlite sessions table, then process memory.
func initTokenStore(ctx context.Context, store storage, client *redis.Client, logger *zerolog.Logger) domain.TokenStore {
	memory := repository.NewMemoryTokenStore()
	if client != nil {
		return repository.NewFailoverTokenStore(repository.NewRedisTokenStore(client), memory, logging.Component(logger, "sessions"))
	}
	if store.db != nil {
		if n, err := store.db.PurgeExpiredSessions(ctx); err != nil {
			logger.Warn().Err(err).Msg("purge expired sessions")
		} else if n > 0 {
			logger.Info().Int64("purged", n).Msg("expired sessions removed")
		}
		return repository.WithMemoryRateLimit(store.db)
	}
	return memory
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.AppointmentsSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.AppointmentsSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// startBackground launches the optional workers. Each stops when ctx is done.
func startBackground(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	store storage,
	bus *events.EventBus,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) {
	goWait := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if store.db != nil {
		backup := database.NewBackupService(store.db, cfg.Backup, logging.Component(logger, "backup"))
		goWait(func() { backup.Start(ctx) })

		if sheetsService := initGoogleSheets(ctx, cfg, logger); sheetsService != nil {
			var queue redis.UniversalClient
			if redisClient != nil {
				queue = redisClient
			}
			w := worker.NewSheetsWorker(store.db, sheetsService, queue, worker.DefaultRetryPolicy(), logging.Component(logger, "sheets-worker"))
			unsubscribe := w.Subscribe(bus)
			goWait(func() {
				defer unsubscribe()
				w.Start(ctx)
			})
			goWait(func() { sheetsService.RefreshCache(ctx, 6*time.Hour) })
		}
	} else if cfg.Google.AppointmentsSpreadSheetID != "" {
		logger.Warn().Msg("sheets sync needs the sqlite driver for its queue, skipping")
	}

	if cfg.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
			return
		}
		bot.Debug = cfg.Telegram.Debug
		logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")

		notifier := notify.New(bot, cfg.Telegram.ChatIDs, store.docs, cfg.Telegram.DigestSchedule, logging.Component(logger, "notify"))
		goWait(func() {
			if err := notifier.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("notifier stopped")
			}
		})

		admin := adminbot.New(bot, store.docs, bus, cfg.Telegram.Managers(), logging.Component(logger, "telegram-bot"))
		goWait(func() { admin.Start(ctx) })
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC server started")
	}

	errCh := make(chan error, 1)
	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- err
			}
		}()
		logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("HTTP server started")
	} else {
		logger.Warn().Msg("HTTP API is disabled in config")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("studio stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
