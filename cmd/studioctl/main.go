// Command studioctl administers the studio from a terminal: accounts,
// the admin session and the appointment workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/authn"
	"tattoostudio/internal/config"
	"tattoostudio/internal/database"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/events"
	"tattoostudio/internal/logging"
	"tattoostudio/internal/models"
	"tattoostudio/internal/repository"
	"tattoostudio/internal/session"
	"tattoostudio/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const usage = `uso: studioctl <comando> [opções]

comandos:
  create-admin -email E -password P   cria uma conta
  login -email E -password P          inicia a sessão de administrador
  logout                              encerra a sessão
  whoami                              mostra a sessão atual
  list [-status S]                    lista agendamentos (all, pending, approved, rejected, completed)
  approve <id>                        aprova um agendamento pendente
  reject <id>                         rejeita um agendamento pendente
  complete <id>                       conclui um agendamento aprovado
  export [-o arquivo.xlsx]            exporta agendamentos para Excel
  sheets-sync                         reescreve a planilha do Google com todos os agendamentos
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		return errUsage
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if os.Getenv("STUDIOCTL_DEBUG") == "" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Output = "stderr"

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	a, err := newApp(ctx, cfg, logging.Component(logger, "studioctl"))
	if err != nil {
		return err
	}
	defer a.Close()

	return a.dispatch(ctx, args, out)
}

// app holds what every command needs. Changes made here reach a running
// server through the shared database, the Redis bridge and the sync queue.
type app struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	bus     *events.EventBus
	docs    domain.DocumentStore
	db      *database.DB
	redis   *redis.Client
	bridge  *events.RedisBridge
	backend *authn.Backend
	client  *authn.Client
	manager *session.Manager
	hook    *appointments.Hook
	cleanup []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, bus: events.NewEventBus()}

	var users domain.UserDirectory
	var tokens domain.TokenStore
	switch cfg.Database.Driver {
	case "memory":
		a.docs = repository.NewMemoryDocumentStore(a.bus)
		users = repository.NewMemoryUserDirectory()
		tokens = repository.NewMemoryTokenStore()
	default:
		db, err := database.NewDB(cfg.Database.Path, a.bus, logging.Component(logger, "database"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		a.cleanup = append(a.cleanup, func() { _ = db.Close() })
		a.docs, users, tokens = db, db, repository.WithMemoryRateLimit(db)
	}

	if cfg.Redis.Address != "" {
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running without it")
			_ = client.Close()
		} else {
			a.redis = client
			a.cleanup = append(a.cleanup, func() { _ = client.Close() })
			tokens = repository.NewFailoverTokenStore(repository.NewRedisTokenStore(client), repository.NewMemoryTokenStore(), logger)

			a.bridge = events.NewRedisBridge(a.bus, client, cfg.Redis.Channel, logger)
			if err := a.bridge.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("redis bridge unavailable")
				a.bridge = nil
			} else {
				a.cleanup = append(a.cleanup, a.bridge.Stop)
			}
		}
	}

	if a.db != nil && cfg.Google.AppointmentsSpreadSheetID != "" {
		w := worker.NewSheetsWorker(a.db, nil, nil, worker.DefaultRetryPolicy(), logger)
		a.cleanup = append(a.cleanup, w.Subscribe(a.bus))
	}

	a.backend = authn.NewBackend(users, tokens, time.Duration(cfg.Auth.SessionTTLSeconds)*time.Second, logger)
	sessionFile, err := sessionFilePath(cfg.Auth.SessionFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = authn.NewClient(a.backend, authn.FilePersistence{Path: sessionFile}, logger)
	a.manager = session.NewManager(a.client, session.NewAllowList(cfg.Auth.AdminEmails), logger)
	if err := a.manager.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.cleanup = append(a.cleanup, a.manager.Stop)
	a.client.Start(ctx)

	a.hook = appointments.NewHook(a.docs, a.bus, logger)
	return a, nil
}

func sessionFilePath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate session file: %w", err)
	}
	return filepath.Join(dir, "tattoostudio", "session.json"), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func (a *app) dispatch(ctx context.Context, args []string, out io.Writer) error {
	if err := a.manager.WaitReady(ctx); err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-admin":
		return a.createAdmin(ctx, rest, out)
	case "login":
		return a.login(ctx, rest, out)
	case "logout":
		return a.logout(ctx, out)
	case "whoami":
		return a.whoami(out)
	case "list":
		return a.list(ctx, rest, out)
	case "approve":
		return a.transition(ctx, rest, out, models.StatusApproved)
	case "reject":
		return a.transition(ctx, rest, out, models.StatusRejected)
	case "complete":
		return a.transition(ctx, rest, out, models.StatusCompleted)
	case "export":
		return a.export(ctx, rest, out)
	case "sheets-sync":
		return a.sheetsSync(ctx, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
