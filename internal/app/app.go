package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"govtender/internal/auth"
	"govtender/internal/config"
	"govtender/internal/controller"
	"govtender/internal/ledger"
	"govtender/internal/notify"
	"govtender/internal/repository"
	"govtender/internal/router"
	"govtender/internal/service"
	"govtender/internal/storage"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type App struct {
	repo       *repository.Repository
	service    *service.Service
	controller *controller.Controller
	handler    http.Handler
	redis      *redis.Client
	queue      *notify.Queue
	worker     *notify.Worker
	stopSig    chan os.Signal
	cfg        *config.Config
	log        zerolog.Logger

	Done chan struct{}
}

type option func(*App)

func WithConfig(cfg *config.Config) option {
	return func(app *App) {
		app.cfg = cfg
	}
}

func WithLogger(l zerolog.Logger) option {
	return func(app *App) {
		app.log = l
	}
}

func NewApp(opts ...option) (*App, error) {
	var err error

	app := &App{
		stopSig: make(chan os.Signal, 2),
		log:     log.Logger,
		Done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.cfg == nil {
		cfg, err := config.NewConfig()
		if err != nil {
			return nil, err
		}
		app.cfg = cfg
	}

	app.repo, err = repository.NewRepository(nil, &app.cfg.PostgresConfig)
	if err != nil {
		return nil, err
	}

	svcOpts := []service.Option{
		service.WithLedger(app.newLedger(), app.cfg.LedgerConfig.Timeout),
		service.WithLogger(app.log),
	}

	stores, err := app.newStorage()
	if err != nil {
		return nil, err
	}
	svcOpts = append(svcOpts, service.WithImageStore(stores), service.WithDocumentStore(stores))

	notifier, err := app.newNotifier()
	if err != nil {
		return nil, err
	}
	svcOpts = append(svcOpts, service.WithNotifier(notifier))

	app.service = service.NewService(app.repo, auth.NewTokenService(app.cfg.TokenConfig), svcOpts...)
	app.controller = controller.NewController(app.service, app.cfg.TokenConfig)

	authLimit, err := router.NewAuthRateLimiter(app.cfg.AuthRateLimit, app.redis)
	if err != nil {
		return nil, fmt.Errorf("app.NewApp: rate limiter: %w", err)
	}

	routerCfg := router.Config{
		Log:            app.log,
		CORSOrigin:     app.cfg.CORSOrigin,
		RequestTimeout: app.cfg.RequestTimeout,
		Metrics:        app.cfg.Metrics,
		Secure:         router.NewSecure(router.SecureOptions(app.cfg.Development())),
		AuthRateLimit:  authLimit,
		TrustProxy:     app.cfg.TrustProxy,
	}
	if local, ok := stores.(*storage.Local); ok {
		routerCfg.ObjectsDir = local.Dir()
	}
	app.handler = router.NewRouter(app.controller, routerCfg)

	return app, nil
}

// newLedger picks the JSON-RPC ledger when an endpoint is configured.
func (app *App) newLedger() ledger.Ledger {
	if app.cfg.LedgerConfig.RPCURL == "" {
		app.log.Warn().Msg("LEDGER_RPC_URL is not set, ledger calls are not recorded anywhere")
		return ledger.NewNoop()
	}
	return ledger.NewRPCClient(app.cfg.LedgerConfig)
}

type objectStore interface {
	storage.ImageStore
	storage.DocumentStore
}

func (app *App) newStorage() (objectStore, error) {
	switch app.cfg.StorageConfig.Driver {
	case "ipfs":
		return storage.NewIPFS(app.cfg.StorageConfig), nil
	case "local", "":
		local, err := storage.NewLocal(app.cfg.StorageConfig)
		if err != nil {
			return nil, fmt.Errorf("app.NewApp: %w", err)
		}
		return local, nil
	default:
		return nil, fmt.Errorf("app.NewApp: unknown storage driver %q", app.cfg.StorageConfig.Driver)
	}
}

// newNotifier queues notifications through Redis when it is configured and
// delivers them in process otherwise.
func (app *App) newNotifier() (notify.Notifier, error) {
	var deliverer notify.Deliverer = notify.NewLogDeliverer(app.log)
	if app.cfg.WebhookURL != "" {
		deliverer = notify.NewWebhook(app.cfg.WebhookURL)
	}

	if app.cfg.RedisAddr == "" {
		return notify.NewInline(deliverer), nil
	}

	app.redis = redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("app.NewApp: redis ping: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	}
	app.queue = notify.NewQueue(redisOpt, app.log)
	app.worker = notify.NewWorker(redisOpt, app.cfg.Concurrency, deliverer, app.log)
	return app.queue, nil
}

func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-app.stopSig
		app.log.Info().Str("signal", sig.String()).Msg("received signal")
		cancel()
	}()

	server := http.Server{
		Addr:         app.cfg.ServerAddress,
		Handler:      app.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: app.cfg.RequestTimeout + 10*time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			app.log.Error().Err(err).Msg("http server error")
		}
	}()

	if app.worker != nil {
		if err := app.worker.Start(); err != nil {
			app.log.Error().Err(err).Msg("notification worker did not start")
		}
	}

	app.log.Info().Str("address", app.cfg.ServerAddress).Msg("server started, listening for connections")
	<-ctx.Done()

	timeout, tcancel := context.WithTimeout(context.Background(), time.Second*10)
	defer tcancel()
	app.log.Info().Msg("shutting down http server")
	if err := server.Shutdown(timeout); err != nil {
		app.log.Error().Err(err).Msg("http server shutdown error")
	}

	if app.worker != nil {
		app.log.Info().Msg("stopping notification worker")
		app.worker.Shutdown()
	}
	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			app.log.Error().Err(err).Msg("notification queue closing error")
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error().Err(err).Msg("redis closing error")
		}
	}

	app.log.Info().Msg("closing repository")
	if err := app.repo.Close(); err != nil {
		app.log.Error().Err(err).Msg("repository closing error")
	}

	close(app.Done)
	app.log.Info().Msg("exiting app")
}

// SetupLogger configures the global zerolog logger from LOG_LEVEL and
// LOG_FORMAT.
func SetupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	l := zerolog.New(os.Stderr)
	if cfg.LogFormat == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = l.With().Timestamp().Logger()
	return log.Logger
}
