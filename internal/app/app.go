package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polymirror/internal/alerting"
	"polymirror/internal/chain"
	"polymirror/internal/clob"
	"polymirror/internal/config"
	"polymirror/internal/executor"
	"polymirror/internal/guard"
	"polymirror/internal/market"
	"polymirror/internal/scheduler"
	"polymirror/internal/service"
	"polymirror/internal/settings"
	"polymirror/internal/storage"
	"polymirror/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// Out receives command output; nil means stdout.
	Out io.Writer

	source chain.LogSource
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) out() io.Writer {
	if a.Out != nil {
		return a.Out
	}
	return os.Stdout
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openLedger(ctx context.Context) (storage.Ledger, *storage.Store, func(), error) {
	ledger, store, err := storage.OpenLedger(ctx, a.Config.Ledger, a.Config.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	closer := func() {
		if err := ledger.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close ledger")
		}
	}
	return ledger, store, closer, nil
}

// openSettings returns the operating parameters store. A postgres source
// reuses the ledger pool when there is one.
func (a *App) openSettings(ctx context.Context, store *storage.Store) (settings.Store, func(), error) {
	switch a.Config.Settings.Source {
	case "postgres":
		if store != nil {
			return settings.NewPostgresStore(store.Pool()), nil, nil
		}
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		return settings.NewPostgresStore(pool), pool.Close, nil
	default:
		return settings.NewFileStore(a.Config.Settings.Path), nil, nil
	}
}

func (a *App) newSource() chain.LogSource {
	if a.source != nil {
		return a.source
	}
	return chain.NewEthSource(chain.SourceOptions{
		RPCURL:         a.Config.Chain.RPCURL,
		Exchanges:      a.Config.Chain.ExchangeAddresses,
		Timeout:        a.Config.Chain.RequestTimeout,
		FilterByTarget: a.Config.Chain.FilterByTarget,
	}, a.Logger)
}

// newResolver builds the metadata resolver. An unreachable Redis only
// disables the shared tier.
func (a *App) newResolver(ctx context.Context) (*market.Resolver, func(), error) {
	gamma := market.NewGammaClient(market.GammaOptions{
		BaseURL:    a.Config.Market.GammaBaseURL,
		Timeout:    a.Config.Market.RequestTimeout,
		RatePerSec: a.Config.Market.RatePerSec,
	}, a.Logger)

	var shared market.SharedCache
	var closer func()
	if rc := a.Config.Market.Redis; rc.Enabled {
		cache := market.NewRedisCache(market.RedisOptions{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
		})
		if err := cache.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unavailable; shared market cache disabled")
			_ = cache.Close()
		} else {
			shared = cache
			closer = func() { _ = cache.Close() }
		}
	}

	resolver, err := market.NewResolver(gamma, shared, a.Config.Market.CacheSize, a.Logger)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, nil, fmt.Errorf("build market resolver: %w", err)
	}
	return resolver, closer, nil
}

func (a *App) newClobClient() *clob.Client {
	return clob.NewClient(clob.Options{
		BaseURL:    a.Config.Clob.BaseURL,
		Timeout:    a.Config.Clob.RequestTimeout,
		RatePerSec: a.Config.Clob.RatePerSec,
	}, a.Logger)
}

func (a *App) newTrader(client *clob.Client) (*clob.Trader, error) {
	cfg := a.Config.Clob
	if cfg.PrivateKey == "" {
		return nil, errors.New("clob private key not configured (POLYMIRROR_CLOB_PRIVATE_KEY)")
	}
	wallet, err := clob.NewWallet(cfg.PrivateKey, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	creds := clob.Credentials{APIKey: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.APIPassphrase}
	if !creds.Complete() {
		a.Logger.Info().Str("policy", cfg.CredentialPolicy).Msg("api credentials not supplied; deriving from wallet")
	}

	a.Logger.Info().Str("address", wallet.Address().Hex()).Msg("trading wallet loaded")
	return clob.NewTrader(client, wallet, clob.TraderOptions{
		ChainID:          cfg.ChainID,
		OrderType:        cfg.OrderType,
		CredentialPolicy: cfg.CredentialPolicy,
		Credentials:      creds,
	}, a.Logger), nil
}

func (a *App) newGuard(books guard.BookSource) *guard.Guard {
	return guard.New(books, decimal.NewFromFloat(a.Config.Guard.SlippageTolerance))
}

// Run executes the long-running mirroring worker.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger, store, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	paramStore, closeSettings, err := a.openSettings(ctx, store)
	if err != nil {
		return err
	}
	if closeSettings != nil {
		defer closeSettings()
	}

	resolver, closeResolver, err := a.newResolver(ctx)
	if err != nil {
		return err
	}
	if closeResolver != nil {
		defer closeResolver()
	}

	client := a.newClobClient()
	trader, err := a.newTrader(client)
	if err != nil {
		return err
	}

	poller := chain.NewPoller(a.newSource(), chain.PollerOptions{
		StartBlock:    a.Config.Chain.StartBlock,
		Confirmations: a.Config.Chain.Confirmations,
		MaxBlockSpan:  a.Config.Chain.MaxBlockSpan,
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Poller.Interval,
		Backoff:      a.Config.Poller.Backoff,
		StartupDelay: a.Config.Poller.StartupDelay,
	}, a.Logger)

	deps := service.Deps{
		Scheduler: sched,
		Settings:  paramStore,
		Poller:    poller,
		Resolver:  resolver,
		Guard:     a.newGuard(client),
		Executor:  executor.New(trader, a.Logger),
		Ledger:    ledger,
		Notifier:  a.newNotifier(),
	}
	if store != nil {
		deps.Locker = store
	}

	svc := service.New(deps, service.Options{
		RecordSkipped: a.Config.Ledger.RecordSkipped,
		NotifySuccess: a.Config.Alerting.NotifySuccess,
		LockKey:       a.Config.Poller.AdvisoryLockKey,
	}, a.Logger)

	a.Logger.Info().
		Str("version", version.Version).
		Str("ledger", a.Config.Ledger.Driver).
		Str("settings", a.Config.Settings.Source).
		Strs("exchanges", a.Config.Chain.ExchangeAddresses).
		Msg("starting mirroring worker")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("worker terminated with error")
		return err
	}

	a.Logger.Info().Msg("mirroring worker stopped")
	return nil
}

// ExportOptions hold parameters for exporting outcomes.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReplayOptions bound a dry-run pass over historical blocks.
type ReplayOptions struct {
	FromBlock uint64
	ToBlock   uint64
}

// SimulateOptions describe a synthetic fill by the target.
type SimulateOptions struct {
	TokenID string
	Side    string
	Price   decimal.Decimal
	Size    decimal.Decimal
}
