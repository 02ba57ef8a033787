package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/notify"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/reconcile"
	"github.com/matheus3301/chatline/internal/status"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
	Console bool           // also log to stderr; off for the terminal UI
	Config  *config.Config // optional override for testing; nil = load the profile config
	LogPath string         // optional override for testing; empty = profile log file
}

// Module returns the fx module of the chat client: configuration, logging, the
// REST client, the push channel and the reconciliation engine.
func Module(p Params) fx.Option {
	return fx.Module("chatline",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideIdentity,
			provideAPIClient,
			provideDialer,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = profile.LoadConfig(p.Profile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	path := p.LogPath
	if path == "" {
		path = profile.LogPath(p.Profile)
	}
	return logging.New(path, p.Profile, cfg.Log.Level, p.Console)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*profile.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := profile.Acquire(p.Profile)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideIdentity(cfg *config.Config, logger *zap.Logger) (identity.Provider, error) {
	token, err := cfg.Auth.ResolveToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrNoIdentity, err)
	}
	id, err := identity.FromToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrNoIdentity, err)
	}
	logger.Info("identity resolved", zap.String("user_id", id.UserID()))
	return id, nil
}

func provideAPIClient(cfg *config.Config, ident identity.Provider, logger *zap.Logger) (*api.Client, error) {
	return api.New(api.Options{
		BaseURL:         cfg.Server.BaseURL,
		Timeout:         cfg.HTTP.Timeout.Duration,
		RetryMaxElapsed: cfg.HTTP.RetryMaxElapsed.Duration,
		BreakerFailures: cfg.HTTP.BreakerFailures,
		BreakerCooldown: cfg.HTTP.BreakerCooldown.Duration,
	}, ident, logger.Named("api"))
}

func provideDialer(cfg *config.Config, ident identity.Provider, logger *zap.Logger) *notify.Dialer {
	return notify.NewDialer(cfg.Server.PushURL, ident, logger.Named("push"))
}

func provideEngine(ident identity.Provider, c *api.Client, d *notify.Dialer, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*reconcile.Engine, error) {
	return reconcile.New(reconcile.Deps{
		Identity:  ident,
		Directory: c,
		Messages:  c,
		Channel:   Channel{Dialer: d},
		Bus:       b,
		Status:    m,
		Logger:    logger.Named("engine"),
	})
}

// Channel adapts a notify.Dialer to the engine's Subscriber.
type Channel struct {
	Dialer *notify.Dialer
}

func (c Channel) Subscribe(ctx context.Context) (reconcile.Subscription, error) {
	s, err := c.Dialer.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func registerLifecycle(lc fx.Lifecycle, eng *reconcile.Engine, lk *profile.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// A failed initial load leaves an empty list; the user can refresh.
			err := eng.Start(ctx)
			switch {
			case err == nil:
			case errors.Is(err, chat.ErrNoIdentity), errors.Is(err, chat.ErrClosed):
				return err
			default:
				logger.Error("initial load failed", zap.Error(err))
			}
			logger.Info("client started", zap.String("channel", string(eng.Status().Current())))
			return nil
		},
		OnStop: func(_ context.Context) error {
			eng.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
