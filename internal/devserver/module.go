package devserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/store"
)

// Params selects the configuration of the message service.
type Params struct {
	ConfigPath string
	Config     *Config // optional override for testing; nil = load ConfigPath
}

// Module returns the fx module of the development message service.
func Module(p Params) fx.Option {
	return fx.Module("chatd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideIssuer,
			provideHub,
			NewService,
			NewRouter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = LoadConfig(p.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg *Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, "chatd", cfg.LogLevel, true)
}

func provideStore(cfg *Config, logger *zap.Logger) (*store.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}

	users := make([]store.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, store.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email})
	}
	if err := db.BulkUpsertUsers(context.Background(), users); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath), zap.Int("seeded_users", len(users)))
	return db, nil
}

func provideIssuer(cfg *Config) (*identity.Issuer, error) {
	return identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL.Duration)
}

func provideHub(cfg *Config, logger *zap.Logger) *Hub {
	return NewHub(cfg.AllowedOrigins, logger.Named("hub"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, hub *Hub, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hub.Close()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			logger.Info("chatd stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
