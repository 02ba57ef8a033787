package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/devserver"
	"github.com/matheus3301/chatline/internal/identity"
)

func main() {
	configFlag := flag.String("config", devserver.DefaultConfigPath(), "path to chatd.toml")
	mintFlag := flag.String("mint", "", "print a bearer token for the given user id and exit")
	flag.Parse()

	if *mintFlag != "" {
		if err := mint(*configFlag, *mintFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		devserver.Module(devserver.Params{ConfigPath: *configFlag}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
	)

	app.Run()
}

// mint signs a token with the service secret. The user does not have to exist;
// requests with it fail until the user is seeded.
func mint(configPath, userID string) error {
	cfg, err := devserver.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	issuer, err := identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL.Duration)
	if err != nil {
		return err
	}
	token, err := issuer.Mint(userID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
