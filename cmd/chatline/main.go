package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/app"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/reconcile"
	"github.com/matheus3301/chatline/internal/tui"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := profile.EnsureDir(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		eng    *reconcile.Engine
		client *api.Client
		ident  identity.Provider
		cfg    *config.Config
		logger *zap.Logger
	)
	fxApp := fx.New(
		app.Module(app.Params{Profile: name}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Populate(&eng, &client, &ident, &cfg, &logger),
	)
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := fxApp.Start(startCtx)
	cancel()
	if err != nil {
		var held *profile.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "profile %q is already open in another chatline\n", name)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(tui.Options{
		Engine:   eng,
		Contacts: client,
		Profile:  name,
		UserID:   ident.UserID(),
		Server:   cfg.Server.BaseURL,
		Logger:   logger.Named("tui"),
	})
	runErr := ui.Run()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
