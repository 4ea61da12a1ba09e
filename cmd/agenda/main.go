package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/auth"
	"github.com/Makepad-fr/agenda/internal/cli"
	"github.com/Makepad-fr/agenda/internal/config"
	"github.com/Makepad-fr/agenda/internal/logging"
	"github.com/Makepad-fr/agenda/internal/remote"
	"github.com/Makepad-fr/agenda/internal/store/jsonstore"
	"github.com/Makepad-fr/agenda/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Root flags (apply to every subcommand)
	configPath := flag.String("config", "", "config file (default $AGENDA_CONFIG or ~/.config/agenda/config.yaml)")
	theme := flag.String("theme", "", "output theme: classic, neon or mono (overrides the config)")
	flag.Usage = func() {
		(&cli.App{}).PrintHelp(os.Stderr)
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			ui.Fail(os.Stderr, "config: "+err.Error())
			return cli.ExitFail
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		ui.Fail(os.Stderr, "config: "+err.Error())
		return cli.ExitFail
	}
	cfg.ApplyEnv(os.Getenv)
	if *theme != "" {
		cfg.Theme = *theme
	}
	ui.SetTheme(cfg.Theme)

	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		ui.Fail(os.Stderr, "log: "+err.Error())
		return cli.ExitFail
	}
	defer log.Sync()

	st, err := jsonstore.New(cfg.DataDir)
	if err != nil {
		ui.Fail(os.Stderr, "storage: "+err.Error())
		return cli.ExitFail
	}
	session := auth.NewSession(st)
	client, err := remote.New(remote.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.RequestTimeout(),
		Tokens:  session,
		Logger:  log,
	})
	if err != nil {
		ui.Fail(os.Stderr, "api_url: "+err.Error())
		return cli.ExitFail
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("starting", zap.String("config", path), zap.String("api_url", cfg.APIURL), zap.Strings("args", flag.Args()))
	app := &cli.App{
		Config:  cfg,
		Store:   st,
		Session: session,
		Remote:  client,
		Log:     log,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	code := app.Run(ctx, flag.Args())
	if code != cli.ExitOK {
		fmt.Fprintln(os.Stderr)
	}
	return code
}
