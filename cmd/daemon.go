package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/skytrace/copilot/cmd/common"
	"github.com/skytrace/copilot/internal/config"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/internal/subsystem"
	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// stdout receives command output; tests swap it.
var stdout io.Writer = os.Stdout

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	return config.Load(config.Path(ctx.GlobalString("config")))
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.Setup(cfg.Log.Level, cfg.Log.Console, os.Stderr)
}

// newDaemonLogger tees the console logger into the configured log file.
func newDaemonLogger(cfg *config.Config) (logger.Logger, error) {
	console := newLogger(cfg)
	if cfg.Log.File == "" {
		return console, nil
	}
	file, err := logger.OpenFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, file), nil
}

// openStore opens the configured slot store with its script engine.
func openStore(cfg *config.Config, l logger.Logger) (*slotstore.Store, *jsengine.Engine, error) {
	store, err := slotstore.New(afero.NewOsFs(), cfg.Store.Dir, l)
	if err != nil {
		return nil, nil, err
	}
	return store, jsengine.New(store, l, cfg.Store.ScriptTimeout), nil
}

func daemon(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "load_config", err)
		return err
	}
	l, err := newDaemonLogger(cfg)
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "open_log", err)
		return err
	}
	defer l.Close()

	s, err := subsystem.New(cfg, l, subsystem.Options{
		Version:   buildArgs.Version,
		Commit:    buildArgs.Commit,
		BuildType: buildArgs.BuildType,
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "daemon", "new_subsystem", err)
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			l.Warning("close: %v", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	l.Info("copilot %s starting, config %s", buildArgs.Version, config.Path(ctx.GlobalString("config")))
	if err := s.Run(sigCtx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	l.Info("copilot stopped")
	return nil
}
