package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AutumnsGrove/supsrc/internal/ctlsock"
	"github.com/AutumnsGrove/supsrc/internal/notify"
	"github.com/AutumnsGrove/supsrc/internal/orchestrator"
)

const shutdownTimeout = 5 * time.Second

var watchDesktopNotify bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the autosave daemon in headless mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		sink := newSink(cfg)
		sink.Infof("loaded configuration from %s", path)

		var notifier notify.Notifier
		if watchDesktopNotify {
			notifier = notify.NewDesktop("", sink)
		}

		orch := orchestrator.New(cfg, orchestrator.Options{Sink: sink, Notifier: notifier})

		ctx, stop := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		if err := orch.Start(ctx); err != nil {
			stop()
			return fmt.Errorf("watch: starting repositories: %w", err)
		}

		sockPath := ctlsock.DefaultSocketPath(path)
		startControlSocket(ctx, sockPath, orch, sink)
		defer os.Remove(sockPath)

		sig := <-sigCh
		signal.Stop(sigCh)
		sink.Infof("received %s, shutting down", sig)
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := orch.Shutdown(shutdownCtx); err != nil {
			sink.Errorf("shutdown: %v", err)
		}

		if sig == syscall.SIGINT {
			exitCode = 130
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchDesktopNotify, "desktop-notify", false,
		"spawn desktop notifications (notify-send) on commits, conflicts, and circuit-breaker trips")
}
