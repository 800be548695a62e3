package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AutumnsGrove/supsrc/internal/ctlsock"
	"github.com/AutumnsGrove/supsrc/internal/orchestrator"
	"github.com/AutumnsGrove/supsrc/internal/tui"
)

var suiCmd = &cobra.Command{
	Use:   "sui",
	Short: "Run the interactive dashboard (TUI)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return fmt.Errorf("sui: %w", err)
		}
		sink := newSink(cfg)
		sink.Infof("loaded configuration from %s", path)
		// The dashboard owns the terminal's alternate screen buffer; a
		// bare log line mid-render would corrupt it, so daemon output is
		// redirected away rather than interleaved (§9's note against
		// process-wide logging globals - the sink itself still exists,
		// it's just pointed elsewhere for the session's duration).
		sink.Redirect(io.Discard)

		orch := orchestrator.New(cfg, orchestrator.Options{Sink: sink, TUIMode: true})

		ctx, stop := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			if sig == syscall.SIGINT {
				exitCode = 130
			}
			stop()
		}()
		defer signal.Stop(sigCh)

		if err := orch.Start(ctx); err != nil {
			stop()
			return fmt.Errorf("sui: starting repositories: %w", err)
		}
		defer orch.Shutdown(context.Background())

		sockPath := ctlsock.DefaultSocketPath(path)
		startControlSocket(ctx, sockPath, orch, sink)
		defer os.Remove(sockPath)

		model := tui.New(orch, sink)
		program := tea.NewProgram(model)
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("sui: %w", err)
		}
		return nil
	},
}
