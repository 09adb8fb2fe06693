package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"batchsim/internal/app"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts app.Options
	cmd := &cobra.Command{
		Use:           "batchsim",
		Short:         "Run the cyclic batch job simulator behind an HTTP control surface.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to a JSON or YAML config file. Defaults apply when empty.")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address, overrides http.addr.")
	cmd.Flags().BoolVar(&opts.NoAutostart, "no-autostart", false, "Do not start the job once the listener is up.")
	return cmd
}

func run(parent context.Context, opts app.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(opts)
	if err != nil {
		return err
	}
	if err := a.Start(parent); err != nil {
		return err
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopAppStop
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
