package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notebot/internal/app"
	"notebot/internal/config"
)

const stopTimeout = 15 * time.Second

type rootFlags struct {
	configPath string
	envFiles   []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "notebot",
		Short:         "Telegram notes and reminders bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to config file (.json, .yaml); empty uses defaults and environment")
	root.PersistentFlags().StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll Telegram and deliver reminders until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "deliver",
			Short: "Run one delivery pass and exit (for cron or external schedulers)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return deliverOnce(cmd.Context(), f)
			},
		},
	)
	return root
}

func loadConfig(f *rootFlags) (*config.ConfigManager, error) {
	if err := config.LoadDotEnv(f.envFiles...); err != nil {
		return nil, fmt.Errorf("env file: %w", err)
	}
	cfgm := config.NewConfigManager(f.configPath)
	if _, err := cfgm.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfgm, nil
}

func runBot(parent context.Context, f *rootFlags) error {
	cfgm, err := loadConfig(f)
	if err != nil {
		return err
	}
	a, err := app.New(cfgm)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return stopErr
}

func deliverOnce(parent context.Context, f *rootFlags) error {
	cfgm, err := loadConfig(f)
	if err != nil {
		return err
	}
	a, err := app.New(cfgm)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, tickErr := a.DeliverOnce(ctx)
	fmt.Printf("window %s .. %s: found=%d sent=%d failed=%d lost=%d unmarked=%d\n",
		res.WindowStart.Format(time.RFC3339), res.WindowEnd.Format(time.RFC3339),
		res.Found, res.Sent, res.Failed, res.Lost, res.Unmarked)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return errors.Join(tickErr, a.Stop(stopCtx, app.StopDeliverRun))
}
