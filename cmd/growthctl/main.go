package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"growth-engine/internal/app"
	"growth-engine/internal/config"
	"growth-engine/internal/runner"
	"growth-engine/internal/schedule"
)

const stopTimeout = 30 * time.Second

// session is what every subcommand needs from the wired application.
type session struct {
	runner       schedule.JobRunner
	logger       *slog.Logger
	scheduleFile string
	close        func() error
}

type sessionFactory func(ctx context.Context, stderr io.Writer) (*session, error)

func defaultSession(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(stderr)
	a, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{runner: a.Runner, logger: logger, scheduleFile: cfg.ScheduleFile, close: a.Close}, nil
}

func newRootCmd(newSession sessionFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "growthctl",
		Short:         "growthctl - run and schedule growth operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var period string
	runCmd := &cobra.Command{
		Use:       "run <operation>",
		Short:     "Run one operation: " + strings.Join(runner.Operations(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: runner.Operations(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, newSession, runner.Request{Operation: args[0], Period: period})
		},
	}
	runCmd.Flags().StringVar(&period, "period", "", "metrics period (metrics only)")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every subsystem and fail if any is unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, newSession, runner.Request{Operation: runner.OperationHealth})
		},
	}

	var metricsPeriod string
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Report marketing, retention and pricing metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, newSession, runner.Request{Operation: runner.OperationMetrics, Period: metricsPeriod})
		},
	}
	metricsCmd.Flags().StringVar(&metricsPeriod, "period", "", "reporting period (default daily)")

	var scheduleFile string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run operations on the cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, newSession, scheduleFile)
		},
	}
	serveCmd.Flags().StringVar(&scheduleFile, "schedule", "", "schedule file (default $SCHEDULE_FILE)")

	root.AddCommand(runCmd, healthCmd, metricsCmd, serveCmd)
	return root
}

func runOnce(cmd *cobra.Command, newSession sessionFactory, req runner.Request) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(s)

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if down := unhealthy(res.Health); len(down) > 0 {
		return fmt.Errorf("unhealthy subsystems: %s", strings.Join(down, ", "))
	}
	return nil
}

func serve(cmd *cobra.Command, newSession sessionFactory, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(s)

	if path == "" {
		path = s.scheduleFile
	}
	file, err := schedule.Load(path)
	if err != nil {
		return err
	}
	sched, err := schedule.NewScheduler(s.runner, s.logger)
	if err != nil {
		return err
	}
	if err := sched.Register(ctx, file.Jobs); err != nil {
		return err
	}

	sched.Start()
	s.logger.Info("scheduler started", "jobs", len(file.Jobs), "schedule", path)
	<-ctx.Done()
	sched.Stop(stopTimeout)
	s.logger.Info("scheduler stopped")
	return nil
}

func unhealthy(h map[string]bool) []string {
	var down []string
	for name, ok := range h {
		if !ok {
			down = append(down, name)
		}
	}
	sort.Strings(down)
	return down
}

func closeSession(s *session) {
	if s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		s.logger.Warn("shutdown failed", "err", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd(defaultSession).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
