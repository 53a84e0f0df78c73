package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	rcron "github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"growth-engine/internal/runner"
)

// Job runs one operation on a cron expression with a leading seconds field,
// or a descriptor such as "@daily".
type Job struct {
	Operation string `yaml:"operation"`
	Cron      string `yaml:"cron"`
	Period    string `yaml:"period,omitempty"`
}

type File struct {
	Jobs []Job `yaml:"jobs"`
}

var parser = rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("schedule: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("schedule: decode: %w", err)
	}
	if len(f.Jobs) == 0 {
		return File{}, errors.New("schedule: no jobs defined")
	}
	for i := range f.Jobs {
		job := &f.Jobs[i]
		job.Operation = strings.ToLower(strings.TrimSpace(job.Operation))
		if !slices.Contains(runner.Operations(), job.Operation) {
			return File{}, fmt.Errorf("schedule: job %d: unknown operation %q", i, job.Operation)
		}
		if _, err := parser.Parse(job.Cron); err != nil {
			return File{}, fmt.Errorf("schedule: job %d (%s): %w", i, job.Operation, err)
		}
	}
	return f, nil
}

// JobRunner executes a scheduled request. *runner.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, req runner.Request) (runner.Result, error)
}

// Scheduler fires runner requests on their cron schedules. A job whose
// previous invocation is still running in this process is skipped.
type Scheduler struct {
	cron   *rcron.Cron
	runner JobRunner
	logger *slog.Logger
}

func NewScheduler(r JobRunner, logger *slog.Logger) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("schedule: runner must not be nil")
	}
	if logger == nil {
		return nil, errors.New("schedule: logger must not be nil")
	}
	clog := cronLogger{logger: logger}
	return &Scheduler{
		cron: rcron.New(
			rcron.WithParser(parser),
			rcron.WithLogger(clog),
			rcron.WithChain(rcron.Recover(clog), rcron.SkipIfStillRunning(clog)),
		),
		runner: r,
		logger: logger,
	}, nil
}

// Register adds every job. Jobs run with ctx as their parent context.
func (s *Scheduler) Register(ctx context.Context, jobs []Job) error {
	for _, job := range jobs {
		_, err := s.cron.AddFunc(job.Cron, func() {
			s.execute(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("schedule: register %s (%s): %w", job.Operation, job.Cron, err)
		}
		s.logger.Info("registered scheduled job", "operation", job.Operation, "cron", job.Cron)
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	res, err := s.runner.Run(ctx, runner.Request{Operation: job.Operation, Period: job.Period})
	if err != nil {
		s.logger.Error("scheduled job failed", "operation", job.Operation, "err", err)
		return
	}
	s.logger.Info("scheduled job finished", "operation", job.Operation, "run_id", res.RunID, "skipped", res.Skipped)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs, up to timeout.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		s.logger.Warn("scheduler stop timed out waiting for running jobs")
	}
}

// cronLogger adapts slog to the robfig/cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
