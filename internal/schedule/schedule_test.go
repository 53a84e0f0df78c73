package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"growth-engine/internal/runner"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []runner.Request
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) (runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return runner.Result{RunID: "r1", Operation: req.Operation}, f.err
}

const sample = `
jobs:
  - operation: Campaign
    cron: "0 0 9 * * MON-FRI"
  - operation: retention
    cron: "@daily"
  - operation: metrics
    cron: "0 30 23 * * *"
    period: weekly
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Jobs, 3)
	require.Equal(t, "campaign", f.Jobs[0].Operation)
	require.Equal(t, "weekly", f.Jobs[2].Period)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":       `jobs: []`,
		"unknown op":  "jobs:\n  - operation: launch\n    cron: \"@daily\"",
		"bad cron":    "jobs:\n  - operation: pricing\n    cron: \"not a cron\"",
		"no seconds":  "jobs:\n  - operation: pricing\n    cron: \"0 9 * * *\"",
		"broken yaml": "jobs: [",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Jobs, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestScheduler_RegisterAndExecute(t *testing.T) {
	fr := &fakeRunner{}
	var buf bytes.Buffer
	s, err := NewScheduler(fr, slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)

	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, s.Register(context.Background(), f.Jobs))

	entries := s.cron.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		e.Job.Run()
	}

	require.ElementsMatch(t, []runner.Request{
		{Operation: "campaign"},
		{Operation: "retention"},
		{Operation: "metrics", Period: "weekly"},
	}, fr.reqs)
	require.Contains(t, buf.String(), "scheduled job finished")
}

func TestScheduler_FailureIsLogged(t *testing.T) {
	fr := &fakeRunner{err: errors.New("boom")}
	var buf bytes.Buffer
	s, err := NewScheduler(fr, slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)

	require.NoError(t, s.Register(context.Background(), []Job{{Operation: "pricing", Cron: "@hourly"}}))
	s.cron.Entries()[0].Job.Run()
	require.Contains(t, buf.String(), "scheduled job failed")
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(&fakeRunner{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	s.Start()
	s.Stop(time.Second)
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(nil, slog.Default())
	require.Error(t, err)
	_, err = NewScheduler(&fakeRunner{}, nil)
	require.Error(t, err)
}
