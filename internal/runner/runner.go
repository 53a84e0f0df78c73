package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"growth-engine/internal/domain"
	"growth-engine/internal/lock"
	"growth-engine/internal/usecase"
)

const defaultLockTTL = 15 * time.Minute

// Operation names accepted from schedulers and the CLI.
const (
	OperationCampaign  = "campaign"
	OperationRetention = "retention"
	OperationPricing   = "pricing"
	OperationHealth    = "health"
	OperationMetrics   = "metrics"
)

// ErrUnknownOperation is returned for an operation name Run does not know.
var ErrUnknownOperation = errors.New("runner: unknown operation")

// Orchestrator is the set of growth operations the runner drives.
type Orchestrator interface {
	RunCampaignDispatch(ctx context.Context) error
	RunRetention(ctx context.Context) error
	RunPricingOptimization(ctx context.Context) error
	RunHealthCheck(ctx context.Context) (domain.HealthStatus, error)
	ReportMetrics(ctx context.Context, period string) (domain.MetricsSnapshot, error)
}

type Request struct {
	Operation string `json:"operation"`
	Period    string `json:"period,omitempty"`
}

type Result struct {
	RunID     string                  `json:"runId"`
	Operation string                  `json:"operation"`
	Skipped   bool                    `json:"skipped,omitempty"`
	Health    domain.HealthStatus     `json:"health,omitempty"`
	Metrics   *domain.MetricsSnapshot `json:"metrics,omitempty"`
	StartedAt time.Time               `json:"startedAt"`
	Duration  string                  `json:"duration"`
}

// Runner executes one named operation per call. Mutating operations hold a
// lock for their duration so overlapping invocations of the same operation
// are skipped instead of run twice.
type Runner struct {
	orch    Orchestrator
	locker  lock.Locker
	auditor usecase.Auditor
	logger  *slog.Logger
	lockTTL time.Duration
	newID   func() string
	now     func() time.Time
}

type Option func(*Runner)

func WithLocker(l lock.Locker) Option {
	return func(r *Runner) {
		if l != nil {
			r.locker = l
		}
	}
}

func WithAuditor(a usecase.Auditor) Option {
	return func(r *Runner) {
		if a != nil {
			r.auditor = a
		}
	}
}

func WithLockTTL(ttl time.Duration) Option {
	return func(r *Runner) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func New(orch Orchestrator, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if orch == nil {
		return nil, errors.New("runner: orchestrator must not be nil")
	}
	if logger == nil {
		return nil, errors.New("runner: logger must not be nil")
	}
	r := &Runner{
		orch:    orch,
		locker:  lock.Noop{},
		auditor: nopAuditor{},
		logger:  logger,
		lockTTL: defaultLockTTL,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Operations lists the accepted operation names.
func Operations() []string {
	return []string{OperationCampaign, OperationRetention, OperationPricing, OperationHealth, OperationMetrics}
}

func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	op := strings.ToLower(strings.TrimSpace(req.Operation))
	internalOp, mutating, ok := resolve(op)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}

	started := r.now()
	res := Result{RunID: r.newID(), Operation: op, StartedAt: started.UTC()}
	ctx = usecase.WithRunID(ctx, res.RunID)
	log := r.logger.With("run_id", res.RunID, "operation", op)

	if mutating {
		lease, err := r.locker.Acquire(ctx, internalOp, r.lockTTL)
		if errors.Is(err, lock.ErrLocked) {
			log.Info("operation already running, skipping")
			res.Skipped = true
			res.Duration = r.now().Sub(started).String()
			return res, nil
		}
		if err != nil {
			log.Error("failed to acquire run lock", "err", err)
			return Result{}, fmt.Errorf("runner: %s: %w", op, err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release run lock", "err", err)
			}
		}()
	}

	log.Info("operation started")
	err := r.dispatch(ctx, op, req.Period, &res)
	res.Duration = r.now().Sub(started).String()

	rec := domain.AuditRecord{
		RunID:      res.RunID,
		Operation:  internalOp,
		Action:     "run_completed",
		Detail:     res.Duration,
		OccurredAt: r.now().UTC(),
	}
	if err != nil {
		rec.Action = "run_failed"
		rec.Detail = err.Error()
	}
	if auditErr := r.auditor.Record(ctx, rec); auditErr != nil {
		log.Warn("audit record not published", "action", rec.Action, "err", auditErr)
	}

	if err != nil {
		log.Error("operation failed", "duration", res.Duration, "err", err)
		return Result{}, err
	}
	log.Info("operation finished", "duration", res.Duration)
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, op, period string, res *Result) error {
	switch op {
	case OperationCampaign:
		return r.orch.RunCampaignDispatch(ctx)
	case OperationRetention:
		return r.orch.RunRetention(ctx)
	case OperationPricing:
		return r.orch.RunPricingOptimization(ctx)
	case OperationHealth:
		status, err := r.orch.RunHealthCheck(ctx)
		if err != nil {
			return err
		}
		res.Health = status
		return nil
	case OperationMetrics:
		snap, err := r.orch.ReportMetrics(ctx, period)
		if err != nil {
			return err
		}
		res.Metrics = &snap
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

func resolve(op string) (internalOp string, mutating bool, ok bool) {
	switch op {
	case OperationCampaign:
		return usecase.OpCampaignDispatch, true, true
	case OperationRetention:
		return usecase.OpRetention, true, true
	case OperationPricing:
		return usecase.OpPricingOptimization, true, true
	case OperationHealth:
		return usecase.OpHealthCheck, false, true
	case OperationMetrics:
		return usecase.OpMetricsReport, false, true
	}
	return "", false, false
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, domain.AuditRecord) error { return nil }
