package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"growth-engine/internal/domain"
)

const (
	OpCampaignDispatch    = "campaign_dispatch"
	OpRetention           = "retention"
	OpPricingOptimization = "pricing_optimization"
	OpHealthCheck         = "health_check"
	OpMetricsReport       = "metrics_report"

	// ChurnRiskThreshold is exclusive: a user scoring exactly this value is
	// left alone.
	ChurnRiskThreshold = 0.7
)

type SignalSource interface {
	FetchUserActivity(ctx context.Context) ([]domain.UserRecord, error)
	FetchInactiveUsers(ctx context.Context) ([]domain.UserRecord, error)
	FetchUsageStats(ctx context.Context) (domain.UsageData, error)
	TriggerCampaign(ctx context.Context, users []domain.UserRecord, tmpl domain.CampaignTemplate) error
	SendEmail(ctx context.Context, address, templateKind string) error
	HealthCheck(ctx context.Context) (bool, error)
	FetchMarketingMetrics(ctx context.Context, period string) (domain.Metrics, error)
	FetchRetentionMetrics(ctx context.Context, period string) (domain.Metrics, error)
}

type BehaviorAnalyzer interface {
	SegmentUsers(ctx context.Context, activity []domain.UserRecord) (domain.Segments, error)
	PredictChurn(ctx context.Context, users []domain.UserRecord) ([]domain.ChurnRiskScore, error)
	AnalyzePriceSensitivity(ctx context.Context, usage domain.UsageData) (domain.SensitivityData, error)
	HealthCheck(ctx context.Context) (bool, error)
}

type PricingStrategy interface {
	ApplyDiscount(ctx context.Context, userID string, percent int) error
	UpdateTieredPricing(ctx context.Context, sensitivity domain.SensitivityData) error
	IsValid(ctx context.Context) (bool, error)
	GetPricingMetrics(ctx context.Context) (domain.Metrics, error)
}

// Auditor receives a record for every action an operation takes. Failures are
// logged and never abort the operation.
type Auditor interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, domain.AuditRecord) error { return nil }

type Option func(*GrowthOrchestrator)

func WithTemplateSelector(sel TemplateSelector) Option {
	return func(o *GrowthOrchestrator) {
		if sel != nil {
			o.templates = sel
		}
	}
}

func WithInterventionPolicy(p InterventionPolicy) Option {
	return func(o *GrowthOrchestrator) {
		if p != nil {
			o.interventions = p
		}
	}
}

func WithAuditor(a Auditor) Option {
	return func(o *GrowthOrchestrator) {
		if a != nil {
			o.auditor = a
		}
	}
}

// WithClock overrides the time source used for metrics timestamps and audit records.
func WithClock(now func() time.Time) Option {
	return func(o *GrowthOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// GrowthOrchestrator sequences the signal source, behavior analyzer and
// pricing strategy into the growth operations. It holds no state between
// invocations beyond its collaborator handles.
type GrowthOrchestrator struct {
	signals  SignalSource
	analyzer BehaviorAnalyzer
	pricing  PricingStrategy
	logger   *slog.Logger

	templates     TemplateSelector
	interventions InterventionPolicy
	auditor       Auditor
	now           func() time.Time
}

func NewGrowthOrchestrator(s SignalSource, a BehaviorAnalyzer, p PricingStrategy, logger *slog.Logger, opts ...Option) (*GrowthOrchestrator, error) {
	if s == nil {
		return nil, errors.New("usecase: signal source must not be nil")
	}
	if a == nil {
		return nil, errors.New("usecase: behavior analyzer must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: pricing strategy must not be nil")
	}
	if logger == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	policy, err := NewWeightedInterventionPolicy(0.5, NewSeed())
	if err != nil {
		return nil, err
	}
	o := &GrowthOrchestrator{
		signals:       s,
		analyzer:      a,
		pricing:       p,
		logger:        logger,
		templates:     NewRandomTemplateSelector(NewSeed()),
		interventions: policy,
		auditor:       noopAuditor{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunCampaignDispatch segments current activity and triggers one campaign per
// non-empty segment that has a template. Segments are visited in label order.
func (o *GrowthOrchestrator) RunCampaignDispatch(ctx context.Context) error {
	log := o.opLogger(ctx, OpCampaignDispatch)

	activity, err := o.signals.FetchUserActivity(ctx)
	if err != nil {
		return o.fail(log, OpCampaignDispatch, "fetch_user_activity", err)
	}
	segments, err := o.analyzer.SegmentUsers(ctx, activity)
	if err != nil {
		return o.fail(log, OpCampaignDispatch, "segment_users", err)
	}

	labels := make([]string, 0, len(segments))
	for label := range segments {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	dispatched := 0
	for _, label := range labels {
		users := segments[label]
		if len(users) == 0 {
			continue
		}
		tmpl, ok := o.selectTemplate(ctx, log, label)
		if !ok {
			continue
		}
		if err := o.signals.TriggerCampaign(ctx, users, tmpl); err != nil {
			return o.fail(log.With("segment", label, "campaign_id", tmpl.ID), OpCampaignDispatch, "trigger_campaign", err)
		}
		dispatched += len(users)
		log.Info("triggered campaign", "segment", label, "campaign_id", tmpl.ID, "template_id", tmpl.TemplateID, "users", len(users))
		o.audit(ctx, log, domain.AuditRecord{
			Operation: OpCampaignDispatch,
			Action:    "campaign_triggered",
			Segment:   label,
			Count:     len(users),
			Detail:    tmpl.ID,
		})
	}

	log.Info("campaign dispatch complete", "segments", len(segments), "users_dispatched", dispatched)
	return nil
}

// RunRetention applies one intervention to every inactive user whose churn
// risk is strictly above ChurnRiskThreshold.
func (o *GrowthOrchestrator) RunRetention(ctx context.Context) error {
	log := o.opLogger(ctx, OpRetention)

	inactive, err := o.signals.FetchInactiveUsers(ctx)
	if err != nil {
		return o.fail(log, OpRetention, "fetch_inactive_users", err)
	}
	scores, err := o.analyzer.PredictChurn(ctx, inactive)
	if err != nil {
		return o.fail(log, OpRetention, "predict_churn", err)
	}

	atRisk := SelectAtRisk(scores)
	for _, score := range atRisk {
		user := score.User
		decision := o.chooseIntervention(ctx, log, user)

		switch decision.Kind {
		case domain.InterventionDiscount:
			percent := decision.DiscountPercent
			if percent <= 0 {
				percent = RetentionDiscountPercent
			}
			if err := o.pricing.ApplyDiscount(ctx, user.ID, percent); err != nil {
				return o.fail(log.With("user_id", user.ID), OpRetention, "apply_discount", err)
			}
		case domain.InterventionReEngagementEmail:
			if err := o.signals.SendEmail(ctx, user.Email, domain.EmailTemplateReEngagement); err != nil {
				return o.fail(log.With("user_id", user.ID), OpRetention, "send_email", err)
			}
		default:
			log.Warn("no intervention applied", "user_id", user.ID, "risk", score.Risk)
			continue
		}

		log.Info("applied intervention", "user_id", user.ID, "risk", score.Risk, "intervention", decision.Kind.String())
		o.audit(ctx, log, domain.AuditRecord{
			Operation: OpRetention,
			Action:    "intervention_applied",
			UserID:    user.ID,
			Detail:    decision.Kind.String(),
		})
	}

	log.Info("retention complete", "inactive_users", len(inactive), "at_risk", len(atRisk))
	return nil
}

// RunPricingOptimization recomputes tiered pricing from current usage. The
// pricing strategy's table is the only state it mutates.
func (o *GrowthOrchestrator) RunPricingOptimization(ctx context.Context) error {
	log := o.opLogger(ctx, OpPricingOptimization)

	usage, err := o.signals.FetchUsageStats(ctx)
	if err != nil {
		return o.fail(log, OpPricingOptimization, "fetch_usage_stats", err)
	}
	sensitivity, err := o.analyzer.AnalyzePriceSensitivity(ctx, usage)
	if err != nil {
		return o.fail(log, OpPricingOptimization, "analyze_price_sensitivity", err)
	}
	if err := o.pricing.UpdateTieredPricing(ctx, sensitivity); err != nil {
		return o.fail(log, OpPricingOptimization, "update_tiered_pricing", err)
	}

	log.Info("updated pricing tiers", "usage_records", len(usage.Stats), "tiers", len(sensitivity.Tiers))
	o.audit(ctx, log, domain.AuditRecord{
		Operation: OpPricingOptimization,
		Action:    "pricing_updated",
		Count:     len(sensitivity.Tiers),
	})
	return nil
}

// RunHealthCheck probes all three collaborators. A probe that errors fails the
// whole check; a partial map is never returned.
func (o *GrowthOrchestrator) RunHealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	log := o.opLogger(ctx, OpHealthCheck)

	var dataOK, pricingOK, analysisOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := o.signals.HealthCheck(gctx)
		if err != nil {
			return newError(ErrorCollaborator, OpHealthCheck, "signal_source_health", err)
		}
		dataOK = ok
		return nil
	})
	g.Go(func() error {
		ok, err := o.pricing.IsValid(gctx)
		if err != nil {
			return newError(ErrorCollaborator, OpHealthCheck, "pricing_strategy_valid", err)
		}
		pricingOK = ok
		return nil
	})
	g.Go(func() error {
		ok, err := o.analyzer.HealthCheck(gctx)
		if err != nil {
			return newError(ErrorCollaborator, OpHealthCheck, "behavior_analyzer_health", err)
		}
		analysisOK = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("health check failed", "err", err)
		return nil, err
	}

	return domain.HealthStatus{
		domain.SubsystemDataCollection:  dataOK,
		domain.SubsystemPricingStrategy: pricingOK,
		domain.SubsystemUserAnalysis:    analysisOK,
	}, nil
}

// ReportMetrics composes collaborator metrics for period (default "daily")
// with a UTC RFC 3339 timestamp. Payloads are passed through verbatim.
func (o *GrowthOrchestrator) ReportMetrics(ctx context.Context, period string) (domain.MetricsSnapshot, error) {
	if period == "" {
		period = domain.DefaultMetricsPeriod
	}
	log := o.opLogger(ctx, OpMetricsReport).With("period", period)

	marketing, err := o.signals.FetchMarketingMetrics(ctx, period)
	if err != nil {
		return domain.MetricsSnapshot{}, o.fail(log, OpMetricsReport, "fetch_marketing_metrics", err)
	}
	retention, err := o.signals.FetchRetentionMetrics(ctx, period)
	if err != nil {
		return domain.MetricsSnapshot{}, o.fail(log, OpMetricsReport, "fetch_retention_metrics", err)
	}
	pricing, err := o.pricing.GetPricingMetrics(ctx)
	if err != nil {
		return domain.MetricsSnapshot{}, o.fail(log, OpMetricsReport, "get_pricing_metrics", err)
	}

	return domain.MetricsSnapshot{
		Period:    period,
		Marketing: marketing,
		Retention: retention,
		Pricing:   pricing,
		Timestamp: o.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// SelectAtRisk keeps the scores strictly above ChurnRiskThreshold, preserving order.
func SelectAtRisk(scores []domain.ChurnRiskScore) []domain.ChurnRiskScore {
	out := make([]domain.ChurnRiskScore, 0, len(scores))
	for _, s := range scores {
		if s.Risk > ChurnRiskThreshold {
			out = append(out, s)
		}
	}
	return out
}

func (o *GrowthOrchestrator) selectTemplate(ctx context.Context, log *slog.Logger, segment string) (domain.CampaignTemplate, bool) {
	tmpl, ok, err := o.templates.SelectCampaignTemplate(ctx, segment)
	if err != nil {
		log.Warn("campaign template lookup failed, skipping segment", "segment", segment, "err", err)
		return domain.CampaignTemplate{}, false
	}
	if !ok {
		log.Debug("no campaign template for segment", "segment", segment)
		return domain.CampaignTemplate{}, false
	}
	return tmpl, true
}

func (o *GrowthOrchestrator) chooseIntervention(ctx context.Context, log *slog.Logger, user domain.UserRecord) domain.InterventionDecision {
	decision, err := o.interventions.ChooseIntervention(ctx, user)
	if err != nil {
		log.Warn("intervention choice failed", "user_id", user.ID, "err", err)
		return domain.InterventionDecision{Kind: domain.InterventionNone}
	}
	return decision
}

func (o *GrowthOrchestrator) audit(ctx context.Context, log *slog.Logger, rec domain.AuditRecord) {
	rec.RunID = RunIDFromContext(ctx)
	rec.OccurredAt = o.now().UTC()
	if err := o.auditor.Record(ctx, rec); err != nil {
		log.Warn("audit record not published", "action", rec.Action, "err", err)
	}
}

func (o *GrowthOrchestrator) opLogger(ctx context.Context, op string) *slog.Logger {
	log := o.logger.With("operation", op)
	if runID := RunIDFromContext(ctx); runID != "" {
		log = log.With("run_id", runID)
	}
	return log
}

// fail logs a collaborator failure with its operation context and wraps it
// without altering the original error chain.
func (o *GrowthOrchestrator) fail(log *slog.Logger, op, reason string, err error) error {
	log.Error("operation failed", "step", reason, "err", err)
	return newError(ErrorCollaborator, op, reason, err)
}
