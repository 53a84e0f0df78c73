package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"growth-engine/internal/config"
	"growth-engine/internal/events"
	"growth-engine/internal/integrations/analytics"
	"growth-engine/internal/integrations/apiclient"
	"growth-engine/internal/integrations/paramstore"
	"growth-engine/internal/integrations/signals"
	"growth-engine/internal/lock"
	"growth-engine/internal/pricing"
	"growth-engine/internal/repository"
	"growth-engine/internal/runner"
	"growth-engine/internal/usecase"
)

const lockPrefix = "growth:lock:"

// App holds the wired runner and the resources to release on shutdown.
type App struct {
	Runner  *runner.Runner
	closers []io.Closer
}

// Close releases the Kafka writer and Redis client, if any.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bootstrap loads the AWS configuration and builds the application.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load aws config: %w", err)
	}
	return Build(cfg, awsCfg, logger)
}

// Build constructs every collaborator exactly once. No network calls are made
// here; credentials are fetched on first use.
func Build(cfg config.Config, awsCfg aws.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("app: logger must not be nil")
	}
	a := &App{}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return fail(fmt.Errorf("app: paramstore: %w", err))
	}

	signalsAPI, err := apiclient.New("signals", cfg.SignalsBaseURL, params, cfg.SignalsTokenParam(), apiclient.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}
	signalSource, err := signals.New(signalsAPI, signals.WithInactiveDays(cfg.InactiveDays))
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	analyticsAPI, err := apiclient.New("analytics", cfg.AnalyticsBaseURL, params, cfg.AnalyticsTokenParam(), apiclient.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}
	analyzer, err := analytics.New(analyticsAPI)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.PricingTable)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}
	strategy, err := pricing.New(store)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	seed := cfg.PolicySeed
	if seed == 0 {
		seed = usecase.NewSeed()
	}
	policy, err := usecase.NewWeightedInterventionPolicy(cfg.DiscountWeight, seed+1)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	var auditor interface {
		usecase.Auditor
		io.Closer
	} = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		auditor = pub
	}
	a.closers = append(a.closers, auditor)

	var locker lock.Locker = lock.Noop{}
	if cfg.RedisURL != "" {
		client, err := lock.Connect(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		a.closers = append(a.closers, client)
		rl, err := lock.NewRedisLocker(client, lockPrefix)
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		locker = rl
	}

	orch, err := usecase.NewGrowthOrchestrator(signalSource, analyzer, strategy, logger,
		usecase.WithTemplateSelector(usecase.NewRandomTemplateSelector(seed)),
		usecase.WithInterventionPolicy(policy),
		usecase.WithAuditor(auditor),
	)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	a.Runner, err = runner.New(orch, logger,
		runner.WithLocker(locker),
		runner.WithAuditor(auditor),
		runner.WithLockTTL(cfg.LockTTL),
	)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	logger.Info("growth engine initialized",
		"kafka_audit", len(cfg.KafkaBrokers) > 0,
		"redis_lock", cfg.RedisURL != "",
		"inactive_days", cfg.InactiveDays,
	)
	return a, nil
}
