package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"growth-engine/internal/domain"
)

const (
	// DefaultMaxAdjustment bounds a single recomputation to ±20% of base price.
	DefaultMaxAdjustment = 0.2

	priceFloorRatio   = 0.5
	priceCeilingRatio = 1.5
)

// ErrInvalidTable is returned when a recomputed table fails validation. The
// stored table is left untouched.
var ErrInvalidTable = errors.New("pricing: invalid pricing table")

// TableStore persists the pricing table. *repository.Client satisfies it.
type TableStore interface {
	LoadTable(ctx context.Context) (domain.PricingTable, error)
	SaveTiers(ctx context.Context, tiers []domain.PriceTier, expectedVersion int64) error
	RecordDiscount(ctx context.Context, userID string, percent int) error
}

// DefaultTiers seeds the table the first time pricing is optimized.
func DefaultTiers() []domain.PriceTier {
	return []domain.PriceTier{
		{Name: "starter", MinUnits: 0, BasePrice: 19, Price: 19},
		{Name: "pro", MinUnits: 1000, BasePrice: 49, Price: 49},
		{Name: "enterprise", MinUnits: 10000, BasePrice: 199, Price: 199},
	}
}

// Strategy recomputes tier prices from price sensitivity and records
// retention discounts.
type Strategy struct {
	store         TableStore
	seed          []domain.PriceTier
	maxAdjustment float64
}

type Option func(*Strategy)

func WithSeedTiers(tiers []domain.PriceTier) Option {
	return func(s *Strategy) {
		if len(tiers) > 0 {
			s.seed = append([]domain.PriceTier(nil), tiers...)
		}
	}
}

func WithMaxAdjustment(adj float64) Option {
	return func(s *Strategy) {
		if adj > 0 && adj <= priceCeilingRatio-1 {
			s.maxAdjustment = adj
		}
	}
}

func New(store TableStore, opts ...Option) (*Strategy, error) {
	if store == nil {
		return nil, errors.New("pricing: store must not be nil")
	}
	s := &Strategy{
		store:         store,
		seed:          DefaultTiers(),
		maxAdjustment: DefaultMaxAdjustment,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := Validate(s.seed); err != nil {
		return nil, fmt.Errorf("pricing: seed tiers: %w", err)
	}
	return s, nil
}

func (s *Strategy) ApplyDiscount(ctx context.Context, userID string, percent int) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("pricing: apply discount: user id is required")
	}
	if percent <= 0 || percent > 100 {
		return fmt.Errorf("pricing: apply discount: percent %d out of range", percent)
	}
	if err := s.store.RecordDiscount(ctx, userID, percent); err != nil {
		return fmt.Errorf("pricing: apply discount: %w", err)
	}
	return nil
}

// UpdateTieredPricing moves each scored tier's price away from its base: tiers
// with low sensitivity go up, highly sensitive tiers go down. The whole table
// is validated and then written in one versioned transaction. An empty table
// is always seeded, even when no price moves.
func (s *Strategy) UpdateTieredPricing(ctx context.Context, sensitivity domain.SensitivityData) error {
	table, err := s.store.LoadTable(ctx)
	if err != nil {
		return fmt.Errorf("pricing: load table: %w", err)
	}
	tiers := table.Tiers
	if len(tiers) == 0 {
		tiers = append([]domain.PriceTier(nil), s.seed...)
	}

	next, changed := Recompute(tiers, sensitivity, s.maxAdjustment)
	if changed == 0 && len(table.Tiers) > 0 {
		return nil
	}
	if err := Validate(next); err != nil {
		return fmt.Errorf("pricing: update tiered pricing: %w", err)
	}
	if err := s.store.SaveTiers(ctx, next, table.Version); err != nil {
		return fmt.Errorf("pricing: save tiers: %w", err)
	}
	return nil
}

// IsValid reports whether the stored table is non-empty and consistent.
func (s *Strategy) IsValid(ctx context.Context) (bool, error) {
	table, err := s.store.LoadTable(ctx)
	if err != nil {
		return false, fmt.Errorf("pricing: load table: %w", err)
	}
	if len(table.Tiers) == 0 {
		return false, nil
	}
	return Validate(table.Tiers) == nil, nil
}

func (s *Strategy) GetPricingMetrics(ctx context.Context) (domain.Metrics, error) {
	table, err := s.store.LoadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("pricing: load table: %w", err)
	}

	prices := make(map[string]float64, len(table.Tiers))
	var total float64
	for _, t := range table.Tiers {
		prices[t.Name] = t.Price
		total += t.Price
	}
	avg := 0.0
	if len(table.Tiers) > 0 {
		avg = roundCents(total / float64(len(table.Tiers)))
	}
	updatedAt := ""
	if !table.UpdatedAt.IsZero() {
		updatedAt = table.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return domain.Metrics{
		"version":           table.Version,
		"tier_count":        len(table.Tiers),
		"average_price":     avg,
		"tiers":             prices,
		"discounts_applied": table.DiscountsApplied,
		"updated_at":        updatedAt,
	}, nil
}

// Recompute returns a copy of tiers with scored tiers repriced and the number
// of tiers whose price changed. Scores are clamped to [0, 1].
func Recompute(tiers []domain.PriceTier, sensitivity domain.SensitivityData, maxAdjustment float64) ([]domain.PriceTier, int) {
	scores := make(map[string]float64, len(sensitivity.Tiers))
	for _, ts := range sensitivity.Tiers {
		scores[ts.Tier] = math.Min(1, math.Max(0, ts.Score))
	}

	out := make([]domain.PriceTier, len(tiers))
	changed := 0
	for i, t := range tiers {
		out[i] = t
		score, ok := scores[t.Name]
		if !ok {
			continue
		}
		price := t.BasePrice * (1 + maxAdjustment*(0.5-score)*2)
		price = math.Min(t.BasePrice*priceCeilingRatio, math.Max(t.BasePrice*priceFloorRatio, price))
		price = roundCents(price)
		if price != t.Price {
			out[i].Price = price
			changed++
		}
	}
	return out, changed
}

// Validate checks that tier names are unique, prices are positive, and a
// tier with more included units never costs less than a smaller one.
func Validate(tiers []domain.PriceTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidTable)
	}
	sorted := append([]domain.PriceTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinUnits < sorted[j].MinUnits })

	seen := make(map[string]bool, len(sorted))
	for i, t := range sorted {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidTable, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate tier %q", ErrInvalidTable, t.Name)
		}
		seen[t.Name] = true
		if t.BasePrice <= 0 || t.Price <= 0 {
			return fmt.Errorf("%w: tier %q has non-positive price", ErrInvalidTable, t.Name)
		}
		if i > 0 && t.Price < sorted[i-1].Price {
			return fmt.Errorf("%w: tier %q priced below %q", ErrInvalidTable, t.Name, sorted[i-1].Name)
		}
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
