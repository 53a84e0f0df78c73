package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"growth-engine/internal/domain"
)

// RetentionDiscountPercent is the fixed discount granted by a discount intervention.
const RetentionDiscountPercent = 20

// TemplateSelector picks the campaign template for a segment. A false result
// means no template is available and the segment is skipped. An error is
// treated the same way but logged at warn level.
type TemplateSelector interface {
	SelectCampaignTemplate(ctx context.Context, segment string) (domain.CampaignTemplate, bool, error)
}

// InterventionPolicy chooses the retention action for an at-risk user. An
// error degrades the decision to InterventionNone.
type InterventionPolicy interface {
	ChooseIntervention(ctx context.Context, user domain.UserRecord) (domain.InterventionDecision, error)
}

// NewSeed returns a random seed for the default policies.
func NewSeed() uint64 {
	return rand.Uint64()
}

// RandomTemplateSelector builds a template per segment with a randomized
// variant id, giving A/B style variety across runs. A fixed seed makes the
// sequence reproducible.
type RandomTemplateSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomTemplateSelector(seed uint64) *RandomTemplateSelector {
	return &RandomTemplateSelector{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandomTemplateSelector) SelectCampaignTemplate(_ context.Context, segment string) (domain.CampaignTemplate, bool, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return domain.CampaignTemplate{}, false, errors.New("usecase: segment label must not be empty")
	}

	s.mu.Lock()
	variant := s.rng.IntN(100)
	templateID := s.rng.IntN(1000)
	s.mu.Unlock()

	return domain.CampaignTemplate{
		ID:         fmt.Sprintf("campaign_%s_%d", segment, variant),
		TemplateID: templateID,
		Subject:    "Special Offer for " + segment,
		Body:       "Enjoy exclusive discounts!",
	}, true, nil
}

// WeightedInterventionPolicy picks a discount with probability DiscountWeight
// and a re-engagement email otherwise. The weight is kept strictly between 0
// and 1 so both outcomes stay reachable.
type WeightedInterventionPolicy struct {
	discountWeight float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeightedInterventionPolicy(discountWeight float64, seed uint64) (*WeightedInterventionPolicy, error) {
	if discountWeight <= 0 || discountWeight >= 1 {
		return nil, fmt.Errorf("usecase: discount weight %v must be between 0 and 1 exclusive", discountWeight)
	}
	return &WeightedInterventionPolicy{
		discountWeight: discountWeight,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (p *WeightedInterventionPolicy) ChooseIntervention(_ context.Context, user domain.UserRecord) (domain.InterventionDecision, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.InterventionDecision{Kind: domain.InterventionNone}, errors.New("usecase: user id must not be empty")
	}

	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()

	if roll < p.discountWeight {
		return domain.InterventionDecision{Kind: domain.InterventionDiscount, DiscountPercent: RetentionDiscountPercent}, nil
	}
	return domain.InterventionDecision{Kind: domain.InterventionReEngagementEmail}, nil
}
