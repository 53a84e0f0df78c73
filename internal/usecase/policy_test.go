package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"growth-engine/internal/domain"
)

func TestRandomTemplateSelector_BuildsTemplate(t *testing.T) {
	sel := NewRandomTemplateSelector(42)

	tmpl, ok, err := sel.SelectCampaignTemplate(context.Background(), "power_users")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(tmpl.ID, "campaign_power_users_"))
	require.GreaterOrEqual(t, tmpl.TemplateID, 0)
	require.Less(t, tmpl.TemplateID, 1000)
	require.Equal(t, "Special Offer for power_users", tmpl.Subject)
	require.Equal(t, "Enjoy exclusive discounts!", tmpl.Body)
}

func TestRandomTemplateSelector_SeedIsDeterministic(t *testing.T) {
	a := NewRandomTemplateSelector(7)
	b := NewRandomTemplateSelector(7)
	for i := 0; i < 5; i++ {
		ta, _, _ := a.SelectCampaignTemplate(context.Background(), "trial")
		tb, _, _ := b.SelectCampaignTemplate(context.Background(), "trial")
		require.Equal(t, ta, tb)
	}
}

func TestRandomTemplateSelector_EmptySegment(t *testing.T) {
	_, ok, err := NewRandomTemplateSelector(1).SelectCampaignTemplate(context.Background(), "  ")
	require.Error(t, err)
	require.False(t, ok)
}

func TestNewWeightedInterventionPolicy_RejectsDegenerateWeights(t *testing.T) {
	for _, w := range []float64{0, 1, -0.1, 1.5} {
		_, err := NewWeightedInterventionPolicy(w, 1)
		require.Error(t, err, "weight=%v", w)
	}
}

func TestWeightedInterventionPolicy_Distribution(t *testing.T) {
	p, err := NewWeightedInterventionPolicy(0.5, 99)
	require.NoError(t, err)

	counts := map[domain.Intervention]int{}
	for i := 0; i < 2000; i++ {
		d, err := p.ChooseIntervention(context.Background(), domain.UserRecord{ID: "u"})
		require.NoError(t, err)
		counts[d.Kind]++
		if d.Kind == domain.InterventionDiscount {
			require.Equal(t, RetentionDiscountPercent, d.DiscountPercent)
		}
	}
	require.Zero(t, counts[domain.InterventionNone])
	require.Greater(t, counts[domain.InterventionDiscount], 800)
	require.Greater(t, counts[domain.InterventionReEngagementEmail], 800)
}

func TestWeightedInterventionPolicy_MissingUserDegrades(t *testing.T) {
	p, err := NewWeightedInterventionPolicy(0.5, 1)
	require.NoError(t, err)

	d, err := p.ChooseIntervention(context.Background(), domain.UserRecord{})
	require.Error(t, err)
	require.Equal(t, domain.InterventionNone, d.Kind)
}

func TestInterventionString(t *testing.T) {
	require.Equal(t, "discount", domain.InterventionDiscount.String())
	require.Equal(t, "re-engagement_email", domain.InterventionReEngagementEmail.String())
	require.Equal(t, "none", domain.InterventionNone.String())
}
