package domain

// Intervention is the retention action chosen for an at-risk user.
type Intervention int

const (
	InterventionNone Intervention = iota
	InterventionDiscount
	InterventionReEngagementEmail
)

func (i Intervention) String() string {
	switch i {
	case InterventionDiscount:
		return "discount"
	case InterventionReEngagementEmail:
		return "re-engagement_email"
	default:
		return "none"
	}
}

// InterventionDecision is exactly one decision per at-risk user per run.
// DiscountPercent is only meaningful for InterventionDiscount.
type InterventionDecision struct {
	Kind            Intervention
	DiscountPercent int
}
