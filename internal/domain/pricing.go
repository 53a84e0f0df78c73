package domain

import "time"

// UsageData is the raw usage snapshot consumed by price sensitivity analysis.
type UsageData struct {
	Stats []UsageStat `json:"stats"`
}

type UsageStat struct {
	UserID       string  `json:"userId"`
	Tier         string  `json:"tier"`
	Units        int64   `json:"units"`
	Seats        int     `json:"seats"`
	MonthlySpend float64 `json:"monthlySpend"`
}

// SensitivityData is the analyzer's per-tier price sensitivity result.
type SensitivityData struct {
	Tiers []TierSensitivity `json:"tiers"`
}

// TierSensitivity scores how strongly a tier reacts to price, 0 (insensitive)
// to 1 (highly sensitive).
type TierSensitivity struct {
	Tier       string  `json:"tier"`
	Score      float64 `json:"score"`
	SampleSize int     `json:"sampleSize"`
}

// PriceTier is one row of the tiered pricing table.
type PriceTier struct {
	Name      string
	MinUnits  int64
	BasePrice float64
	Price     float64
}

// PricingTable is the persisted tier structure with its optimistic version.
type PricingTable struct {
	Tiers            []PriceTier
	Version          int64
	UpdatedAt        time.Time
	DiscountsApplied int64
}
