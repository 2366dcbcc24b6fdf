package domain

import "time"

// DefaultWindowDays is the trailing aggregation window, measured back
// from the dataset's most recent event timestamp.
const DefaultWindowDays = 90

// SentinelDays marks recency and tenure for customers with no usable
// history. It sorts after every real value.
const SentinelDays = 999

// FeatureVector is the per-customer aggregate computed from the event
// log. Every field is always populated; absence of history yields zeros
// and day sentinels, never nulls.
type FeatureVector struct {
	CustomerID string `json:"customer_id"`

	// Whole days, relative to the dataset's max event timestamp.
	RecencyDays int `json:"recency_days"`
	TenureDays  int `json:"tenure_days"`

	// Trailing-window purchase aggregates.
	PurchaseCount90     int     `json:"purchase_count_90"`
	Spend90             float64 `json:"spend_90"`
	AvgOrderValue90     float64 `json:"avg_order_value_90"`
	CategoryDiversity90 int     `json:"category_diversity_90"`
	DiscountShare90     float64 `json:"discount_share_90"`
	PremiumShare90      float64 `json:"premium_share_90"`
	LabelMatchRate90    float64 `json:"label_match_rate_90"`
	TopBrandShare90     float64 `json:"top_brand_share_90"`

	// All-history review aggregates.
	ReviewRate  float64 `json:"review_rate"`
	AvgRating   float64 `json:"avg_rating"`
	AvgPolarity float64 `json:"avg_polarity"`

	ComputedAt time.Time `json:"computed_at,omitempty"`
}

// Thresholds are the population-relative cut points a classification
// run uses. They are computed once per run from the full feature set
// and passed explicitly so a run is reproducible.
type Thresholds struct {
	SpendHi     float64 `json:"spend_hi"`
	FreqHi      float64 `json:"freq_hi"`
	DiscountHi  float64 `json:"discount_hi"`
	PremiumHi   float64 `json:"premium_hi"`
	DiversityHi float64 `json:"diversity_hi"`
	ReviewHi    float64 `json:"review_hi"`
	LoyalHi     float64 `json:"loyal_hi"`
}

// AsMap exposes the feature vector under its column names for
// expression filters.
func (f *FeatureVector) AsMap() map[string]any {
	return map[string]any{
		"customer_id":           f.CustomerID,
		"recency_days":          f.RecencyDays,
		"tenure_days":           f.TenureDays,
		"purchase_count_90":     f.PurchaseCount90,
		"spend_90":              f.Spend90,
		"avg_order_value_90":    f.AvgOrderValue90,
		"category_diversity_90": f.CategoryDiversity90,
		"discount_share_90":     f.DiscountShare90,
		"premium_share_90":      f.PremiumShare90,
		"label_match_rate_90":   f.LabelMatchRate90,
		"top_brand_share_90":    f.TopBrandShare90,
		"review_rate":           f.ReviewRate,
		"avg_rating":            f.AvgRating,
		"avg_polarity":          f.AvgPolarity,
	}
}

// AsMap exposes customer reference attributes for expression filters.
func (c *Customer) AsMap() map[string]any {
	return map[string]any{
		"customer_id":    c.ID,
		"join_date":      c.JoinDate.Format(time.RFC3339),
		"loyalty_tier":   c.LoyaltyTier,
		"pref_channel":   c.PrefChannel,
		"label_affinity": c.LabelAffinity,
	}
}
