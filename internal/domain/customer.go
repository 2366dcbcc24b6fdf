package domain

import (
	"time"
)

// Customer is one row of the customer reference table.
// Reference data is immutable for the duration of a segmentation run.
type Customer struct {
	// Core identifier
	ID string `json:"customer_id"`

	// Lifecycle
	JoinDate time.Time `json:"join_date"`

	// Declared attributes
	LoyaltyTier   string `json:"loyalty_tier"`
	PrefChannel   string `json:"pref_channel"`
	LabelAffinity string `json:"label_affinity"` // content-preference tag, or "none"
}

// Event is one row of the append-only customer event log.
// Only the fields matching the event type are populated; the rest stay zero.
type Event struct {
	// Core identifiers
	ID         string `json:"event_id,omitempty"`
	CustomerID string `json:"customer_id"`

	// Temporal
	EventDT time.Time `json:"event_dt"`

	// Event type (e.g., "purchase", "review")
	EventType string `json:"event_type"`

	// Purchase fields
	NetPrice    float64 `json:"net_price,omitempty"`
	ListPrice   float64 `json:"list_price,omitempty"`
	DiscountPct float64 `json:"discount_pct,omitempty"`
	Category    string  `json:"category,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	Label       string  `json:"label,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`

	// Review fields
	RatingValue   float64 `json:"rating_value,omitempty"`
	PolarityScore float64 `json:"polarity_score,omitempty"`
}

// Known event types. The event log is an open set; aggregation ignores
// types it does not understand.
const (
	EventTypePurchase = "purchase"
	EventTypeReview   = "review"
)

// IsPurchase reports whether the event is a purchase.
func (e *Event) IsPurchase() bool {
	return e.EventType == EventTypePurchase
}

// IsReview reports whether the event is a review.
func (e *Event) IsReview() bool {
	return e.EventType == EventTypeReview
}

// AffinityNone is the declared label affinity of customers without a
// content preference. It never matches a product label.
const AffinityNone = "none"

// HasAffinity reports whether the customer declared a usable label affinity.
func (c *Customer) HasAffinity() bool {
	return c.LabelAffinity != "" && c.LabelAffinity != AffinityNone
}
