package domain

import (
	"strings"
	"time"
)

// Persona labels, in cascade order. The first matching rule wins, so
// the order here is part of the contract.
const (
	PersonaLapsedWinback      = "Lapsed / Winback"
	PersonaPremiumPower       = "Premium Power Shopper"
	PersonaBrandLoyalist      = "Brand Loyalist"
	PersonaIngredientFocused  = "Ingredient-Conscious"
	PersonaDealHunter         = "Deal Hunter"
	PersonaCategoryExplorer   = "Category Explorer"
	PersonaReviewerResearcher = "Reviewer / Researcher"
	PersonaRoutineReplenisher = "Routine Replenisher"
	PersonaCasualBrowser      = "Casual Browser"
)

// AllPersonas returns every persona label in cascade order.
func AllPersonas() []string {
	return []string{
		PersonaLapsedWinback,
		PersonaPremiumPower,
		PersonaBrandLoyalist,
		PersonaIngredientFocused,
		PersonaDealHunter,
		PersonaCategoryExplorer,
		PersonaReviewerResearcher,
		PersonaRoutineReplenisher,
		PersonaCasualBrowser,
	}
}

// PersonaAssignment records the persona a run gave a customer.
type PersonaAssignment struct {
	CustomerID string    `json:"customer_id"`
	Persona    string    `json:"persona"`
	AssignedAt time.Time `json:"assigned_at,omitempty"`
}

// SegmentStats summarizes one persona segment for reporting.
type SegmentStats struct {
	Persona          string  `json:"persona"`
	Customers        int     `json:"customers"`
	AvgSpend90       float64 `json:"avg_spend_90"`
	AvgPurchases90   float64 `json:"avg_purchases_90"`
	AvgDiscountShare float64 `json:"avg_discount_share"`
	AvgPremiumShare  float64 `json:"avg_premium_share"`
	AvgRecencyDays   float64 `json:"avg_recency_days"`
}

// PersonaSlug turns a persona label into a URL-safe path segment
// ("Lapsed / Winback" -> "lapsed-winback").
func PersonaSlug(label string) string {
	s := strings.ToLower(label)
	s = strings.ReplaceAll(s, "/", " ")
	fields := strings.Fields(s)
	return strings.Join(fields, "-")
}

// PersonaFromSlug resolves a path segment back to a persona label.
// It accepts either the exact label or its slug form. Unknown values
// return ("", false).
func PersonaFromSlug(s string) (string, bool) {
	for _, p := range AllPersonas() {
		if s == p || s == PersonaSlug(p) {
			return p, true
		}
	}
	return "", false
}
