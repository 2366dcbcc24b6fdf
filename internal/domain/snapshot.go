package domain

import "time"

// SegmentationSnapshot records one completed refresh run: the inputs
// it saw, the thresholds it derived, and how the population split.
type SegmentationSnapshot struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	CustomerCount int            `json:"customer_count"`
	EventCount    int            `json:"event_count"`
	WindowDays    int            `json:"window_days"`
	MaxEventDT    time.Time      `json:"max_event_dt"`
	Thresholds    Thresholds     `json:"thresholds"`
	PersonaCounts map[string]int `json:"persona_counts"`
	ElapsedMs     int64          `json:"elapsed_ms"`
}
