package domain

// Outreach channels a scenario can target.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelAppPush = "app_push"
)

// Scenario describes a hypothetical campaign change against a segment.
// Levels are fractions in [0,1]; touches per week may exceed 1.
type Scenario struct {
	Persona              string  `json:"persona,omitempty"`
	Filter               string  `json:"filter,omitempty"`
	CurrentChannel       string  `json:"current_channel"`
	NewChannel           string  `json:"new_channel"`
	TouchesPerWeek       float64 `json:"touches_per_week"`
	IncentiveLevel       float64 `json:"incentive_level"`
	PersonalizationLevel float64 `json:"personalization_level"`
}

// SimulationResult is the simulator's verdict on one scenario. The
// four indices are clamped to [0,1]; they rank scenarios against each
// other and are not calibrated probabilities.
type SimulationResult struct {
	EngagementIndex float64  `json:"engagement_index"`
	ConversionProb  float64  `json:"conversion_prob"`
	FatigueRisk     float64  `json:"fatigue_risk"`
	UnsubRisk       float64  `json:"unsub_risk"`
	Notes           []string `json:"notes"`
	SegmentSize     int      `json:"segment_size"`
}

// SweepRequest runs several scenario variants against one segment.
type SweepRequest struct {
	Persona   string     `json:"persona,omitempty"`
	Filter    string     `json:"filter,omitempty"`
	Scenarios []Scenario `json:"scenarios"`
}

// SweepOutcome pairs a sweep variant with its result. Outcomes keep
// the request order regardless of evaluation order.
type SweepOutcome struct {
	Scenario Scenario         `json:"scenario"`
	Result   SimulationResult `json:"result"`
}
