package domain

// JourneyStages holds the recommended treatment per funnel stage.
type JourneyStages struct {
	Awareness     string `json:"awareness"`
	Consideration string `json:"consideration"`
	Conversion    string `json:"conversion"`
	Retention     string `json:"retention"`
	Advocacy      string `json:"advocacy"`
}

// JourneyTemplate is the static playbook for marketing to one persona.
type JourneyTemplate struct {
	Persona           string        `json:"persona"`
	PreferredChannels []string      `json:"preferred_channels"`
	CadenceGuidance   string        `json:"cadence_guidance"`
	CoreMotivation    string        `json:"core_motivation"`
	PrimaryBarrier    string        `json:"primary_barrier"`
	KPIs              []string      `json:"kpis"`
	Stages            JourneyStages `json:"stages"`
}
