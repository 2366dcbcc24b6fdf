package simulate

import (
	"math"
	"reflect"
	"testing"

	"github.com/opensegment/magpie/internal/domain"
)

func balancedSegment() []domain.FeatureVector {
	// spend mean 200 vs p95 400, count mean 3 vs p95 6: both norms 0.5
	return []domain.FeatureVector{
		{CustomerID: "a", Spend90: 0, PurchaseCount90: 0, DiscountShare90: 0.2, PremiumShare90: 0.3, RecencyDays: 30},
		{CustomerID: "b", Spend90: 0, PurchaseCount90: 0, DiscountShare90: 0.2, PremiumShare90: 0.3, RecencyDays: 30},
		{CustomerID: "c", Spend90: 400, PurchaseCount90: 6, DiscountShare90: 0.2, PremiumShare90: 0.3, RecencyDays: 30},
		{CustomerID: "d", Spend90: 400, PurchaseCount90: 6, DiscountShare90: 0.2, PremiumShare90: 0.3, RecencyDays: 30},
	}
}

func TestRunWorkedExample(t *testing.T) {
	res := Run(balancedSegment(), domain.Scenario{
		CurrentChannel: domain.ChannelEmail,
		NewChannel:     domain.ChannelEmail,
		TouchesPerWeek: 2,
	})

	// base 0.635, neutral channel and cadence, boosts 0.05 + 0.04
	if math.Abs(res.EngagementIndex-0.725) > 1e-6 {
		t.Errorf("expected engagement 0.725, got %v", res.EngagementIndex)
	}
	if math.Abs(res.ConversionProb-0.278) > 1e-6 {
		t.Errorf("expected conversion 0.278, got %v", res.ConversionProb)
	}
	if math.Abs(res.FatigueRisk-0.1365) > 1e-6 {
		t.Errorf("expected fatigue 0.1365, got %v", res.FatigueRisk)
	}
	if math.Abs(res.UnsubRisk-0.127775) > 1e-6 {
		t.Errorf("expected unsub 0.127775, got %v", res.UnsubRisk)
	}
	if res.SegmentSize != 4 {
		t.Errorf("expected segment size 4, got %d", res.SegmentSize)
	}
	if len(res.Notes) != 1 || res.Notes[0] != noteBalanced {
		t.Errorf("expected balanced note, got %v", res.Notes)
	}
}

func TestRunEmptySegment(t *testing.T) {
	res := Run(nil, domain.Scenario{
		CurrentChannel: domain.ChannelEmail,
		NewChannel:     domain.ChannelSMS,
		TouchesPerWeek: 5,
		IncentiveLevel: 1,
	})

	if res.EngagementIndex != 0 || res.ConversionProb != 0 || res.FatigueRisk != 0 || res.UnsubRisk != 0 {
		t.Errorf("expected all-zero indices, got %+v", res)
	}
	if res.SegmentSize != 0 {
		t.Errorf("expected segment size 0, got %d", res.SegmentSize)
	}
	if len(res.Notes) != 1 || res.Notes[0] != noteEmptySegment {
		t.Errorf("expected empty-segment note, got %v", res.Notes)
	}
}

func TestRunIndicesStayBounded(t *testing.T) {
	segments := [][]domain.FeatureVector{
		balancedSegment(),
		{{CustomerID: "z"}}, // all-zero features
		{
			{CustomerID: "w", Spend90: 10000, PurchaseCount90: 80, DiscountShare90: 1, PremiumShare90: 1, RecencyDays: 999},
		},
	}
	scenarios := []domain.Scenario{
		{CurrentChannel: "email", NewChannel: "sms", TouchesPerWeek: 0, IncentiveLevel: 0, PersonalizationLevel: 0},
		{CurrentChannel: "sms", NewChannel: "email", TouchesPerWeek: 10, IncentiveLevel: 1, PersonalizationLevel: 1},
		{CurrentChannel: "app_push", NewChannel: "app_push", TouchesPerWeek: 3, IncentiveLevel: 0.5, PersonalizationLevel: 0.5},
		{CurrentChannel: "carrier_pigeon", NewChannel: "carrier_pigeon", TouchesPerWeek: 1, IncentiveLevel: 1, PersonalizationLevel: 0},
	}

	for si, seg := range segments {
		for ci, sc := range scenarios {
			res := Run(seg, sc)
			for name, v := range map[string]float64{
				"engagement": res.EngagementIndex,
				"conversion": res.ConversionProb,
				"fatigue":    res.FatigueRisk,
				"unsub":      res.UnsubRisk,
			} {
				if v < 0 || v > 1 {
					t.Errorf("segment %d scenario %d: %s out of range: %v", si, ci, name, v)
				}
			}
			if len(res.Notes) == 0 {
				t.Errorf("segment %d scenario %d: expected at least one note", si, ci)
			}
		}
	}
}

func TestRunChannelShift(t *testing.T) {
	seg := balancedSegment()
	email := Run(seg, domain.Scenario{CurrentChannel: "email", NewChannel: "email", TouchesPerWeek: 1})
	sms := Run(seg, domain.Scenario{CurrentChannel: "email", NewChannel: "sms", TouchesPerWeek: 1, PersonalizationLevel: 0.6})

	if sms.EngagementIndex <= email.EngagementIndex {
		t.Errorf("expected sms shift to lift engagement: email=%v sms=%v", email.EngagementIndex, sms.EngagementIndex)
	}
	if sms.FatigueRisk <= email.FatigueRisk {
		t.Errorf("expected sms shift to raise fatigue: email=%v sms=%v", email.FatigueRisk, sms.FatigueRisk)
	}
	if sms.UnsubRisk <= email.UnsubRisk {
		t.Errorf("expected sms shift to raise unsub risk: email=%v sms=%v", email.UnsubRisk, sms.UnsubRisk)
	}
}

func TestRunNotesOrder(t *testing.T) {
	// Premium-heavy segment so the incentive note can trigger.
	seg := []domain.FeatureVector{
		{CustomerID: "a", Spend90: 100, PurchaseCount90: 4, PremiumShare90: 0.8, RecencyDays: 10},
		{CustomerID: "b", Spend90: 120, PurchaseCount90: 5, PremiumShare90: 0.7, RecencyDays: 12},
	}
	res := Run(seg, domain.Scenario{
		CurrentChannel:       "email",
		NewChannel:           "sms",
		TouchesPerWeek:       4,
		IncentiveLevel:       0.8,
		PersonalizationLevel: 0.2,
	})

	want := []string{noteHighCadence, noteSMSLowPersonal, noteHeavyIncentives}
	if !reflect.DeepEqual(res.Notes, want) {
		t.Errorf("expected notes %v, got %v", want, res.Notes)
	}
}

func TestRunHighPersonalizationNote(t *testing.T) {
	res := Run(balancedSegment(), domain.Scenario{
		CurrentChannel:       "email",
		NewChannel:           "email",
		TouchesPerWeek:       1,
		PersonalizationLevel: 0.9,
	})
	found := false
	for _, n := range res.Notes {
		if n == noteHighPersonal {
			found = true
		}
	}
	if !found {
		t.Errorf("expected high-personalization note, got %v", res.Notes)
	}
}

func TestRunDeterministic(t *testing.T) {
	sc := domain.Scenario{
		CurrentChannel:       "email",
		NewChannel:           "app_push",
		TouchesPerWeek:       2.5,
		IncentiveLevel:       0.4,
		PersonalizationLevel: 0.6,
	}
	a := Run(balancedSegment(), sc)
	b := Run(balancedSegment(), sc)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results, got %+v vs %+v", a, b)
	}
}

func TestFingerprint(t *testing.T) {
	a := domain.Scenario{Persona: "Deal Hunter", CurrentChannel: "email", NewChannel: "sms", TouchesPerWeek: 2}
	b := a
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("expected equal fingerprints for equal scenarios")
	}
	b.TouchesPerWeek = 3
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected different fingerprints for different cadence")
	}
	c := a
	c.Filter = "features.spend_90 > 100.0"
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("expected different fingerprints for different filters")
	}
}
