// Package simulate estimates the directional impact of a campaign
// change on a segment. The model is a fixed, explainable heuristic:
// outputs are relative indices for ranking scenarios, not calibrated
// probabilities, and identical inputs always produce identical output.
package simulate

import (
	"fmt"
	"math"

	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/features"
)

// eps keeps the baseline normalizations defined for all-zero segments.
const eps = 1e-9

// softCapTouches is the weekly cadence beyond which lift stops and
// fatigue starts accruing.
const softCapTouches = 2.5

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// channelMultiplier scales engagement relative to email. Unknown
// channels are treated as neutral.
func channelMultiplier(ch string) float64 {
	switch ch {
	case domain.ChannelSMS:
		return 1.15
	case domain.ChannelAppPush:
		return 1.10
	default:
		return 1.00
	}
}

// channelFatigue is the per-channel floor added to fatigue risk.
func channelFatigue(ch string) float64 {
	switch ch {
	case domain.ChannelSMS:
		return 0.10
	case domain.ChannelAppPush:
		return 0.06
	default:
		return 0.04
	}
}

// Advisory note copy, emitted in a fixed order.
const (
	noteHighCadence     = "High cadence increases fatigue risk; consider frequency caps."
	noteSMSLowPersonal  = "SMS without strong personalization can increase opt-outs."
	noteHeavyIncentives = "Heavy incentives may erode premium perception; consider value-add offers instead."
	noteHighPersonal    = "High personalization can offset fatigue and improve conversion efficiency."
	noteBalanced        = "Scenario looks balanced. Monitor opt-outs and repeat purchase rate."
	noteEmptySegment    = "No customers in segment."
)

// Run scores one scenario against a segment's feature vectors.
// An empty segment returns all-zero indices and a single note.
func Run(segment []domain.FeatureVector, sc domain.Scenario) domain.SimulationResult {
	if len(segment) == 0 {
		return domain.SimulationResult{Notes: []string{noteEmptySegment}}
	}

	n := float64(len(segment))
	spends := make([]float64, len(segment))
	counts := make([]float64, len(segment))
	var spendSum, countSum, discSum, premSum, recencySum float64
	for i := range segment {
		f := &segment[i]
		spends[i] = f.Spend90
		counts[i] = float64(f.PurchaseCount90)
		spendSum += f.Spend90
		countSum += float64(f.PurchaseCount90)
		discSum += f.DiscountShare90
		premSum += f.PremiumShare90
		recencySum += float64(f.RecencyDays)
	}

	// Segment baselines. Means are normalized by the segment's own p95
	// so a handful of heavy buyers does not saturate the index.
	spendNorm := (spendSum / n) / (features.Percentile(spends, 0.95) + eps)
	freqNorm := (countSum / n) / (features.Percentile(counts, 0.95) + eps)
	discNorm := discSum / n
	premNorm := premSum / n
	recency := recencySum / n

	baseEngagement := clamp01(0.25 + 0.35*freqNorm + 0.20*spendNorm + 0.10*(1-discNorm) + 0.10*premNorm)

	curMult := channelMultiplier(sc.CurrentChannel)
	newMult := channelMultiplier(sc.NewChannel)

	touches := sc.TouchesPerWeek
	cadenceLift := clamp01(0.85 + 0.12*math.Min(touches, softCapTouches))
	fatiguePenalty := clamp01(1.0 - 0.10*math.Max(0, touches-softCapTouches))

	// Incentives move deal-driven segments more than premium ones;
	// personalization pays off most for premium or recently active segments.
	incentiveBoost := clamp01(0.05 + 0.25*sc.IncentiveLevel*(0.7*discNorm+0.3*(1-premNorm)))
	personalizationBoost := clamp01(0.04 + 0.22*sc.PersonalizationLevel*(0.6*premNorm+0.4*clamp01(recency/120)))

	engagement := clamp01(baseEngagement*(newMult/curMult)*cadenceLift*fatiguePenalty + incentiveBoost + personalizationBoost)

	conversionBase := clamp01(0.06 + 0.22*spendNorm + 0.18*freqNorm + 0.06*premNorm)
	conversion := clamp01(conversionBase + 0.25*sc.IncentiveLevel*(0.6*discNorm+0.2) + 0.18*sc.PersonalizationLevel)

	fatigue := clamp01(0.10 + 0.18*math.Max(0, touches-2.0) + channelFatigue(sc.NewChannel))
	// Engaged segments tolerate slightly more contact.
	fatigue = clamp01(fatigue * (1.05 - 0.15*freqNorm))

	smsRisk := 0.01
	if sc.NewChannel == domain.ChannelSMS {
		smsRisk = 0.03
	}
	unsub := clamp01(0.02 + 0.35*fatigue + smsRisk + 0.05*(1-sc.PersonalizationLevel))

	var notes []string
	if touches > 3.0 {
		notes = append(notes, noteHighCadence)
	}
	if sc.NewChannel == domain.ChannelSMS && sc.PersonalizationLevel < 0.5 {
		notes = append(notes, noteSMSLowPersonal)
	}
	if sc.IncentiveLevel > 0.7 && premNorm > 0.5 {
		notes = append(notes, noteHeavyIncentives)
	}
	if sc.PersonalizationLevel > 0.7 {
		notes = append(notes, noteHighPersonal)
	}
	if len(notes) == 0 {
		notes = append(notes, noteBalanced)
	}

	return domain.SimulationResult{
		EngagementIndex: engagement,
		ConversionProb:  conversion,
		FatigueRisk:     fatigue,
		UnsubRisk:       unsub,
		Notes:           notes,
		SegmentSize:     len(segment),
	}
}

// Fingerprint identifies a scenario against a segment selection for
// result caching. Same selection and knobs, same fingerprint.
func Fingerprint(sc domain.Scenario) string {
	return fmt.Sprintf("sim:%s|%s|%s>%s|t=%.4f|i=%.4f|p=%.4f",
		sc.Persona, sc.Filter, sc.CurrentChannel, sc.NewChannel,
		sc.TouchesPerWeek, sc.IncentiveLevel, sc.PersonalizationLevel)
}
