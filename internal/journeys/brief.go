package journeys

import (
	"fmt"
	"strings"

	"github.com/opensegment/magpie/internal/domain"
)

// BuildBrief renders a markdown strategy brief for one persona from its
// journey template and the segment's current statistics.
func BuildBrief(tpl *domain.JourneyTemplate, stats domain.SegmentStats) string {
	lines := []string{
		fmt.Sprintf("# Journey Strategy Brief - %s", tpl.Persona),
		"",
		"## Persona Summary",
		fmt.Sprintf("- Preferred channels: %s", strings.Join(tpl.PreferredChannels, ", ")),
		fmt.Sprintf("- Cadence guidance: %s", tpl.CadenceGuidance),
		fmt.Sprintf("- Core motivation: %s", tpl.CoreMotivation),
		fmt.Sprintf("- Primary barrier: %s", tpl.PrimaryBarrier),
		"",
		"## Segment Snapshot",
		fmt.Sprintf("- Customers in segment: %d", stats.Customers),
		fmt.Sprintf("- Avg spend (90d): $%.2f", stats.AvgSpend90),
		fmt.Sprintf("- Avg orders (90d): %.2f", stats.AvgPurchases90),
		fmt.Sprintf("- Avg discount share (90d): %.1f%%", stats.AvgDiscountShare*100),
		fmt.Sprintf("- Avg premium share (90d): %.1f%%", stats.AvgPremiumShare*100),
		"",
		"## Stage Strategy",
		fmt.Sprintf("- Awareness: %s", tpl.Stages.Awareness),
		fmt.Sprintf("- Consideration: %s", tpl.Stages.Consideration),
		fmt.Sprintf("- Conversion: %s", tpl.Stages.Conversion),
		fmt.Sprintf("- Retention: %s", tpl.Stages.Retention),
		fmt.Sprintf("- Advocacy: %s", tpl.Stages.Advocacy),
		"",
		"## KPIs to Watch",
		fmt.Sprintf("- %s", strings.Join(tpl.KPIs, ", ")),
		"",
		"## Compliance Notes",
		"- Respect opt-in per channel; use frequency caps to prevent fatigue; surface unsubscribe trends.",
		"",
	}
	return strings.Join(lines, "\n")
}
