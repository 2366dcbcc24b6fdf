// Package journeys holds the static persona playbooks and renders
// exportable strategy briefs from them.
package journeys

import (
	"github.com/opensegment/magpie/internal/domain"
)

// Catalog returns the built-in journey template for every persona, in
// cascade order. Templates are static content, not learned parameters.
func Catalog() []domain.JourneyTemplate {
	return []domain.JourneyTemplate{
		{
			Persona:           domain.PersonaLapsedWinback,
			PreferredChannels: []string{domain.ChannelEmail},
			CadenceGuidance:   "Max 1 touch per week; stop after 3 unanswered touches",
			CoreMotivation:    "A concrete reason to come back",
			PrimaryBarrier:    "Faded relevance and inbox fatigue",
			KPIs:              []string{"reactivation rate", "winback offer redemption", "opt-out rate"},
			Stages: domain.JourneyStages{
				Awareness:     "Re-introduce the brand with a what's-new digest tied to past purchases.",
				Consideration: "Show top-rated products in previously bought categories with social proof.",
				Conversion:    "Time-limited winback offer with free shipping.",
				Retention:     "Post-purchase check-in and a replenishment reminder at the category's natural cycle.",
				Advocacy:      "Invite to the loyalty program once a second purchase lands.",
			},
		},
		{
			Persona:           domain.PersonaPremiumPower,
			PreferredChannels: []string{domain.ChannelEmail, domain.ChannelAppPush},
			CadenceGuidance:   "2-3 touches per week tolerated when content is curated",
			CoreMotivation:    "Early access and premium curation",
			PrimaryBarrier:    "Generic discounting cheapens the relationship",
			KPIs:              []string{"avg order value", "premium share", "repeat purchase rate"},
			Stages: domain.JourneyStages{
				Awareness:     "Preview new premium lines before general release.",
				Consideration: "Editorial content and expert picks instead of price messaging.",
				Conversion:    "Early-access windows and curated bundles, not discounts.",
				Retention:     "VIP tier benefits and a satisfaction pulse after delivery.",
				Advocacy:      "Referral perks with premium positioning.",
			},
		},
		{
			Persona:           domain.PersonaBrandLoyalist,
			PreferredChannels: []string{domain.ChannelEmail, domain.ChannelAppPush},
			CadenceGuidance:   "Weekly brand digest; push notifications for restocks only",
			CoreMotivation:    "Consistency and identity with a favorite brand",
			PrimaryBarrier:    "Out-of-stocks push them to substitutes",
			KPIs:              []string{"top-brand share", "repeat purchase rate", "restock conversion"},
			Stages: domain.JourneyStages{
				Awareness:     "Announce brand news and line extensions first.",
				Consideration: "Highlight the full range of the favorite brand, including adjacent products.",
				Conversion:    "Restock alerts with one-tap reorder.",
				Retention:     "Brand-exclusive loyalty rewards and early replenishment nudges.",
				Advocacy:      "Feature their reviews of the brand and reward referrals.",
			},
		},
		{
			Persona:           domain.PersonaIngredientFocused,
			PreferredChannels: []string{domain.ChannelEmail},
			CadenceGuidance:   "1-2 content-led touches per week",
			CoreMotivation:    "Ingredient transparency and values alignment",
			PrimaryBarrier:    "Distrust of vague or unverified claims",
			KPIs:              []string{"label match rate", "content engagement", "certified-line conversion"},
			Stages: domain.JourneyStages{
				Awareness:     "Ingredient deep-dives and sourcing stories matching their declared affinity.",
				Consideration: "Certification details, full ingredient lists and third-party validation.",
				Conversion:    "Bundles within the matching label; sampling for new certified lines.",
				Retention:     "Notify when favorites are reformulated or newly certified.",
				Advocacy:      "Community spotlights and user-generated content around shared values.",
			},
		},
		{
			Persona:           domain.PersonaDealHunter,
			PreferredChannels: []string{domain.ChannelSMS, domain.ChannelEmail},
			CadenceGuidance:   "Spiky around promos; cap at 3 touches per week",
			CoreMotivation:    "Winning the deal",
			PrimaryBarrier:    "Full-price resistance",
			KPIs:              []string{"promo redemption", "discount share", "margin per order"},
			Stages: domain.JourneyStages{
				Awareness:     "Lead with clear savings and limited windows.",
				Consideration: "Price-drop alerts on browsed and carted items.",
				Conversion:    "Stacked offer with a visible countdown.",
				Retention:     "Member pricing and points toward the next reward.",
				Advocacy:      "Refer-a-friend with a mutual discount.",
			},
		},
		{
			Persona:           domain.PersonaCategoryExplorer,
			PreferredChannels: []string{domain.ChannelAppPush, domain.ChannelEmail},
			CadenceGuidance:   "2 touches per week rotating categories",
			CoreMotivation:    "Discovery and novelty",
			PrimaryBarrier:    "Choice overload",
			KPIs:              []string{"category diversity", "cross-category conversion", "browse-to-buy rate"},
			Stages: domain.JourneyStages{
				Awareness:     "New-arrival roundups across categories they have not tried.",
				Consideration: "Guided discovery quizzes and short editorial picks.",
				Conversion:    "Starter kits and cross-category bundles.",
				Retention:     "A fresh rotation each cycle so the catalog never feels static.",
				Advocacy:      "Shareable wishlists and discovery badges.",
			},
		},
		{
			Persona:           domain.PersonaReviewerResearcher,
			PreferredChannels: []string{domain.ChannelEmail},
			CadenceGuidance:   "Low cadence; trigger on post-purchase and new evidence",
			CoreMotivation:    "Making the objectively right choice",
			PrimaryBarrier:    "Insufficient proof",
			KPIs:              []string{"review submission rate", "rating trend", "return rate"},
			Stages: domain.JourneyStages{
				Awareness:     "Lead with aggregate ratings and expert test results.",
				Consideration: "Side-by-side comparisons and detailed spec sheets.",
				Conversion:    "Generous return policy stated plainly at checkout.",
				Retention:     "Ask for a review at the right moment and acknowledge it.",
				Advocacy:      "Elevate their reviews; early access to products seeking feedback.",
			},
		},
		{
			Persona:           domain.PersonaRoutineReplenisher,
			PreferredChannels: []string{domain.ChannelSMS, domain.ChannelAppPush},
			CadenceGuidance:   "Timed to the replenishment cycle, not the calendar",
			CoreMotivation:    "Never running out",
			PrimaryBarrier:    "Friction at reorder",
			KPIs:              []string{"time to next purchase", "subscription uptake", "reorder rate"},
			Stages: domain.JourneyStages{
				Awareness:     "Minimal; they already know the product.",
				Consideration: "Subscribe-and-save framing with clear per-unit math.",
				Conversion:    "One-tap reorder from the last basket.",
				Retention:     "Predictive reminders just before run-out; easy pause and skip.",
				Advocacy:      "Household referral offers on staples.",
			},
		},
		{
			Persona:           domain.PersonaCasualBrowser,
			PreferredChannels: []string{domain.ChannelEmail},
			CadenceGuidance:   "Max 1 touch per week",
			CoreMotivation:    "Occasional inspiration",
			PrimaryBarrier:    "Low engagement; easy to over-contact",
			KPIs:              []string{"open rate", "opt-out rate", "first-purchase conversion"},
			Stages: domain.JourneyStages{
				Awareness:     "Seasonal highlights and bestseller digests.",
				Consideration: "Low-commitment entry points like gift guides and trial sizes.",
				Conversion:    "First-purchase incentive with minimal conditions.",
				Retention:     "Quarterly check-in rather than weekly pressure.",
				Advocacy:      "Not a focus; avoid asking too early.",
			},
		},
	}
}

// Lookup returns the template for a persona label.
func Lookup(persona string) (*domain.JourneyTemplate, bool) {
	for _, tpl := range Catalog() {
		if tpl.Persona == persona {
			return &tpl, true
		}
	}
	return nil, false
}
