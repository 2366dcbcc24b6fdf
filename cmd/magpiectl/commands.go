package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensegment/magpie/internal/domain"
)

func newRefreshCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild feature vectors and persona assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()

			if async {
				if err := c.postJSON("/segmentation/refresh?async=true", nil, nil); err != nil {
					return err
				}
				fmt.Println("refresh queued")
				return nil
			}

			var snap domain.SegmentationSnapshot
			if err := c.postJSON("/segmentation/refresh", nil, &snap); err != nil {
				return err
			}

			fmt.Printf("snapshot %s\n", snap.ID)
			fmt.Printf("  customers: %d, events: %d, window: %dd, elapsed: %dms\n",
				snap.CustomerCount, snap.EventCount, snap.WindowDays, snap.ElapsedMs)
			fmt.Println("  persona counts:")
			for _, label := range domain.AllPersonas() {
				if n := snap.PersonaCounts[label]; n > 0 {
					fmt.Printf("    %-24s %d\n", label, n)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "queue the refresh instead of waiting")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var sc domain.Scenario

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Score a campaign scenario against a segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()

			var result domain.SimulationResult
			if err := c.postJSON("/simulate", sc, &result); err != nil {
				return err
			}

			fmt.Printf("segment size:      %d\n", result.SegmentSize)
			fmt.Printf("engagement index:  %.3f\n", result.EngagementIndex)
			fmt.Printf("conversion prob:   %.3f\n", result.ConversionProb)
			fmt.Printf("fatigue risk:      %.3f\n", result.FatigueRisk)
			fmt.Printf("unsubscribe risk:  %.3f\n", result.UnsubRisk)
			fmt.Println("notes:")
			for _, note := range result.Notes {
				fmt.Printf("  - %s\n", note)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sc.Persona, "persona", "", "persona segment (label or slug)")
	cmd.Flags().StringVar(&sc.Filter, "filter", "", "audience filter expression")
	cmd.Flags().StringVar(&sc.CurrentChannel, "from", "email", "current channel")
	cmd.Flags().StringVar(&sc.NewChannel, "to", "email", "proposed channel")
	cmd.Flags().Float64Var(&sc.TouchesPerWeek, "touches", 2, "touches per week")
	cmd.Flags().Float64Var(&sc.IncentiveLevel, "incentive", 0, "incentive level in [0,1]")
	cmd.Flags().Float64Var(&sc.PersonalizationLevel, "personalization", 0, "personalization level in [0,1]")

	return cmd
}

func newBriefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "brief <persona>",
		Short: "Fetch the markdown strategy brief for a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, ok := domain.PersonaFromSlug(args[0])
			if !ok {
				return fmt.Errorf("unknown persona %q", args[0])
			}

			brief, err := newClient().getText("/briefs/" + domain.PersonaSlug(label))
			if err != nil {
				return err
			}
			fmt.Print(brief)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and the latest segmentation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()

			var health struct {
				Status  string            `json:"status"`
				Version string            `json:"version"`
				Checks  map[string]string `json:"checks"`
			}
			if err := c.getJSON("/health", &health); err != nil {
				return err
			}

			fmt.Printf("server:  %s (%s)\n", health.Status, health.Version)
			for name, state := range health.Checks {
				fmt.Printf("  %-12s %s\n", name, state)
			}

			var snap domain.SegmentationSnapshot
			if err := c.getJSON("/snapshots/latest", &snap); err != nil {
				fmt.Println("no segmentation run recorded yet")
				return nil
			}

			fmt.Printf("latest run: %s at %s\n", snap.ID, snap.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  customers: %d, events: %d, window: %dd\n",
				snap.CustomerCount, snap.EventCount, snap.WindowDays)
			for _, label := range domain.AllPersonas() {
				if n := snap.PersonaCounts[label]; n > 0 {
					fmt.Printf("  %-24s %d\n", label, n)
				}
			}
			return nil
		},
	}
}
