// magpiectl is the command line client for a running Magpie server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   int
)

func main() {
	root := &cobra.Command{
		Use:   "magpiectl",
		Short: "Control a running Magpie segmentation server",
		Long: `magpiectl talks to the Magpie HTTP API: load CSV datasets,
trigger segmentation refreshes, run what-if simulations and fetch
journey strategy briefs.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Magpie server base URL")
	root.PersistentFlags().IntVar(&timeout, "timeout", 60, "request timeout in seconds")

	root.AddCommand(newLoadCmd())
	root.AddCommand(newRefreshCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newBriefCmd())
	root.AddCommand(newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
