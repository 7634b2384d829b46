package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// proxiesCmd represents the proxies command
var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect the proxy pool",
}

// proxiesStatusCmd represents the proxies status command
var proxiesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proxy health and rate budget",
	Long: `Run a probe sweep over the configured proxies and report each
entry's health state together with the remaining global rate budget.`,
	RunE: runProxiesStatus,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesStatusCmd)
}

func runProxiesStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(false)
	if err != nil {
		return err
	}

	if a.pool.Len() == 0 {
		return fmt.Errorf("no proxies configured")
	}

	a.dispatcher.ForceProbeAll(ctx)

	for _, e := range a.pool.AllEntries() {
		st := e.Stats()
		fmt.Printf("%-28s %-10s success=%.2f latency=%s\n",
			e.Identity.Label(), st.State, st.SuccessRatio, st.Latency)
	}

	status := a.dispatcher.Status()
	fmt.Printf("\n%d proxies: %d healthy, %d degraded, %d unhealthy, %d unprobed\n",
		status.TotalProxies, status.HealthyProxies, status.DegradedProxies,
		status.UnhealthyProxies, status.UnknownProxies)
	fmt.Printf("Global rate budget: %.1f requests available\n", status.GlobalTokensAvailable)
	return nil
}
