package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/tabaret/internal/appconfig"
	"pkt.systems/tabaret/internal/discovery"
)

func newSessionsCmd(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List discovered agent sessions without starting the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			scanner := discovery.NewScanner(cfg.ClaudeDir, cfg.Agent.Binary,
				time.Duration(cfg.Discovery.HungAfterMinutes)*time.Minute, nil)
			sessions, err := scanner.Discover(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "no sessions found")
				return nil
			}
			fmt.Fprintf(out, "%-38s %-20s %-8s %-22s %10s %9s\n",
				"SESSION", "PROJECT", "STATUS", "MODEL", "TOKENS", "COST")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-38s %-20s %-8s %-22s %10d %9.2f\n",
					s.ID, s.ProjectName, s.Status, s.Model, s.TotalTokens(), s.EstimatedCostUSD())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}
