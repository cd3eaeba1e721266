package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/tabaret/internal/appconfig"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the tabaret config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(*cfgPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", written)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "claude_dir: %s\n", cfg.ClaudeDir)
			fmt.Fprintf(out, "agent.binary: %s\n", cfg.Agent.Binary)
			fmt.Fprintf(out, "agent.shell: %s\n", cfg.Agent.Shell)
			fmt.Fprintf(out, "terminal.scrollback_lines: %d\n", cfg.Terminal.ScrollbackLines)
			fmt.Fprintf(out, "terminal.kill_grace_ms: %d\n", cfg.Terminal.KillGraceMillis)
			fmt.Fprintf(out, "discovery.refresh_seconds: %d\n", cfg.Discovery.RefreshSeconds)
			fmt.Fprintf(out, "discovery.hung_after_minutes: %d\n", cfg.Discovery.HungAfterMinutes)
			fmt.Fprintf(out, "usage.ttl_seconds: %d\n", cfg.Usage.TTLSeconds)
			fmt.Fprintf(out, "store.path: %s\n", cfg.Store.Path)
			return nil
		},
	}
	cmd.AddCommand(showCmd)

	return cmd
}
