package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/internal/appconfig"
	"pkt.systems/tabaret/internal/discovery"
	"pkt.systems/tabaret/internal/store"
)

func newDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run tabaret diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger.Info("doctor config ok", "data_dir", cfg.DataDir, "claude_dir", cfg.ClaudeDir)

			binPath, err := exec.LookPath(cfg.Agent.Binary)
			if err != nil {
				return fmt.Errorf("agent binary %q not on PATH: %w", cfg.Agent.Binary, err)
			}
			logger.Info("doctor agent binary ok", "binary", binPath)

			if _, err := exec.LookPath(cfg.Agent.Shell); err != nil {
				return fmt.Errorf("shell %q not on PATH: %w", cfg.Agent.Shell, err)
			}

			projectsDir := filepath.Join(cfg.ClaudeDir, "projects")
			if _, err := os.Stat(projectsDir); err != nil {
				logger.Warn("doctor no conversation logs yet", "dir", projectsDir)
			} else {
				scanner := discovery.NewScanner(cfg.ClaudeDir, cfg.Agent.Binary,
					time.Duration(cfg.Discovery.HungAfterMinutes)*time.Minute, nil)
				sessions, err := scanner.Discover(cmd.Context())
				if err != nil {
					return fmt.Errorf("discovery failed: %w", err)
				}
				logger.Info("doctor discovery ok", "sessions", len(sessions))
			}

			db, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("history store unusable at %s: %w", cfg.Store.Path, err)
			}
			defer db.Close()
			logger.Info("doctor history store ok", "path", cfg.Store.Path)

			credentials := filepath.Join(cfg.ClaudeDir, ".credentials.json")
			if _, err := os.Stat(credentials); err != nil {
				logger.Warn("doctor no credentials, usage gauge disabled", "path", credentials)
			} else {
				logger.Info("doctor credentials ok", "path", credentials)
			}

			logger.Info("doctor done")
			return nil
		},
	}
}
