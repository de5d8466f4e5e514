package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show taskpilot paths and a configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "taskpilot %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			storeDesc := cfg.Store.Driver
			if path, err := storePath(cfg, paths); err == nil && path != ":memory:" {
				storeDesc += " " + path
			}
			fmt.Fprintf(out, "Store:   %s\n", storeDesc)

			model := cfg.LLM.Model
			if len(cfg.LLM.Fallbacks) > 0 {
				model += " → " + strings.Join(cfg.LLM.Fallbacks, " → ")
			}
			key := "missing"
			if cfg.LLM.APIKey != "" {
				key = "set"
			}
			fmt.Fprintf(out, "LLM:     provider=%s model=%s apiKey=%s\n", cfg.LLM.Provider, model, key)

			fmt.Fprintf(out, "Agent:   name=%s confirmMutations=%v confirmTtl=%dm\n",
				cfg.Agent.Name, cfg.Agent.ConfirmMutations, cfg.Agent.ConfirmationTTLMinutes)
			fmt.Fprintf(out, "Session: idle=%dm\n", cfg.Session.IdleMinutes)
			if cfg.Metrics.Enabled {
				fmt.Fprintf(out, "Metrics: %s\n", cfg.Metrics.Path)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}
}
