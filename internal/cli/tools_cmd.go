package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soyeahso/taskpilot/internal/tools"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and run the tools offered to the model",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsShowCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range catalogFor(cfg).ListTools() {
				flag := ""
				if s.Mutating {
					flag = " (mutating)"
				}
				fmt.Fprintf(out, "  %-26s %s%s\n", s.Name, s.Description, flag)
			}
			return nil
		},
	}
}

func newToolsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a tool's parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, ok := catalogFor(cfg).GetSchema(args[0])
			if !ok {
				return fmt.Errorf("unknown tool: %s", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n  %s\n", s.Name, s.Description)
			if s.Mutating {
				fmt.Fprintln(out, "  Changes data; the assistant asks before running it.")
			}

			names := make([]string, 0, len(s.Parameters))
			for n := range s.Parameters {
				names = append(names, n)
			}
			sort.Strings(names)
			if len(names) > 0 {
				fmt.Fprintln(out, "\nParameters:")
			}
			for _, n := range names {
				p := s.Parameters[n]
				req := ""
				for _, r := range s.Required {
					if r == n {
						req = " (required)"
					}
				}
				line := fmt.Sprintf("  %-12s %-8s %s%s", n, p.Type, p.Description, req)
				if len(p.Enum) > 0 {
					line += " [" + strings.Join(p.Enum, ", ") + "]"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newToolsCallCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "call <name> [json-arguments]",
		Short: "Run a tool directly, without the model",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, projects, err := openStore(cfg, paths, log)
			if err != nil {
				return err
			}
			defer db.Close()

			argsJSON := "{}"
			if len(args) == 2 {
				argsJSON = args[1]
			}

			d := newDispatcher(cfg, projects, log)
			res := d.Execute(cmd.Context(), args[0], argsJSON, tools.Caller{UserID: userID, SessionID: sessionID})

			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if !res.Success {
				return fmt.Errorf("%s failed: %s", args[0], res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to attribute the call to")
	return cmd
}
