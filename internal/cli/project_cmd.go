package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectShareCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project owned by the current user",
		Args:  cobra.ExactArgs(1),
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

			p, err := projects.CreateProject(cmd.Context(), args[0], description, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %d (%s)\n", p.ID, p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects the current user can access",
		Args:  cobra.NoArgs,
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

			list, err := projects.ListProjects(cmd.Context(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No projects.")
				return nil
			}
			for _, p := range list {
				fmt.Fprintf(out, "  %-4d %-24s owner=%s\n", p.ID, p.Name, p.OwnerID)
			}
			return nil
		},
	}
}

func newProjectShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <project-id> <user>",
		Short: "Give another user access to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, projects, err := openStore(cfg, paths, log)
			if err != nil {
				return err
			}
			defer db.Close()

			// Only members may share.
			p, err := projects.GetProject(cmd.Context(), id, userID)
			if err != nil {
				return err
			}
			if err := projects.AddMember(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shared project %d (%s) with %s\n", p.ID, p.Name, args[1])
			return nil
		},
	}
}
