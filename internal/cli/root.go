// Package cli implements the taskpilot command line.
package cli

import (
	"os"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	userID   string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "taskpilot: chat with your projects and tasks",
		Long:  "taskpilot lets a language model manage projects and tasks through tools, asking before it changes anything.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			if err := config.LoadDotEnv(".env", paths.DotEnv); err != nil {
				return err
			}
			log = logging.New(nil, levelOr("warn"))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taskpilot/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringVar(&userID, "user", defaultUser(), "user the command acts as")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
	}
	return err
}

// loadConfig reads the config file and, unless --log-level was given,
// switches the logger to the configured level and style.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel == "" {
		log = logging.NewStyled(nil, cfg.Logging.Level, cfg.Logging.ConsoleStyle)
	}
	return cfg, nil
}

func levelOr(fallback string) string {
	if logLevel != "" {
		return logLevel
	}
	return fallback
}

func defaultUser() string {
	if u := os.Getenv("TASKPILOT_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
