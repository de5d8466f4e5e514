package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/taskpilot/internal/agent"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/spf13/cobra"
)

// chatClient replaces the configured model when set.
var chatClient llm.Client

func newChatCmd() *cobra.Command {
	var (
		sessionID string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant; without a message, start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, paths, log, chatClient)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.chatRunner()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if sessionID == "" {
				sessionID = session.NewID()
			}
			c := &chatSession{
				runner:    runner,
				sessionID: sessionID,
				userID:    userID,
				in:        bufio.NewScanner(cmd.InOrStdin()),
				out:       cmd.OutOrStdout(),
				autoYes:   yes,
			}

			if len(args) > 0 {
				return c.turn(ctx, strings.Join(args, " "))
			}
			return c.repl(ctx)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new one)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve proposed actions without asking")

	return cmd
}

type chatSession struct {
	runner    *agent.Runner
	sessionID string
	userID    string
	in        *bufio.Scanner
	out       io.Writer
	autoYes   bool
}

func (c *chatSession) repl(ctx context.Context) error {
	fmt.Fprintln(c.out, "taskpilot chat. Type 'exit' to quit.")
	for {
		fmt.Fprint(c.out, "> ")
		if !c.in.Scan() {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			return nil
		}
		if err := c.turn(ctx, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// turn sends one message and settles any confirmation it raises.
func (c *chatSession) turn(ctx context.Context, message string) error {
	reply, err := c.runner.Chat(ctx, agent.Request{
		SessionID: c.sessionID,
		UserID:    c.userID,
		Message:   message,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, reply.Message)

	// An approved action may itself lead to another proposal.
	for reply.PendingAction != "" {
		approved := c.autoYes || c.ask("Proceed? [y/N] ")
		reply, err = c.runner.Confirm(ctx, agent.ConfirmRequest{
			SessionID: c.sessionID,
			UserID:    c.userID,
			Token:     reply.PendingAction,
			Approved:  approved,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, reply.Message)
	}
	return nil
}

func (c *chatSession) ask(prompt string) bool {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.in.Text())) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}
