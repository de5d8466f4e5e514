package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/taskpilot/internal/tools"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	AgentName      string
	Marker         string
	Tools          []tools.Schema
	SessionSummary string
	ExtraPrompt    string
	Now            time.Time
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	name := cfg.AgentName
	if name == "" {
		name = "Taskpilot"
	}
	fmt.Fprintf(&b, "You are %s, an assistant for project and task management. Use tools whenever you need to act on projects or tasks.\n\n", name)

	if !cfg.Now.IsZero() {
		fmt.Fprintf(&b, "Current date: %s\n\n", cfg.Now.Format("2006-01-02"))
	}

	if len(cfg.Tools) > 0 {
		names := make([]string, len(cfg.Tools))
		for i, t := range cfg.Tools {
			names[i] = t.Name
		}
		fmt.Fprintf(&b, "Available tools: %s.\n\n", strings.Join(names, ", "))
	}

	b.WriteString("Guidelines:\n")
	b.WriteString("- Reply in the user's language. Be objective when creating tasks or projects.\n")
	b.WriteString("- To create a task, ALWAYS ask which project to use if the user did not say. List the available projects and ask.\n")
	b.WriteString("- Do NOT create projects on your own. Only create a project when the user explicitly asks for one.\n")
	b.WriteString("- References like \"task ID 42 ('Fix bug')\" name the exact entity the user means.\n")

	if cfg.Marker != "" {
		b.WriteString("\n## Confirmation mode\n\n")
		var mutating []string
		for _, t := range cfg.Tools {
			if t.Mutating {
				mutating = append(mutating, t.Name)
			}
		}
		if len(mutating) > 0 {
			fmt.Fprintf(&b, "For actions that change data (%s), ", strings.Join(mutating, ", "))
		} else {
			b.WriteString("For actions that change data, ")
		}
		fmt.Fprintf(&b, "FIRST describe exactly what you are going to do and end your reply with '%s'. ", cfg.Marker)
		b.WriteString("Do NOT call the tool yet. Wait for the user to confirm.\n")
	}

	if cfg.SessionSummary != "" {
		b.WriteString("\n## Conversation context\n\n")
		b.WriteString(cfg.SessionSummary)
		b.WriteString("\n")
	}

	// Extra/custom prompt
	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
