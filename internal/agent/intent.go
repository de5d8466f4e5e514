package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/soyeahso/taskpilot/internal/domain"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// IntentKind names the action a confirmed message asks for.
type IntentKind string

const (
	IntentCreateProject IntentKind = "create_project"
	IntentCreateTask    IntentKind = "create_task"
	IntentMoveTask      IntentKind = "move_task"
	IntentUnknown       IntentKind = "unknown"
)

// Intent is the classified action together with the tool calls that carry it out.
type Intent struct {
	Kind  IntentKind
	Calls []llm.ToolCall
}

var (
	createVerb  = regexp.MustCompile(`(?i)\b(?:create|crie|criar|cria|add|adicione|adicionar)\b`)
	moveVerb    = regexp.MustCompile(`(?i)\b(?:move|mova|mover|mark|marque)\b`)
	taskNoun    = regexp.MustCompile(`(?i)\b(?:tasks?|tarefas?)\b`)
	projectNoun = regexp.MustCompile(`(?i)\b(?:projects?|projetos?)\b`)

	taskIDPattern    = regexp.MustCompile(`(?i)\b(?:task|tarefa)\s+(?:id\s+)?#?(\d+)`)
	projectIDPattern = regexp.MustCompile(`(?i)\b(?:project|projeto)\s+(?:id\s+)?#?(\d+)`)

	namedPattern  = regexp.MustCompile(`(?i)\b(?:called|named|chamad[oa]s?|nome)\s+(.+)$`)
	quotedPattern = regexp.MustCompile(`"([^"]+)"`)
	inProject     = regexp.MustCompile(`(?i)\s+(?:in|on|for|to|into|no|na|em|para|do)\s+(?:the\s+|o\s+)?(?:project|projeto)\b`)
	refTitle      = regexp.MustCompile(`\('[^']*'\)`)
)

// statusWords maps keywords to statuses, checked in order.
var statusWords = []struct {
	words  []string
	status domain.TaskStatus
}{
	{[]string{"progress", "progresso", "doing"}, domain.StatusInProgress},
	{[]string{"review", "revisão", "revisao"}, domain.StatusInReview},
	{[]string{"done", "concluir", "concluída", "concluida", "finalizar", "complete"}, domain.StatusDone},
	{[]string{"ready", "todo", "to do", "a fazer"}, domain.StatusReadyToDevelop},
	{[]string{"backlog"}, domain.StatusBacklog},
}

// Classify derives the tool calls a message asks for from keywords alone.
// Messages that do not clearly name every required argument are IntentUnknown.
func Classify(message string) Intent {
	// Nouns inside the given name do not count.
	head := message
	if loc := namedPattern.FindStringIndex(message); loc != nil {
		head = message[:loc[0]]
	}

	switch {
	case createVerb.MatchString(head) && taskNoun.MatchString(head):
		return classifyCreateTask(message)
	case createVerb.MatchString(head) && projectNoun.MatchString(head):
		return classifyCreateProject(message)
	case moveVerb.MatchString(message):
		return classifyMoveTask(message)
	}
	return Intent{Kind: IntentUnknown}
}

func classifyCreateProject(message string) Intent {
	var name string
	if m := namedPattern.FindStringSubmatch(message); m != nil {
		name = m[1]
	} else if loc := projectNoun.FindStringIndex(message); loc != nil {
		// Everything after the word "project".
		name = message[loc[1]:]
	}
	name = cleanName(name)
	if name == "" {
		return Intent{Kind: IntentUnknown}
	}
	return Intent{
		Kind:  IntentCreateProject,
		Calls: []llm.ToolCall{newCall(1, tools.CreateProject, map[string]any{"name": name})},
	}
}

func classifyCreateTask(message string) Intent {
	projectID, ok := firstID(projectIDPattern, message)
	if !ok {
		return Intent{Kind: IntentUnknown}
	}

	var titles []string
	for _, m := range quotedPattern.FindAllStringSubmatch(message, -1) {
		if t := cleanName(m[1]); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		if m := namedPattern.FindStringSubmatch(message); m != nil {
			title := m[1]
			if loc := inProject.FindStringIndex(title); loc != nil {
				title = title[:loc[0]]
			}
			if t := cleanName(title); t != "" {
				titles = append(titles, t)
			}
		}
	}
	if len(titles) == 0 {
		return Intent{Kind: IntentUnknown}
	}

	calls := make([]llm.ToolCall, len(titles))
	for i, title := range titles {
		calls[i] = newCall(i+1, tools.CreateTask, map[string]any{"title": title, "projectId": projectID})
	}
	return Intent{Kind: IntentCreateTask, Calls: calls}
}

func classifyMoveTask(message string) Intent {
	taskID, ok := firstID(taskIDPattern, message)
	if !ok {
		return Intent{Kind: IntentUnknown}
	}
	status, ok := statusFromText(message)
	if !ok {
		return Intent{Kind: IntentUnknown}
	}
	return Intent{
		Kind:  IntentMoveTask,
		Calls: []llm.ToolCall{newCall(1, tools.MoveTask, map[string]any{"taskId": taskID, "status": string(status)})},
	}
}

// statusFromText ignores the titles of resolved references, which may
// contain status words of their own.
func statusFromText(message string) (domain.TaskStatus, bool) {
	lower := strings.ToLower(refTitle.ReplaceAllString(message, ""))
	for _, sw := range statusWords {
		for _, w := range sw.words {
			if strings.Contains(lower, w) {
				return sw.status, true
			}
		}
	}
	return "", false
}

func firstID(re *regexp.Regexp, message string) (int64, bool) {
	m := re.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!?,;: ")
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func newCall(n int, tool string, args map[string]any) llm.ToolCall {
	b, _ := json.Marshal(args)
	return llm.ToolCall{
		ID:        fmt.Sprintf("confirmed_%d", n),
		Name:      tool,
		Arguments: string(b),
	}
}
