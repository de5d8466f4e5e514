package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/domain"
	"github.com/soyeahso/taskpilot/internal/hooks"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/soyeahso/taskpilot/internal/store"
	"github.com/soyeahso/taskpilot/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type harness struct {
	runner   *Runner
	mock     *llm.MockClient
	sessions *session.Store
	projects *store.ProjectStore
	hooks    *hooks.Manager
	now      time.Time

	mu     sync.Mutex
	events []string
}

func newHarness(t *testing.T, mock *llm.MockClient, cfg RunnerConfig) *harness {
	t.Helper()
	log := silentLog()

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		mock:     mock,
		projects: store.NewProjectStore(db),
		hooks:    hooks.NewManager(log),
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.sessions = session.NewStore(log, session.WithClock(clock))
	for _, ev := range hooks.AllEvents {
		h.hooks.On(ev, "recorder", func(_ context.Context, p hooks.Payload) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, p.Event)
			return nil
		})
	}

	if cfg.Model == "" {
		cfg.Model = "mock-model"
	}
	h.runner = NewRunner(cfg, Deps{
		Client:     mock,
		Dispatcher: tools.NewDispatcher(tools.DefaultCatalog(), h.projects, log),
		Sessions:   h.sessions,
		Hooks:      h.hooks,
		Log:        log,
		Now:        clock,
	})
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *harness) project(t *testing.T, name string) domain.Project {
	t.Helper()
	p, err := h.projects.CreateProject(context.Background(), name, "", "alice")
	require.NoError(t, err)
	return p
}

func (h *harness) tasks(t *testing.T) []domain.Task {
	t.Helper()
	tasks, err := h.projects.ListTasks(context.Background(), nil, "alice")
	require.NoError(t, err)
	return tasks
}

func text(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: content, Model: "mock-model"}
}

func calling(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: calls, Model: "mock-model"}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func toolMessages(msgs []llm.Message) []llm.Message {
	var out []llm.Message
	for _, m := range msgs {
		if m.Role == llm.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

func chat(t *testing.T, h *harness, sessionID, msg string) *Reply {
	t.Helper()
	reply, err := h.runner.Chat(context.Background(), Request{SessionID: sessionID, UserID: "alice", Message: msg})
	require.NoError(t, err)
	return reply
}

func TestChat_ListProjectsRecordsLastMentioned(t *testing.T) {
	mock := llm.NewScriptedClient(
		calling(call("c1", tools.ListProjects, "{}")),
		text("You have two projects: Website and Mobile."),
	)
	h := newHarness(t, mock, RunnerConfig{})
	website := h.project(t, "Website")
	h.project(t, "Mobile")

	reply := chat(t, h, "s1", "list projects")

	assert.Equal(t, "You have two projects: Website and Mobile.", reply.Message)
	assert.Empty(t, reply.PendingAction)
	assert.Equal(t, "s1", reply.SessionID)
	assert.Equal(t, 2, reply.Iterations)
	assert.Equal(t, 1, reply.ToolCalls)
	assert.Equal(t, 2, mock.Calls())

	reqs := mock.Requests()
	first := reqs[0]
	require.Len(t, first.Messages, 2)
	assert.Equal(t, llm.RoleSystem, first.Messages[0].Role)
	assert.Equal(t, llm.UserMessage("list projects"), first.Messages[1])
	assert.Len(t, first.Tools, len(tools.Builtin()))
	assert.Equal(t, "mock-model", first.Model)

	second := reqs[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, []llm.ToolCall{call("c1", tools.ListProjects, "{}")}, second.Messages[2].ToolCalls)
	tool := second.Messages[3]
	assert.Equal(t, llm.RoleTool, tool.Role)
	assert.Equal(t, "c1", tool.ToolCallID)
	assert.Contains(t, tool.Content, `"success":true`)
	assert.Contains(t, tool.Content, "Website")

	sess, ok := h.sessions.Get("s1")
	require.True(t, ok)
	require.NotNil(t, sess.LastMentionedProject)
	assert.Equal(t, website.ID, sess.LastMentionedProject.ID)
	assert.Equal(t, "alice", sess.UserID)
}

func TestChat_ResolvesReferencesBeforeModel(t *testing.T) {
	mock := llm.NewScriptedClient(text("Which status should it have?"))
	h := newHarness(t, mock, RunnerConfig{})
	h.sessions.RecordTask("s1", domain.TaskSummary{ID: 42, Title: "Fix bug", Status: domain.StatusInProgress})

	chat(t, h, "s1", "move this task to done")

	req := mock.Requests()[0]
	assert.Equal(t, "move task ID 42 ('Fix bug') to done", req.Messages[1].Content)
	assert.Contains(t, req.Messages[0].Content, "Last mentioned task: ID 42 'Fix bug'")
}

func TestChat_ForeignSessionRejected(t *testing.T) {
	mock := llm.NewScriptedClient(text("Noted."), text("It is task 42."))
	h := newHarness(t, mock, RunnerConfig{})

	chat(t, h, "s1", "remember my roadmap")
	h.sessions.RecordTask("s1", domain.TaskSummary{ID: 42, Title: "Alice secret roadmap", Status: domain.StatusBacklog})

	_, err := h.runner.Chat(context.Background(), Request{SessionID: "s1", UserID: "mallory", Message: "what is this task?"})
	require.ErrorIs(t, err, session.ErrNotOwner)
	assert.Equal(t, 1, mock.Calls())
	for _, req := range mock.Requests() {
		for _, m := range req.Messages {
			assert.NotContains(t, m.Content, "Alice secret roadmap")
		}
	}

	// The owner still sees the session intact.
	sess, ok := h.sessions.GetFor("s1", "alice")
	require.True(t, ok)
	require.NotNil(t, sess.LastMentionedTask)
	assert.Equal(t, int64(42), sess.LastMentionedTask.ID)
}

func TestChat_NewSessionID(t *testing.T) {
	h := newHarness(t, llm.NewScriptedClient(text("hi")), RunnerConfig{})

	reply := chat(t, h, "", "hello")
	assert.NotEmpty(t, reply.SessionID)
	_, ok := h.sessions.Get(reply.SessionID)
	assert.True(t, ok)
}

func TestChat_EmptyMessage(t *testing.T) {
	h := newHarness(t, llm.NewScriptedClient(text("hi")), RunnerConfig{})

	_, err := h.runner.Chat(context.Background(), Request{SessionID: "s1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, h.mock.Calls())
}

func TestChat_StopsAfterFiveModelCalls(t *testing.T) {
	mock := llm.NewScriptedClient(calling(call("", tools.ListProjects, "{}")))
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "keep listing")

	assert.Equal(t, MaxIterations, mock.Calls())
	assert.Equal(t, 5, reply.Iterations)
	assert.Equal(t, 5, reply.ToolCalls)
	assert.Equal(t, FallbackReply, reply.Message)

	// Missing call ids are filled in so every result links to its call.
	last := mock.Requests()[4]
	for _, m := range toolMessages(last.Messages) {
		assert.NotEmpty(t, m.ToolCallID)
	}
}

func TestChat_ExhaustedReturnsLastContent(t *testing.T) {
	mock := llm.NewScriptedClient(&llm.CompletionResponse{
		Content:   "Still checking your projects.",
		ToolCalls: []llm.ToolCall{call("c", tools.ListProjects, "{}")},
	})
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "keep listing")
	assert.Equal(t, "Still checking your projects.", reply.Message)
	assert.Equal(t, 5, mock.Calls())
}

func TestChat_TransportFailure(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockReply{{Err: errors.New("dial tcp: connection refused")}}}
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "list projects")
	assert.Equal(t, TransportReply, reply.Message)
	assert.Equal(t, 1, mock.Calls())
}

func TestChat_TransportFailureAfterTools(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockReply{
		{Response: calling(call("c1", tools.ListProjects, "{}"))},
		{Err: &llm.ProviderError{Provider: "mock", Message: "bad gateway", Code: 502}},
	}}
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "list projects")
	assert.Equal(t, TransportReply, reply.Message)
	assert.Equal(t, 1, reply.ToolCalls)
	assert.Equal(t, 2, mock.Calls(), "transport failures are not retried by the loop")
}

func TestChat_MalformedArgumentsContinueLoop(t *testing.T) {
	mock := llm.NewScriptedClient(
		calling(call("c1", tools.CreateTask, "{")),
		text("I could not read those arguments."),
	)
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "create a task")

	assert.Equal(t, "I could not read those arguments.", reply.Message)
	results := toolMessages(mock.Requests()[1].Messages)
	require.Len(t, results, 1)
	assert.JSONEq(t, `{"success":false,"error":"invalid arguments"}`, results[0].Content)
}

func TestChat_OneResultPerToolCall(t *testing.T) {
	mock := llm.NewScriptedClient(
		calling(
			call("a", tools.ListProjects, "{}"),
			call("b", "launch_rocket", "{}"),
			call("c", tools.CreateTask, `{"projectId": 1}`),
		),
		text("done"),
	)
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "do several things")
	assert.Equal(t, 3, reply.ToolCalls)

	results := toolMessages(mock.Requests()[1].Messages)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Contains(t, results[0].Content, `"success":true`)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Contains(t, results[1].Content, "unknown tool launch_rocket")
	assert.Equal(t, "c", results[2].ToolCallID)
	assert.Contains(t, results[2].Content, "missing required parameter: title")
}

func TestChat_EmptyAnswerFallback(t *testing.T) {
	h := newHarness(t, llm.NewScriptedClient(text("  ")), RunnerConfig{})

	reply := chat(t, h, "s1", "hello")
	assert.Equal(t, FallbackReply, reply.Message)
}

func TestChat_EmitsHooks(t *testing.T) {
	mock := llm.NewScriptedClient(calling(call("c1", tools.ListProjects, "{}")), text("none"))
	h := newHarness(t, mock, RunnerConfig{})

	chat(t, h, "s1", "list projects")

	assert.Equal(t, []string{
		hooks.EventChatReceived,
		hooks.EventModelCalled,
		hooks.EventToolExecuted,
		hooks.EventModelCalled,
		hooks.EventChatCompleted,
	}, h.recorded())
}

func TestChat_MarkerCreatesPendingAction(t *testing.T) {
	mock := llm.NewScriptedClient(text("I will create project 'Apollo'. 🤔 CONFIRM_ACTION"))
	h := newHarness(t, mock, RunnerConfig{})

	reply := chat(t, h, "s1", "create a project called Apollo")

	assert.NotEmpty(t, reply.PendingAction)
	assert.Equal(t, "I will create project 'Apollo'.\n\n"+ConfirmationSuffix, reply.Message)
	assert.NotContains(t, reply.Message, "CONFIRM_ACTION")
	assert.Equal(t, 1, h.runner.pending.len())
	assert.Contains(t, h.recorded(), hooks.EventActionPending)

	projects, err := h.projects.ListProjects(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestChat_CustomMarker(t *testing.T) {
	mock := llm.NewScriptedClient(text("About to move it. [[CONFIRM]]"))
	h := newHarness(t, mock, RunnerConfig{Marker: "[[CONFIRM]]"})

	reply := chat(t, h, "s1", "move task 1 to done")
	assert.NotEmpty(t, reply.PendingAction)
	assert.True(t, strings.HasPrefix(reply.Message, "About to move it."))
	assert.Contains(t, mock.Requests()[0].Messages[0].Content, "[[CONFIRM]]")
}

func TestChat_ConfirmMutationsInterceptsToolCalls(t *testing.T) {
	mock := llm.NewScriptedClient(
		calling(call("c1", tools.ListProjects, "{}")),
		calling(call("c2", tools.CreateProject, `{"name": "Apollo"}`)),
		text("Project Apollo created."),
	)
	h := newHarness(t, mock, RunnerConfig{ConfirmMutations: true})

	reply := chat(t, h, "s1", "create project Apollo")

	require.NotEmpty(t, reply.PendingAction)
	assert.Equal(t, 1, reply.ToolCalls, "read-only tools still run")
	assert.Equal(t, "I'm about to run:\n- create_project {\"name\":\"Apollo\"}\n\n"+ConfirmationSuffix, reply.Message)
	projects, err := h.projects.ListProjects(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, projects)

	confirmed, err := h.runner.Confirm(context.Background(), ConfirmRequest{
		SessionID: "s1", UserID: "alice", Token: reply.PendingAction, Approved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Project Apollo created.", confirmed.Message)
	assert.Equal(t, 1, confirmed.ToolCalls)

	projects, err = h.projects.ListProjects(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Apollo", projects[0].Name)

	last := mock.Requests()[2]
	n := len(last.Messages)
	assert.Equal(t, llm.UserMessage(ConfirmedMessage), last.Messages[n-4])
	assert.Equal(t, []llm.ToolCall{call("c2", tools.CreateProject, `{"name": "Apollo"}`)}, last.Messages[n-3].ToolCalls)
	assert.Equal(t, "c2", last.Messages[n-2].ToolCallID)
	assert.Equal(t, llm.SystemMessage(executedNote), last.Messages[n-1])
	assert.Empty(t, last.Tools)

	sess, _ := h.sessions.Get("s1")
	require.NotNil(t, sess.LastMentionedProject)
	assert.Equal(t, "Apollo", sess.LastMentionedProject.Name)
}

func TestChat_IDsAreScopedPerCall(t *testing.T) {
	// Three rounds without ids must not collide.
	mock := llm.NewScriptedClient(
		calling(call("", tools.ListProjects, "{}"), call("", tools.ListTasks, "{}")),
		calling(call("", tools.ListProjects, "{}")),
		text("ok"),
	)
	h := newHarness(t, mock, RunnerConfig{})

	chat(t, h, "s1", "look around")

	ids := map[string]bool{}
	for _, m := range toolMessages(mock.Requests()[2].Messages) {
		assert.False(t, ids[m.ToolCallID], "duplicate id %s", m.ToolCallID)
		ids[m.ToolCallID] = true
	}
	assert.Len(t, ids, 3)
}

func TestRunnerConfigFrom(t *testing.T) {
	temp := 0.2
	cfg := config.Defaults()
	cfg.Agent.Name = "Pilot"
	cfg.Agent.ConfirmMutations = true
	cfg.Agent.ConfirmationTTLMinutes = 10
	cfg.Agent.ExtraPrompt = "Be brief."
	cfg.LLM.Model = "openai/gpt-4o"
	cfg.LLM.MaxTokens = 512
	cfg.LLM.Temperature = &temp

	rc := RunnerConfigFrom(cfg)
	assert.Equal(t, "Pilot", rc.AgentName)
	assert.Equal(t, "openai/gpt-4o", rc.Model)
	assert.Equal(t, 512, rc.MaxTokens)
	assert.Equal(t, &temp, rc.Temperature)
	assert.Equal(t, config.DefaultMarker, rc.Marker)
	assert.True(t, rc.ConfirmMutations)
	assert.Equal(t, 10*time.Minute, rc.PendingTTL)
	assert.Equal(t, "Be brief.", rc.ExtraPrompt)
}
