package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/hooks"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/soyeahso/taskpilot/internal/resolver"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// MaxIterations limits how many model calls one chat turn may make.
const MaxIterations = 5

// User-visible canned replies.
const (
	FallbackReply      = "Action executed successfully!"
	TransportReply     = "Sorry, I couldn't reach the language model right now. Please try again."
	ConfirmationSuffix = "⚠️ This action needs confirmation. Do you want to continue?"
	CancelledReply     = "❌ Action cancelled by user."
)

// RunnerConfig configures the agent runner.
type RunnerConfig struct {
	AgentName        string
	Model            string
	MaxTokens        int
	Temperature      *float64
	Marker           string
	ConfirmMutations bool
	PendingTTL       time.Duration
	ExtraPrompt      string
}

// RunnerConfigFrom maps the config file sections onto a RunnerConfig.
func RunnerConfigFrom(cfg config.Config) RunnerConfig {
	return RunnerConfig{
		AgentName:        cfg.Agent.Name,
		Model:            cfg.LLM.Model,
		MaxTokens:        cfg.LLM.MaxTokens,
		Temperature:      cfg.LLM.Temperature,
		Marker:           cfg.Agent.ConfirmationMarker,
		ConfirmMutations: cfg.Agent.ConfirmMutations,
		PendingTTL:       time.Duration(cfg.Agent.ConfirmationTTLMinutes) * time.Minute,
		ExtraPrompt:      cfg.Agent.ExtraPrompt,
	}
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Client     llm.Client
	Dispatcher *tools.Dispatcher
	Sessions   *session.Store
	Hooks      *hooks.Manager // optional
	Log        *logging.Logger
	Now        func() time.Time // optional
}

// Request is one inbound chat message.
type Request struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"-"`
	Message   string `json:"message"`
}

// Reply is the outcome of a chat turn or a confirmation.
type Reply struct {
	Message       string `json:"message"`
	PendingAction string `json:"pendingAction,omitempty"`
	SessionID     string `json:"sessionId"`
	Model         string `json:"model,omitempty"`
	Iterations    int    `json:"iterations"`
	ToolCalls     int    `json:"toolCalls"`
}

// Runner is the conversation loop controller.
// It resolves references, calls the model, runs requested tools, and
// gates mutating actions behind confirmation.
type Runner struct {
	cfg        RunnerConfig
	client     llm.Client
	dispatcher *tools.Dispatcher
	sessions   *session.Store
	resolver   *resolver.Resolver
	pending    *pendingStore
	hooks      *hooks.Manager
	toolDefs   []llm.ToolDefinition
	now        func() time.Time
	log        *logging.Logger
}

// NewRunner creates a runner and subscribes the session store (and the hook
// bus, when given) to tool results.
func NewRunner(cfg RunnerConfig, deps Deps) *Runner {
	if cfg.Marker == "" {
		cfg.Marker = config.DefaultMarker
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r := &Runner{
		cfg:        cfg,
		client:     deps.Client,
		dispatcher: deps.Dispatcher,
		sessions:   deps.Sessions,
		resolver:   resolver.New(deps.Sessions),
		pending:    newPendingStore(cfg.PendingTTL, now),
		hooks:      deps.Hooks,
		toolDefs:   toolDefinitions(deps.Dispatcher.Catalog()),
		now:        now,
		log:        deps.Log.Sub("agent"),
	}

	deps.Dispatcher.AddObserver(deps.Sessions)
	if deps.Hooks != nil {
		deps.Dispatcher.AddObserver(tools.ObserverFunc(func(caller tools.Caller, tool string, res tools.Result) {
			deps.Hooks.Emit(context.Background(), hooks.EventToolExecuted, map[string]any{
				"tool":      tool,
				"success":   res.Success,
				"sessionId": caller.SessionID,
			})
		}))
	}
	return r
}

func toolDefinitions(c *tools.Catalog) []llm.ToolDefinition {
	schemas := c.ListTools()
	defs := make([]llm.ToolDefinition, len(schemas))
	for i, s := range schemas {
		defs[i] = llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.JSONSchema(),
		}
	}
	return defs
}

// loopState is the explicit state threaded through the model-call cycle.
type loopState struct {
	caller     tools.Caller
	original   string
	transcript []llm.Message

	iteration   int
	toolCalls   int
	lastContent string
	model       string

	// approved is set when resuming after a confirmation; the model is not
	// asked to confirm again.
	approved bool
	// noTools hides the catalog from the model.
	noTools bool
}

// Chat processes one user message.
// Transport failures are reported in the reply, not as an error. A session
// id that belongs to another user fails with session.ErrNotOwner.
func (r *Runner) Chat(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.SessionID == "" {
		req.SessionID = session.NewID()
	}

	sess, err := r.sessions.GetOrCreateFor(req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	resolved := r.resolver.Resolve(req.SessionID, req.UserID, req.Message)

	r.log.Info().
		Str("sessionId", req.SessionID).
		Str("user", req.UserID).
		Bool("rewritten", resolved != req.Message).
		Msg("processing message")
	r.hooks.Emit(ctx, hooks.EventChatReceived, map[string]any{
		"sessionId": req.SessionID,
		"userId":    req.UserID,
	})

	system := BuildSystemPrompt(PromptConfig{
		AgentName:      r.cfg.AgentName,
		Marker:         r.cfg.Marker,
		Tools:          r.dispatcher.Catalog().ListTools(),
		SessionSummary: sess.Summary(),
		ExtraPrompt:    r.cfg.ExtraPrompt,
		Now:            r.now(),
	})

	st := &loopState{
		caller:   tools.Caller{UserID: req.UserID, SessionID: req.SessionID},
		original: resolved,
		transcript: []llm.Message{
			llm.SystemMessage(system),
			llm.UserMessage(resolved),
		},
	}
	return r.run(ctx, st)
}

// run drives the model until it answers, proposes an action, or the
// iteration budget is spent.
func (r *Runner) run(ctx context.Context, st *loopState) (*Reply, error) {
	start := time.Now()

	for st.iteration < MaxIterations {
		st.iteration++

		req := llm.CompletionRequest{
			Model:       r.cfg.Model,
			Messages:    st.transcript,
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
		}
		if !st.noTools {
			req.Tools = r.toolDefs
		}

		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			r.log.Error().
				Err(err).
				Str("sessionId", st.caller.SessionID).
				Int("iteration", st.iteration).
				Msg("model call failed")
			r.emitModelCall(ctx, st, "error")
			return r.finish(ctx, st, TransportReply, "", "transport_error", start), nil
		}

		st.model = resp.Model
		if strings.TrimSpace(resp.Content) != "" {
			st.lastContent = resp.Content
		}
		r.emitModelCall(ctx, st, "ok")
		r.log.Debug().
			Str("model", resp.Model).
			Int("iteration", st.iteration).
			Int("toolCalls", len(resp.ToolCalls)).
			Msg("model replied")

		if len(resp.ToolCalls) == 0 {
			return r.answer(ctx, st, resp.Content, start), nil
		}

		calls := withCallIDs(resp.ToolCalls, st.iteration)
		if r.cfg.ConfirmMutations && !st.approved && r.anyMutating(calls) {
			return r.propose(ctx, st, resp.Content, calls, start), nil
		}

		st.transcript = append(st.transcript, llm.AssistantMessage(resp.Content, calls...))
		r.execute(ctx, st, calls)
	}

	r.log.Warn().
		Str("sessionId", st.caller.SessionID).
		Int("iterations", st.iteration).
		Msg("iteration budget exhausted")
	msg := strings.TrimSpace(r.stripMarker(st.lastContent))
	if msg == "" {
		msg = FallbackReply
	}
	return r.finish(ctx, st, msg, "", "exhausted", start), nil
}

// execute runs calls one at a time in order, appending one tool message each.
func (r *Runner) execute(ctx context.Context, st *loopState, calls []llm.ToolCall) {
	for _, call := range calls {
		res := r.dispatcher.Execute(ctx, call.Name, call.Arguments, st.caller)
		st.toolCalls++
		st.transcript = append(st.transcript, llm.ToolMessage(call.ID, res.JSON()))
	}
}

// answer handles a reply without tool calls.
func (r *Runner) answer(ctx context.Context, st *loopState, content string, start time.Time) *Reply {
	if strings.Contains(content, r.cfg.Marker) && !st.approved {
		stripped := strings.TrimSpace(r.stripMarker(content))
		snapshot := append(cloneMessages(st.transcript), llm.AssistantMessage(stripped))
		token := r.pending.put(PendingAction{
			SessionID:       st.caller.SessionID,
			UserID:          st.caller.UserID,
			OriginalMessage: st.original,
			Transcript:      snapshot,
		})
		return r.pendingReply(ctx, st, stripped, token, start)
	}

	msg := strings.TrimSpace(r.stripMarker(content))
	if msg == "" {
		msg = FallbackReply
	}
	return r.finish(ctx, st, msg, "", "answered", start)
}

// propose holds back mutating tool calls until the user confirms them.
func (r *Runner) propose(ctx context.Context, st *loopState, content string, calls []llm.ToolCall, start time.Time) *Reply {
	token := r.pending.put(PendingAction{
		SessionID:       st.caller.SessionID,
		UserID:          st.caller.UserID,
		OriginalMessage: st.original,
		Transcript:      cloneMessages(st.transcript),
		ProposedContent: content,
		ProposedCalls:   calls,
	})

	msg := strings.TrimSpace(r.stripMarker(content))
	if msg == "" {
		msg = describeCalls(calls)
	}
	return r.pendingReply(ctx, st, msg, token, start)
}

func (r *Runner) pendingReply(ctx context.Context, st *loopState, msg, token string, start time.Time) *Reply {
	r.log.Info().
		Str("sessionId", st.caller.SessionID).
		Str("pendingAction", token).
		Msg("action awaiting confirmation")
	r.hooks.Emit(ctx, hooks.EventActionPending, map[string]any{
		"sessionId": st.caller.SessionID,
		"token":     token,
	})

	if msg != "" {
		msg += "\n\n"
	}
	return r.finish(ctx, st, msg+ConfirmationSuffix, token, "pending", start)
}

func (r *Runner) finish(ctx context.Context, st *loopState, msg, token, outcome string, start time.Time) *Reply {
	r.log.Info().
		Str("sessionId", st.caller.SessionID).
		Str("model", st.model).
		Str("outcome", outcome).
		Int("iterations", st.iteration).
		Int("toolCalls", st.toolCalls).
		Dur("duration", time.Since(start)).
		Msg("response generated")
	r.hooks.Emit(ctx, hooks.EventChatCompleted, map[string]any{
		"sessionId":  st.caller.SessionID,
		"outcome":    outcome,
		"iterations": st.iteration,
		"toolCalls":  st.toolCalls,
	})

	return &Reply{
		Message:       msg,
		PendingAction: token,
		SessionID:     st.caller.SessionID,
		Model:         st.model,
		Iterations:    st.iteration,
		ToolCalls:     st.toolCalls,
	}
}

func (r *Runner) emitModelCall(ctx context.Context, st *loopState, outcome string) {
	r.hooks.Emit(ctx, hooks.EventModelCalled, map[string]any{
		"sessionId": st.caller.SessionID,
		"model":     st.model,
		"iteration": st.iteration,
		"outcome":   outcome,
	})
}

func (r *Runner) stripMarker(s string) string {
	return strings.ReplaceAll(s, r.cfg.Marker, "")
}

func (r *Runner) anyMutating(calls []llm.ToolCall) bool {
	for _, c := range calls {
		if r.dispatcher.Catalog().IsMutating(c.Name) {
			return true
		}
	}
	return false
}

// withCallIDs fills in ids for providers that omit them, so every tool
// message can be linked to its call.
func withCallIDs(calls []llm.ToolCall, iteration int) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", iteration, i+1)
		}
		out[i] = c
	}
	return out
}

func describeCalls(calls []llm.ToolCall) string {
	var b strings.Builder
	b.WriteString("I'm about to run:")
	for _, c := range calls {
		args := strings.TrimSpace(c.Arguments)
		var compact map[string]any
		if json.Unmarshal([]byte(args), &compact) == nil {
			if enc, err := json.Marshal(compact); err == nil {
				args = string(enc)
			}
		}
		fmt.Fprintf(&b, "\n- %s %s", c.Name, args)
	}
	return b.String()
}

func cloneMessages(msgs []llm.Message) []llm.Message {
	return append([]llm.Message(nil), msgs...)
}
