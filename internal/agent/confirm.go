package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/taskpilot/internal/hooks"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// DefaultPendingTTL is how long a proposed action waits for an answer.
const DefaultPendingTTL = 30 * time.Minute

// Messages appended to the transcript when an action is approved.
const (
	ConfirmedMessage = "✅ Confirmed! Execute the action."
	executedNote     = "The tool was executed. Reply to the user confirming what was done."
	fallbackNote     = "The user confirmed the action. Execute the appropriate tool now to complete the original request: %q"
)

// ErrUnknownPendingAction is returned for tokens that are unknown, expired,
// already answered, or owned by another session.
var ErrUnknownPendingAction = errors.New("unknown or expired pending action")

// ErrEmptyMessage is returned by Chat for a blank message.
var ErrEmptyMessage = errors.New("message is required")

// PendingAction is a proposed action waiting for the user's decision.
// Nothing has been mutated while it exists.
type PendingAction struct {
	Token           string
	SessionID       string
	UserID          string
	OriginalMessage string
	Transcript      []llm.Message

	// Set when the model requested mutating tools directly; they run
	// verbatim on approval.
	ProposedContent string
	ProposedCalls   []llm.ToolCall

	CreatedAt time.Time
}

// ConfirmRequest answers a pending action.
type ConfirmRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"-"`
	Token     string `json:"pendingAction"`
	Approved  bool   `json:"approved"`
}

type pendingStore struct {
	mu      sync.Mutex
	actions map[string]PendingAction
	ttl     time.Duration
	now     func() time.Time
}

func newPendingStore(ttl time.Duration, now func() time.Time) *pendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &pendingStore{
		actions: make(map[string]PendingAction),
		ttl:     ttl,
		now:     now,
	}
}

func (p *pendingStore) sweepLocked() {
	now := p.now()
	for token, a := range p.actions {
		if now.Sub(a.CreatedAt) > p.ttl {
			delete(p.actions, token)
		}
	}
}

func (p *pendingStore) put(a PendingAction) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()

	a.Token = uuid.NewString()
	a.CreatedAt = p.now()
	p.actions[a.Token] = a
	return a.Token
}

// take removes and returns the action. A mismatched owner leaves it in place.
func (p *pendingStore) take(token, sessionID, userID string) (PendingAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()

	a, ok := p.actions[token]
	if !ok {
		return PendingAction{}, ErrUnknownPendingAction
	}
	if a.SessionID != sessionID || a.UserID != userID {
		return PendingAction{}, fmt.Errorf("%w: owned by another session", ErrUnknownPendingAction)
	}
	delete(p.actions, token)
	return a, nil
}

func (p *pendingStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return len(p.actions)
}

// Confirm resolves a pending action. A rejection runs no tools. An approval
// runs the proposed calls, or the calls classified from the original
// message, and then lets the model report what was done.
func (r *Runner) Confirm(ctx context.Context, req ConfirmRequest) (*Reply, error) {
	start := time.Now()

	action, err := r.pending.take(req.Token, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := r.sessions.GetOrCreateFor(action.SessionID, action.UserID); err != nil {
		return nil, err
	}

	st := &loopState{
		caller:   tools.Caller{UserID: action.UserID, SessionID: action.SessionID},
		original: action.OriginalMessage,
		approved: true,
	}

	if !req.Approved {
		r.log.Info().Str("sessionId", action.SessionID).Str("pendingAction", action.Token).Msg("action rejected")
		r.hooks.Emit(ctx, hooks.EventActionRejected, map[string]any{
			"sessionId": action.SessionID,
			"token":     action.Token,
		})
		return r.finish(ctx, st, CancelledReply, "", "rejected", start), nil
	}

	st.transcript = append(cloneMessages(action.Transcript), llm.UserMessage(ConfirmedMessage))

	calls, content, source := action.ProposedCalls, action.ProposedContent, "proposed"
	if len(calls) == 0 {
		intent := Classify(action.OriginalMessage)
		calls, content, source = intent.Calls, "", string(intent.Kind)
	}

	r.log.Info().
		Str("sessionId", action.SessionID).
		Str("pendingAction", action.Token).
		Str("source", source).
		Int("calls", len(calls)).
		Msg("action approved")
	r.hooks.Emit(ctx, hooks.EventActionConfirmed, map[string]any{
		"sessionId": action.SessionID,
		"token":     action.Token,
		"source":    source,
		"calls":     len(calls),
	})

	if len(calls) == 0 {
		st.transcript = append(st.transcript, llm.SystemMessage(fmt.Sprintf(fallbackNote, action.OriginalMessage)))
		return r.run(ctx, st)
	}

	st.transcript = append(st.transcript, llm.AssistantMessage(content, calls...))
	r.execute(ctx, st, calls)
	st.transcript = append(st.transcript, llm.SystemMessage(executedNote))
	st.noTools = true
	return r.run(ctx, st)
}
