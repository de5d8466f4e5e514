// Package session keeps short-lived conversational memory per chat session:
// the tasks and projects recently touched and the last one of each kind
// mentioned, so later messages can refer to "this task".
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/taskpilot/internal/domain"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/soyeahso/taskpilot/internal/tools"
)

const (
	MaxRecentTasks    = 10
	MaxRecentProjects = 5
	DefaultTTL        = 30 * time.Minute
)

// ErrNotOwner is returned when a session bound to one user is used by another.
var ErrNotOwner = errors.New("session belongs to another user")

// Session is a snapshot of one conversation's memory. UserID is set by the
// first user to touch it; nobody else may read or extend it afterwards.
type Session struct {
	ID                   string                  `json:"id"`
	UserID               string                  `json:"userId,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
	LastActivity         time.Time               `json:"lastActivity"`
	RecentTasks          []domain.TaskSummary    `json:"recentTasks"`
	RecentProjects       []domain.ProjectSummary `json:"recentProjects"`
	LastMentionedTask    *domain.TaskSummary     `json:"lastMentionedTask,omitempty"`
	LastMentionedProject *domain.ProjectSummary  `json:"lastMentionedProject,omitempty"`
}

func (s *Session) allows(userID string) bool {
	return s.UserID == "" || s.UserID == userID
}

func (s *Session) clone() Session {
	c := *s
	c.RecentTasks = append([]domain.TaskSummary(nil), s.RecentTasks...)
	c.RecentProjects = append([]domain.ProjectSummary(nil), s.RecentProjects...)
	if s.LastMentionedTask != nil {
		t := *s.LastMentionedTask
		c.LastMentionedTask = &t
	}
	if s.LastMentionedProject != nil {
		p := *s.LastMentionedProject
		c.LastMentionedProject = &p
	}
	return c
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, for deterministic expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTL sets the idle time after which a session is dropped.
// Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Store is the concurrency-safe session map. Expiry is lazy: every access
// sweeps idle sessions first.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	ttl      time.Duration
	log      *logging.Logger
}

// NewStore creates an empty store.
func NewStore(log *logging.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		ttl:      DefaultTTL,
		log:      log.Sub("session"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// getLocked returns the live session, creating it if needed, and marks activity.
// Caller must hold s.mu.
func (s *Store) getLocked(id string) *Session {
	s.sweepLocked()
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, CreatedAt: now}
		s.sessions[id] = sess
		s.log.Debug().Str("session", id).Msg("session created")
	}
	sess.LastActivity = now
	return sess
}

// GetOrCreate returns a copy of the session, creating it if absent.
func (s *Store) GetOrCreate(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id).clone()
}

// Get returns a copy of an existing live session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// GetOrCreateFor is GetOrCreate on behalf of userID, binding the session to
// that user if it is unbound. A session bound to someone else is neither
// returned nor touched.
func (s *Store) GetOrCreateFor(id, userID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwnerLocked(id, userID); err != nil {
		return Session{}, err
	}
	sess := s.getLocked(id)
	if sess.UserID == "" {
		sess.UserID = userID
	}
	return sess.clone(), nil
}

// GetFor is Get restricted to sessions userID may use.
func (s *Store) GetFor(id, userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	sess, ok := s.sessions[id]
	if !ok || !sess.allows(userID) {
		return Session{}, false
	}
	return sess.clone(), true
}

// checkOwnerLocked sweeps, then fails if a live session id belongs to
// another user. Caller must hold s.mu.
func (s *Store) checkOwnerLocked(id, userID string) error {
	s.sweepLocked()
	if sess, ok := s.sessions[id]; ok && !sess.allows(userID) {
		s.log.Warn().Str("session", id).Str("user", userID).Msg("session used by another user")
		return ErrNotOwner
	}
	return nil
}

// RecordTask puts t at the front of the recent tasks, evicting past the cap,
// and makes it the last mentioned task. An older entry with the same id is
// replaced.
func (s *Store) RecordTask(id string, t domain.TaskSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(id).recordTask(t)
}

// RecordProject is RecordTask for projects.
func (s *Store) RecordProject(id string, p domain.ProjectSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(id).recordProject(p)
}

func (s *Session) recordTask(t domain.TaskSummary) {
	s.RecentTasks = pushFront(s.RecentTasks, t, MaxRecentTasks, func(x domain.TaskSummary) bool { return x.ID == t.ID })
	s.LastMentionedTask = &t
}

func (s *Session) recordProject(p domain.ProjectSummary) {
	s.RecentProjects = pushFront(s.RecentProjects, p, MaxRecentProjects, func(x domain.ProjectSummary) bool { return x.ID == p.ID })
	s.LastMentionedProject = &p
}

func pushFront[T any](list []T, item T, limit int, same func(T) bool) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, item)
	for _, x := range list {
		if len(out) == limit {
			break
		}
		if !same(x) {
			out = append(out, x)
		}
	}
	return out
}

// SweepExpired drops sessions idle longer than the TTL and returns how many.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.log.Debug().Int("count", n).Msg("expired sessions swept")
	}
	return n
}

// Len returns the number of sessions held, live or not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ObserveTool records the entities touched by a successful tool call into
// the caller's session. Calls made against another user's session are
// ignored. List results are recorded last-to-first so the first listed
// entity ends up as the last mentioned one.
func (s *Store) ObserveTool(caller tools.Caller, tool string, res tools.Result) {
	if !res.Success || caller.SessionID == "" {
		return
	}
	if len(res.Projects) == 0 && len(res.Tasks) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwnerLocked(caller.SessionID, caller.UserID); err != nil {
		return
	}
	sess := s.getLocked(caller.SessionID)
	if sess.UserID == "" {
		sess.UserID = caller.UserID
	}

	switch tool {
	case tools.ListProjects, tools.CreateProject:
		for i := len(res.Projects) - 1; i >= 0; i-- {
			sess.recordProject(res.Projects[i])
		}
	case tools.ListTasks, tools.CreateTask, tools.UpdateTask, tools.MoveTask:
		for i := len(res.Tasks) - 1; i >= 0; i-- {
			sess.recordTask(res.Tasks[i])
		}
	}
}

// Summary renders the session memory for the system prompt. Empty when
// nothing has been recorded.
func (sess Session) Summary() string {
	if len(sess.RecentTasks) == 0 && len(sess.RecentProjects) == 0 {
		return ""
	}

	var b strings.Builder
	if t := sess.LastMentionedTask; t != nil {
		fmt.Fprintf(&b, "Last mentioned task: ID %d '%s'", t.ID, t.Title)
		if t.Status != "" {
			fmt.Fprintf(&b, " (status %s)", t.Status)
		}
		b.WriteString("\n")
	}
	if p := sess.LastMentionedProject; p != nil {
		fmt.Fprintf(&b, "Last mentioned project: ID %d '%s'\n", p.ID, p.Name)
	}
	if len(sess.RecentTasks) > 0 {
		b.WriteString("Recent tasks:\n")
		for _, t := range sess.RecentTasks {
			fmt.Fprintf(&b, "- ID %d: %s", t.ID, t.Title)
			if t.Status != "" {
				fmt.Fprintf(&b, " [%s]", t.Status)
			}
			b.WriteString("\n")
		}
	}
	if len(sess.RecentProjects) > 0 {
		b.WriteString("Recent projects:\n")
		for _, p := range sess.RecentProjects {
			fmt.Fprintf(&b, "- ID %d: %s\n", p.ID, p.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
