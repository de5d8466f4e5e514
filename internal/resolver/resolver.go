// Package resolver rewrites references like "this task" or "move it to done"
// into explicit entity ids taken from session memory, before the message
// reaches the model.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/soyeahso/taskpilot/internal/domain"
	"github.com/soyeahso/taskpilot/internal/session"
)

// reference matches deictic phrases in English and Portuguese. Only the
// named group is replaced; the surrounding verb and preposition stay.
var reference = regexp.MustCompile(`(?i)\b(?:` +
	`(?P<task>(?:this|that)\s+task|(?:esta|essa|aquela)\s+tarefa)` +
	`|(?P<project>(?:this|that)\s+project|(?:este|esse|aquele)\s+projeto)` +
	`|(?:move|mark|set|put)\s+(?P<it>it)\s+(?:to|as|into|in)` +
	`|(?:mova|mover|move|coloque|marque)(?P<ptit>-[ao]|\s+(?:ela|ele))\s+(?:para|como|em)` +
	`)\b`)

// resolved matches references already written out, which are never rewritten.
var resolved = regexp.MustCompile(`(?:task|project) ID \d+ \('[^']*'\)`)

var (
	groupTask    = reference.SubexpIndex("task")
	groupProject = reference.SubexpIndex("project")
	groupIt      = reference.SubexpIndex("it")
	groupPtIt    = reference.SubexpIndex("ptit")
)

// TaskRef renders the explicit form of a task reference.
func TaskRef(t domain.TaskSummary) string {
	return fmt.Sprintf("task ID %d ('%s')", t.ID, t.Title)
}

// ProjectRef renders the explicit form of a project reference.
func ProjectRef(p domain.ProjectSummary) string {
	return fmt.Sprintf("project ID %d ('%s')", p.ID, p.Name)
}

// Resolver resolves messages against a session store.
type Resolver struct {
	sessions *session.Store
}

// New creates a resolver reading from sessions.
func New(sessions *session.Store) *Resolver {
	return &Resolver{sessions: sessions}
}

// Resolve rewrites raw using the memory of sessionID as seen by userID.
// Unknown or expired sessions, and sessions of other users, leave the
// message unchanged.
func (r *Resolver) Resolve(sessionID, userID, raw string) string {
	sess, ok := r.sessions.GetFor(sessionID, userID)
	if !ok {
		return raw
	}
	return ResolveText(sess, raw)
}

type span struct{ start, end int }

// ResolveText rewrites raw against sess. Phrases whose target is unknown are
// left alone so the model can ask. Applying it twice gives the same result.
func ResolveText(sess session.Session, raw string) string {
	if sess.LastMentionedTask == nil && sess.LastMentionedProject == nil {
		return raw
	}

	var taskRef, projectRef string
	if sess.LastMentionedTask != nil {
		taskRef = TaskRef(*sess.LastMentionedTask)
	}
	if sess.LastMentionedProject != nil {
		projectRef = ProjectRef(*sess.LastMentionedProject)
	}

	var b strings.Builder
	pos := 0
	for _, p := range protectedSpans(raw, taskRef, projectRef) {
		b.WriteString(rewrite(raw[pos:p.start], taskRef, projectRef))
		b.WriteString(raw[p.start:p.end])
		pos = p.end
	}
	b.WriteString(rewrite(raw[pos:], taskRef, projectRef))
	return b.String()
}

// protectedSpans returns sorted, non-overlapping spans of text that already
// name an entity explicitly.
func protectedSpans(s string, literals ...string) []span {
	var spans []span
	for _, lit := range literals {
		if lit == "" {
			continue
		}
		for off := 0; ; {
			i := strings.Index(s[off:], lit)
			if i < 0 {
				break
			}
			spans = append(spans, span{off + i, off + i + len(lit)})
			off += i + len(lit)
		}
	}
	for _, loc := range resolved.FindAllStringIndex(s, -1) {
		spans = append(spans, span{loc[0], loc[1]})
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

func rewrite(s, taskRef, projectRef string) string {
	matches := reference.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	pos := 0
	for _, m := range matches {
		var (
			start, end  int
			replacement string
		)
		switch {
		case m[2*groupTask] >= 0 && taskRef != "":
			start, end, replacement = m[2*groupTask], m[2*groupTask+1], taskRef
		case m[2*groupProject] >= 0 && projectRef != "":
			start, end, replacement = m[2*groupProject], m[2*groupProject+1], projectRef
		case m[2*groupIt] >= 0 && taskRef != "":
			start, end, replacement = m[2*groupIt], m[2*groupIt+1], taskRef
		case m[2*groupPtIt] >= 0 && taskRef != "":
			start, end, replacement = m[2*groupPtIt], m[2*groupPtIt+1], " "+taskRef
		default:
			continue
		}
		b.WriteString(s[pos:start])
		b.WriteString(replacement)
		pos = end
	}
	b.WriteString(s[pos:])
	return b.String()
}
