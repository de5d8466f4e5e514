package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/taskpilot/internal/domain"
	"github.com/soyeahso/taskpilot/internal/logging"
)

// Backend is the project and task service the tools operate on.
type Backend interface {
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	CreateProject(ctx context.Context, name, description, creatorID string) (domain.Project, error)
	ListTasks(ctx context.Context, projectID *int64, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, in domain.NewTask, userID string) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID int64, upd domain.TaskUpdate, userID string) (domain.Task, error)
	MoveTask(ctx context.Context, taskID int64, status domain.TaskStatus, userID string) (domain.Task, error)
}

// Caller identifies who a tool runs for.
type Caller struct {
	UserID    string
	SessionID string
}

// Observer is told about every tool execution.
type Observer interface {
	ObserveTool(caller Caller, tool string, res Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(caller Caller, tool string, res Result)

// ObserveTool calls f.
func (f ObserverFunc) ObserveTool(caller Caller, tool string, res Result) { f(caller, tool, res) }

type handler func(ctx context.Context, args map[string]any, caller Caller) (Result, error)

// Dispatcher executes tool calls against a Backend.
type Dispatcher struct {
	catalog  *Catalog
	backend  Backend
	github   GitHubBackend
	handlers map[string]handler
	log      *logging.Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewDispatcher creates a dispatcher for the builtin tools in catalog.
func NewDispatcher(catalog *Catalog, backend Backend, log *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		catalog: catalog,
		backend: backend,
		log:     log.Sub("tools"),
	}
	d.handlers = map[string]handler{
		ListProjects:  d.listProjects,
		CreateProject: d.createProject,
		ListTasks:     d.listTasks,
		CreateTask:    d.createTask,
		UpdateTask:    d.updateTask,
		MoveTask:      d.moveTask,
	}
	return d
}

// Catalog returns the catalog the dispatcher validates against.
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// AddObserver registers o to receive every result.
func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Execute runs one tool call. Every failure, including malformed input,
// an unknown tool and domain errors, is reported in the Result.
func (d *Dispatcher) Execute(ctx context.Context, name, argumentsJSON string, caller Caller) Result {
	start := time.Now()
	res := d.execute(ctx, name, argumentsJSON, caller)

	ev := d.log.Debug()
	if !res.Success {
		ev = d.log.Info().Str("error", res.Error)
	}
	ev.Str("tool", name).
		Str("user", caller.UserID).
		Bool("success", res.Success).
		Dur("duration", time.Since(start)).
		Msg("tool executed")

	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()
	for _, o := range observers {
		o.ObserveTool(caller, name, res)
	}
	return res
}

func (d *Dispatcher) execute(ctx context.Context, name, argumentsJSON string, caller Caller) Result {
	args, ok := parseArguments(argumentsJSON)
	if !ok {
		return Fail("invalid arguments")
	}

	schema, ok := d.catalog.GetSchema(name)
	if !ok {
		return Fail("unknown tool " + name)
	}
	h, ok := d.handlers[name]
	if !ok {
		return Fail("unknown tool " + name)
	}

	normalize(schema, args)
	for _, req := range schema.Required {
		if v, present := args[req]; !present || v == nil {
			return Fail("missing required parameter: " + req)
		}
	}
	if err := d.catalog.validate(name, args); err != nil {
		return Fail("invalid arguments: " + flatten(err.Error()))
	}

	res, err := h(ctx, args, caller)
	if err != nil {
		return Fail(err.Error())
	}
	return res
}

// parseArguments decodes a JSON object; empty input is an empty object.
// Numbers stay json.Number so large ids keep every digit.
func parseArguments(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, true
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}

// normalize coerces numeric strings for numeric parameters and matches
// enum values case-insensitively, in place.
func normalize(s Schema, args map[string]any) {
	for name, p := range s.Parameters {
		v, ok := args[name]
		if !ok {
			continue
		}
		str, isStr := v.(string)
		switch {
		case isStr && (p.Type == "integer" || p.Type == "number"):
			num := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(str), "#"))
			if _, err := strconv.ParseFloat(num, 64); err == nil && json.Valid([]byte(num)) {
				args[name] = json.Number(num)
			}
		case isStr && len(p.Enum) > 0:
			for _, e := range p.Enum {
				if strings.EqualFold(strings.TrimSpace(str), e) {
					args[name] = e
					break
				}
			}
		}
	}
}

func flatten(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", "; ")), " ")
}

func argString(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// argInt reads an integer id. Absent values report ok=false; values that
// are not exact integers are an error rather than a rounded id.
func argInt(args map[string]any, key string) (id int64, ok bool, err error) {
	v, present := args[key]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true, nil
		}
		if f, err := n.Float64(); err == nil && exactInt(f) {
			return int64(f), true, nil
		}
	case float64:
		if exactInt(n) {
			return int64(n), true, nil
		}
	case int64:
		return n, true, nil
	case int:
		return int64(n), true, nil
	}
	return 0, false, fmt.Errorf("%w: %s must be an integer id", domain.ErrInvalid, key)
}

func exactInt(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) <= maxExactInt
}

func argDate(args map[string]any, key string) (*time.Time, error) {
	s, ok := argString(args, key)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be an ISO-8601 date", domain.ErrInvalid, key)
}

func (d *Dispatcher) listProjects(ctx context.Context, _ map[string]any, caller Caller) (Result, error) {
	projects, err := d.backend.ListProjects(ctx, caller.UserID)
	if err != nil {
		return Result{}, err
	}

	items := make([]map[string]any, 0, len(projects))
	summaries := make([]domain.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		items = append(items, map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"description": p.Description,
		})
		summaries = append(summaries, p.Summary())
	}
	return Result{
		Success:  true,
		Payload:  map[string]any{"projects": items, "count": len(items)},
		Projects: summaries,
	}, nil
}

func (d *Dispatcher) createProject(ctx context.Context, args map[string]any, caller Caller) (Result, error) {
	name, _ := argString(args, "name")
	desc, _ := argString(args, "description")

	p, err := d.backend.CreateProject(ctx, name, desc, caller.UserID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Payload: map[string]any{
			"projectId": p.ID,
			"name":      p.Name,
			"message":   fmt.Sprintf("Project '%s' created with ID %d", p.Name, p.ID),
		},
		Projects: []domain.ProjectSummary{p.Summary()},
	}, nil
}

func taskItem(t domain.Task) map[string]any {
	return map[string]any{
		"id":        t.ID,
		"title":     t.Title,
		"status":    string(t.Status),
		"priority":  string(t.Priority),
		"projectId": t.ProjectID,
	}
}

func (d *Dispatcher) listTasks(ctx context.Context, args map[string]any, caller Caller) (Result, error) {
	var projectID *int64
	id, ok, err := argInt(args, "projectId")
	if err != nil {
		return Result{}, err
	}
	if ok {
		projectID = &id
	}

	tasks, err := d.backend.ListTasks(ctx, projectID, caller.UserID)
	if err != nil {
		return Result{}, err
	}

	items := make([]map[string]any, 0, len(tasks))
	summaries := make([]domain.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskItem(t))
		summaries = append(summaries, t.Summary())
	}
	payload := map[string]any{"tasks": items, "count": len(items)}
	if projectID != nil {
		payload["projectId"] = *projectID
	}
	return Result{Success: true, Payload: payload, Tasks: summaries}, nil
}

func taskResult(t domain.Task, message string) Result {
	return Result{
		Success: true,
		Payload: map[string]any{
			"taskId":    t.ID,
			"title":     t.Title,
			"projectId": t.ProjectID,
			"status":    string(t.Status),
			"priority":  string(t.Priority),
			"message":   message,
		},
		Tasks: []domain.TaskSummary{t.Summary()},
	}
}

func (d *Dispatcher) createTask(ctx context.Context, args map[string]any, caller Caller) (Result, error) {
	in := domain.NewTask{}
	in.Title, _ = argString(args, "title")
	projectID, _, err := argInt(args, "projectId")
	if err != nil {
		return Result{}, err
	}
	in.ProjectID = projectID
	in.Description, _ = argString(args, "description")
	in.AssignedUserID, _ = argString(args, "assignedUserId")
	if s, ok := argString(args, "priority"); ok {
		in.Priority = domain.Priority(s)
	}
	if s, ok := argString(args, "status"); ok {
		in.Status = domain.TaskStatus(s)
	}
	in.DueDate, err = argDate(args, "dueDate")
	if err != nil {
		return Result{}, err
	}

	t, err := d.backend.CreateTask(ctx, in, caller.UserID)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t, fmt.Sprintf("Task '%s' created with ID %d", t.Title, t.ID)), nil
}

func (d *Dispatcher) updateTask(ctx context.Context, args map[string]any, caller Caller) (Result, error) {
	id, _, err := argInt(args, "taskId")
	if err != nil {
		return Result{}, err
	}

	var upd domain.TaskUpdate
	if s, ok := argString(args, "title"); ok {
		upd.Title = &s
	}
	if s, ok := argString(args, "description"); ok {
		upd.Description = &s
	}
	if s, ok := argString(args, "status"); ok {
		st := domain.TaskStatus(s)
		upd.Status = &st
	}
	if s, ok := argString(args, "priority"); ok {
		p := domain.Priority(s)
		upd.Priority = &p
	}
	upd.DueDate, err = argDate(args, "dueDate")
	if err != nil {
		return Result{}, err
	}

	t, err := d.backend.UpdateTask(ctx, id, upd, caller.UserID)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t, fmt.Sprintf("Task %d updated", t.ID)), nil
}

func (d *Dispatcher) moveTask(ctx context.Context, args map[string]any, caller Caller) (Result, error) {
	id, _, err := argInt(args, "taskId")
	if err != nil {
		return Result{}, err
	}
	s, _ := argString(args, "status")

	t, err := d.backend.MoveTask(ctx, id, domain.TaskStatus(s), caller.UserID)
	if err != nil {
		return Result{}, err
	}
	return taskResult(t, fmt.Sprintf("Task %d moved to %s", t.ID, t.Status)), nil
}
