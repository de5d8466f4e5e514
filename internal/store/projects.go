package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/taskpilot/internal/domain"
)

// ProjectStore is the project and task service backed by SQLite.
// A user may read or change a project, and its tasks, only as its owner
// or as a member.
type ProjectStore struct {
	db  *DB
	now func() time.Time
}

// NewProjectStore creates a project service using the given database.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db, now: time.Now}
}

const projectColumns = `p.id, p.name, p.description, p.owner_id, p.created_at`

const taskColumns = `t.id, t.project_id, t.title, t.description, t.status, t.priority,
	t.assigned_user_id, t.due_date, t.created_at, t.updated_at`

// accessibleProjects restricts a query on projects p to those the user can see.
const accessibleProjects = `(p.owner_id = ? OR EXISTS (
	SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = ?))`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &createdAt); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status, priority, createdAt, updatedAt string
	var due sql.NullString
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority,
		&t.AssignedUserID, &due, &createdAt, &updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(priority)
	if due.Valid && due.String != "" {
		d := parseTime(due.String)
		t.DueDate = &d
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// checkAccess returns ErrNotFound when the project does not exist and
// ErrForbidden when the user is neither owner nor member.
func (s *ProjectStore) checkAccess(ctx context.Context, projectID int64, userID string) error {
	var owner string
	err := s.db.sql.QueryRowContext(ctx, `SELECT owner_id FROM projects WHERE id = ?`, projectID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %d: %w", projectID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading project %d: %w", projectID, err)
	}
	if owner == userID {
		return nil
	}

	var n int
	err = s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %d: %w", projectID, domain.ErrForbidden)
	}
	return nil
}

// ListProjects returns the projects the user owns or belongs to.
func (s *ProjectStore) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE `+accessibleProjects+` ORDER BY p.id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject returns a single project the user can access.
func (s *ProjectStore) GetProject(ctx context.Context, projectID int64, userID string) (domain.Project, error) {
	if err := s.checkAccess(ctx, projectID, userID); err != nil {
		return domain.Project{}, err
	}
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`, projectID)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, fmt.Errorf("loading project %d: %w", projectID, err)
	}
	return p, nil
}

// CreateProject inserts a project owned by creatorID.
func (s *ProjectStore) CreateProject(ctx context.Context, name, description, creatorID string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("%w: project name is required", domain.ErrInvalid)
	}
	if creatorID == "" {
		return domain.Project{}, fmt.Errorf("%w: creator is required", domain.ErrInvalid)
	}

	now := s.now()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO projects (name, description, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		name, description, creatorID, formatTime(now),
	)
	if err != nil {
		return domain.Project{}, fmt.Errorf("creating project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Project{}, fmt.Errorf("reading project id: %w", err)
	}

	s.db.log.Debug().Int64("projectId", id).Str("owner", creatorID).Msg("project created")
	return domain.Project{ID: id, Name: name, Description: description, OwnerID: creatorID, CreatedAt: now.UTC()}, nil
}

// AddMember grants a user access to a project. Adding an existing member is a no-op.
func (s *ProjectStore) AddMember(ctx context.Context, projectID int64, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user is required", domain.ErrInvalid)
	}
	var exists int
	if err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		return fmt.Errorf("loading project %d: %w", projectID, err)
	}
	if exists == 0 {
		return fmt.Errorf("project %d: %w", projectID, domain.ErrNotFound)
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// ListTasks returns the tasks of one project, or of every accessible
// project when projectID is nil.
func (s *ProjectStore) ListTasks(ctx context.Context, projectID *int64, userID string) ([]domain.Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if projectID != nil {
		if err := s.checkAccess(ctx, *projectID, userID); err != nil {
			return nil, err
		}
		rows, err = s.db.sql.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks t WHERE t.project_id = ? ORDER BY t.id`, *projectID)
	} else {
		rows, err = s.db.sql.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks t JOIN projects p ON p.id = t.project_id
			 WHERE `+accessibleProjects+` ORDER BY t.id`,
			userID, userID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask returns a task the user can access.
func (s *ProjectStore) GetTask(ctx context.Context, taskID int64, userID string) (domain.Task, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %d: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("loading task %d: %w", taskID, err)
	}
	if err := s.checkAccess(ctx, t.ProjectID, userID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CreateTask inserts a task into a project the user can access.
func (s *ProjectStore) CreateTask(ctx context.Context, in domain.NewTask, userID string) (domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: task title is required", domain.ErrInvalid)
	}
	if err := s.checkAccess(ctx, in.ProjectID, userID); err != nil {
		return domain.Task{}, err
	}
	if in.Status == "" {
		in.Status = domain.StatusBacklog
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}

	now := s.now().UTC()
	var due any
	if in.DueDate != nil {
		due = formatTime(*in.DueDate)
	}
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO tasks (project_id, title, description, status, priority, assigned_user_id, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ProjectID, in.Title, in.Description, string(in.Status), string(in.Priority),
		in.AssignedUserID, due, formatTime(now), formatTime(now),
	)
	if err != nil {
		return domain.Task{}, fmt.Errorf("creating task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Task{}, fmt.Errorf("reading task id: %w", err)
	}

	return domain.Task{
		ID:             id,
		ProjectID:      in.ProjectID,
		Title:          in.Title,
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		AssignedUserID: in.AssignedUserID,
		DueDate:        in.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateTask applies the non-nil fields of upd.
func (s *ProjectStore) UpdateTask(ctx context.Context, taskID int64, upd domain.TaskUpdate, userID string) (domain.Task, error) {
	t, err := s.GetTask(ctx, taskID, userID)
	if err != nil {
		return domain.Task{}, err
	}
	if upd.Empty() {
		return t, nil
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return domain.Task{}, fmt.Errorf("%w: task title must not be empty", domain.ErrInvalid)
		}
		t.Title = title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}
	t.UpdatedAt = s.now().UTC()

	var due any
	if t.DueDate != nil {
		due = formatTime(*t.DueDate)
	}
	_, err = s.db.sql.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?, updated_at = ?
		 WHERE id = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), due, formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return domain.Task{}, fmt.Errorf("updating task %d: %w", taskID, err)
	}
	return t, nil
}

// MoveTask changes only the status of a task.
func (s *ProjectStore) MoveTask(ctx context.Context, taskID int64, status domain.TaskStatus, userID string) (domain.Task, error) {
	return s.UpdateTask(ctx, taskID, domain.TaskUpdate{Status: &status}, userID)
}
