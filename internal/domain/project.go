// Package domain holds the project-management entities shared by the store,
// the tool layer, and the conversational memory.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors reported by domain services.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("access denied")
	ErrInvalid   = errors.New("invalid input")
)

// TaskStatus is the board column a task sits in.
type TaskStatus string

const (
	StatusBacklog        TaskStatus = "BACKLOG"
	StatusReadyToDevelop TaskStatus = "READY_TO_DEVELOP"
	StatusInProgress     TaskStatus = "IN_PROGRESS"
	StatusInReview       TaskStatus = "IN_REVIEW"
	StatusDone           TaskStatus = "DONE"
)

// AllStatuses lists statuses in board order.
var AllStatuses = []TaskStatus{
	StatusBacklog,
	StatusReadyToDevelop,
	StatusInProgress,
	StatusInReview,
	StatusDone,
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// AllPriorities lists priorities from lowest to highest.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority accepts a priority name in any case.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllPriorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalid, s)
}

// Project groups tasks and carries an access list.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Task is a unit of work inside a project.
type Task struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	AssignedUserID string     `json:"assignedUserId,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewTask carries the fields accepted when creating a task.
type NewTask struct {
	Title          string
	ProjectID      int64
	Description    string
	Priority       Priority
	Status         TaskStatus
	AssignedUserID string
	DueDate        *time.Time
}

// TaskUpdate carries optional field changes; nil means unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *Priority
	DueDate     *time.Time
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Priority == nil && u.DueDate == nil
}
