package domain

// TaskSummary is the snapshot of a task kept in conversational memory.
type TaskSummary struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status,omitempty"`
	ProjectID int64      `json:"projectId,omitempty"`
}

// ProjectSummary is the snapshot of a project kept in conversational memory.
type ProjectSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Summary returns the memory snapshot of a task.
func (t Task) Summary() TaskSummary {
	return TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status, ProjectID: t.ProjectID}
}

// Summary returns the memory snapshot of a project.
func (p Project) Summary() ProjectSummary {
	return ProjectSummary{ID: p.ID, Name: p.Name}
}
