package tools

import "github.com/soyeahso/taskpilot/internal/domain"

// Tool names.
const (
	ListProjects  = "list_projects"
	CreateProject = "create_project"
	ListTasks     = "list_tasks"
	CreateTask    = "create_task"
	UpdateTask    = "update_task"
	MoveTask      = "move_task"
)

func statusNames() []string {
	out := make([]string, len(domain.AllStatuses))
	for i, s := range domain.AllStatuses {
		out[i] = string(s)
	}
	return out
}

func priorityNames() []string {
	out := make([]string, len(domain.AllPriorities))
	for i, p := range domain.AllPriorities {
		out[i] = string(p)
	}
	return out
}

// Builtin returns the project-management tool set.
func Builtin() []Schema {
	return []Schema{
		{
			Name:        ListProjects,
			Description: "List all projects the user owns or is a member of.",
			Parameters:  map[string]Param{},
		},
		{
			Name:        CreateProject,
			Description: "Create a new project owned by the user.",
			Parameters: map[string]Param{
				"name":        {Type: "string", Description: "Project name"},
				"description": {Type: "string", Description: "Optional project description"},
			},
			Required: []string{"name"},
			Mutating: true,
		},
		{
			Name:        ListTasks,
			Description: "List tasks. Pass projectId to list one project's tasks, or omit it to list tasks across all projects.",
			Parameters: map[string]Param{
				"projectId": {Type: "integer", Description: "Project ID"},
			},
		},
		{
			Name:        CreateTask,
			Description: "Create a task in a project.",
			Parameters: map[string]Param{
				"title":          {Type: "string", Description: "Task title"},
				"projectId":      {Type: "integer", Description: "Project ID"},
				"description":    {Type: "string", Description: "Task description"},
				"priority":       {Type: "string", Description: "Task priority", Enum: priorityNames()},
				"status":         {Type: "string", Description: "Initial status (defaults to BACKLOG)", Enum: statusNames()},
				"assignedUserId": {Type: "string", Description: "User to assign the task to"},
				"dueDate":        {Type: "string", Description: "Due date, ISO-8601 (YYYY-MM-DD)"},
			},
			Required: []string{"title", "projectId"},
			Mutating: true,
		},
		{
			Name:        UpdateTask,
			Description: "Update fields of an existing task. Only the given fields change.",
			Parameters: map[string]Param{
				"taskId":      {Type: "integer", Description: "Task ID"},
				"title":       {Type: "string", Description: "New title"},
				"description": {Type: "string", Description: "New description"},
				"priority":    {Type: "string", Description: "New priority", Enum: priorityNames()},
				"status":      {Type: "string", Description: "New status", Enum: statusNames()},
				"dueDate":     {Type: "string", Description: "New due date, ISO-8601 (YYYY-MM-DD)"},
			},
			Required: []string{"taskId"},
			Mutating: true,
		},
		{
			Name:        MoveTask,
			Description: "Move a task to another status column.",
			Parameters: map[string]Param{
				"taskId": {Type: "integer", Description: "Task ID"},
				"status": {Type: "string", Description: "Target status", Enum: statusNames()},
			},
			Required: []string{"taskId", "status"},
			Mutating: true,
		},
	}
}

// DefaultCatalog returns a catalog of the builtin tools.
func DefaultCatalog() *Catalog {
	return MustCatalog(Builtin()...)
}
