package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create projects and members",
		SQL: `
			CREATE TABLE projects (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id    TEXT NOT NULL,
				created_at  TEXT NOT NULL
			);

			CREATE INDEX idx_projects_owner ON projects (owner_id);

			CREATE TABLE project_members (
				project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id     TEXT NOT NULL,
				added_at    TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (project_id, user_id)
			);

			CREATE INDEX idx_members_user ON project_members (user_id);
		`,
	},
	{
		Version: 2,
		Name:    "create tasks",
		SQL: `
			CREATE TABLE tasks (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id       INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title            TEXT NOT NULL,
				description      TEXT NOT NULL DEFAULT '',
				status           TEXT NOT NULL DEFAULT 'BACKLOG',
				priority         TEXT NOT NULL DEFAULT 'MEDIUM',
				assigned_user_id TEXT NOT NULL DEFAULT '',
				due_date         TEXT,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			);

			CREATE INDEX idx_tasks_project ON tasks (project_id, id);
			CREATE INDEX idx_tasks_status ON tasks (project_id, status);
		`,
	},
}
