package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/taskpilot/internal/agent"
	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/github"
	"github.com/soyeahso/taskpilot/internal/hooks"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/soyeahso/taskpilot/internal/metrics"
	"github.com/soyeahso/taskpilot/internal/session"
	"github.com/soyeahso/taskpilot/internal/store"
	"github.com/soyeahso/taskpilot/internal/tools"
)

// app is the wired taskpilot core shared by serve, chat and the
// project/tool commands.
type app struct {
	cfg        config.Config
	log        *logging.Logger
	db         *store.DB
	projects   *store.ProjectStore
	dispatcher *tools.Dispatcher
	sessions   *session.Store
	hooks      *hooks.Manager
	metrics    *metrics.Metrics

	// runner is nil when no model provider could be configured;
	// llmErr says why.
	runner *agent.Runner
	llmErr error
}

// storePath returns the database location for the configured driver.
func storePath(cfg config.Config, p config.Paths) (string, error) {
	switch cfg.Store.Driver {
	case "memory":
		return ":memory:", nil
	case "sqlite", "":
		return p.DatabasePath(cfg.Store), nil
	default:
		return "", fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openStore opens the project database without the model stack.
func openStore(cfg config.Config, p config.Paths, log *logging.Logger) (*store.DB, *store.ProjectStore, error) {
	path, err := storePath(cfg, p)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, store.NewProjectStore(db), nil
}

// catalogFor returns the tool catalog for cfg, with the GitHub group when
// it is enabled.
func catalogFor(cfg config.Config) *tools.Catalog {
	if cfg.GitHub.Enabled {
		return tools.GitHubCatalog()
	}
	return tools.DefaultCatalog()
}

// newDispatcher builds the dispatcher over projects and, when enabled, GitHub.
func newDispatcher(cfg config.Config, projects tools.Backend, log *logging.Logger) *tools.Dispatcher {
	d := tools.NewDispatcher(catalogFor(cfg), projects, log)
	if cfg.GitHub.Enabled {
		d.EnableGitHub(github.New(github.Options{
			BaseURL:           cfg.GitHub.APIURL,
			Token:             cfg.GitHub.Token,
			Timeout:           time.Duration(cfg.GitHub.TimeoutSeconds) * time.Second,
			RequestsPerMinute: cfg.GitHub.RequestsPerMinute,
		}, log))
	}
	return d
}

// newModelClient builds the failover client over the configured provider.
func newModelClient(cfg config.LLMConfig, log *logging.Logger) (llm.Client, error) {
	registry, err := llm.NewRegistryFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	return agent.NewFailoverClient(registry, cfg.Model, cfg.Fallbacks, log), nil
}

// newApp wires the core. client overrides the configured provider when set.
func newApp(cfg config.Config, p config.Paths, log *logging.Logger, client llm.Client) (*app, error) {
	db, projects, err := openStore(cfg, p, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		projects:   projects,
		dispatcher: newDispatcher(cfg, projects, log),
		sessions: session.NewStore(log,
			session.WithTTL(time.Duration(cfg.Session.IdleMinutes)*time.Minute)),
		hooks: hooks.NewManager(log),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.metrics.Subscribe(a.hooks)
	}

	if client == nil {
		client, a.llmErr = newModelClient(cfg.LLM, log)
	}
	if client != nil {
		a.runner = agent.NewRunner(agent.RunnerConfigFrom(cfg), agent.Deps{
			Client:     client,
			Dispatcher: a.dispatcher,
			Sessions:   a.sessions,
			Hooks:      a.hooks,
			Log:        log,
		})
	}
	return a, nil
}

// chatRunner returns the runner or the reason there is none.
func (a *app) chatRunner() (*agent.Runner, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("no language model available: %w", a.llmErr)
	}
	return a.runner, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
