package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/taskpilot/internal/agent"
	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `llm:
  provider: mock
  model: mock-model
logging:
  level: silent
`

// newHome points taskpilot at a fresh home directory with a mock provider.
func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TASKPILOT_HOME", home)
	for _, k := range []string{"TASKPILOT_LLM_PROVIDER", "TASKPILOT_LLM_MODEL", "TASKPILOT_STORE_PATH", "TASKPILOT_LOG_LEVEL", "TASKPILOT_GITHUB_ENABLED"} {
		t.Setenv(k, "")
	}
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(testConfig), 0o600))
	return home
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	require.NoError(t, err, out)
	return out
}

func scripted(t *testing.T, replies ...string) {
	t.Helper()
	var rs []*llm.CompletionResponse
	for _, r := range replies {
		rs = append(rs, &llm.CompletionResponse{Content: r, Model: "mock-model"})
	}
	chatClient = llm.NewScriptedClient(rs...)
	t.Cleanup(func() { chatClient = nil })
}

func TestVersion(t *testing.T) {
	newHome(t)
	assert.Contains(t, mustRun(t, "version"), "taskpilot")
}

func TestProjectCommands(t *testing.T) {
	newHome(t)

	assert.Contains(t, mustRun(t, "--user", "alice", "project", "create", "Website", "--description", "marketing site"),
		"Created project 1 (Website)")
	assert.Contains(t, mustRun(t, "--user", "bob", "project", "list"), "No projects.")

	_, err := run(t, "", "--user", "mallory", "project", "share", "1", "mallory")
	assert.Error(t, err, "non-members cannot share")

	assert.Contains(t, mustRun(t, "--user", "alice", "project", "share", "1", "bob"), "with bob")
	out := mustRun(t, "--user", "bob", "project", "list")
	assert.Contains(t, out, "Website")
	assert.Contains(t, out, "owner=alice")

	_, err = run(t, "", "--user", "alice", "project", "share", "abc", "bob")
	assert.Error(t, err)
}

func TestToolsCommands(t *testing.T) {
	newHome(t)

	list := mustRun(t, "tools", "list")
	assert.Contains(t, list, "move_task")
	assert.Contains(t, list, "(mutating)")

	show := mustRun(t, "tools", "show", "create_task")
	assert.Contains(t, show, "title")
	assert.Contains(t, show, "(required)")

	_, err := run(t, "", "tools", "show", "nope")
	assert.Error(t, err)

	out := mustRun(t, "--user", "alice", "tools", "call", "create_project", `{"name":"Apollo"}`)
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, mustRun(t, "--user", "alice", "project", "list"), "Apollo")

	out, err = run(t, "", "--user", "alice", "tools", "call", "create_task", `{"title":"x"}`)
	assert.Error(t, err)
	assert.Contains(t, out, `"success": false`)
}

func TestToolsCommands_GitHubGroup(t *testing.T) {
	home := newHome(t)
	assert.NotContains(t, mustRun(t, "tools", "list"), "github_create_issue")

	cfg := testConfig + "github:\n  enabled: true\n  token: ghp_test\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(cfg), 0o600))

	list := mustRun(t, "tools", "list")
	assert.Contains(t, list, "github_list_issues")
	assert.Contains(t, list, "github_create_issue")
	assert.Contains(t, mustRun(t, "tools", "show", "github_get_file_content"), "(required)")
}

func TestConfigCommands(t *testing.T) {
	home := newHome(t)

	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", mustRun(t, "config", "path"))
	assert.Contains(t, mustRun(t, "config", "validate"), "Config is valid.")

	mustRun(t, "config", "set", "session.idleMinutes", "45")
	assert.Equal(t, "45\n", mustRun(t, "config", "get", "session.idleMinutes"))
	assert.Contains(t, mustRun(t, "config", "get", "llm"), "provider: mock")

	mustRun(t, "config", "unset", "session.idleMinutes")
	_, err := run(t, "", "config", "get", "session.idleMinutes")
	assert.Error(t, err)

	mustRun(t, "config", "set", "gateway.bind", "everywhere")
	out, err := run(t, "", "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "gateway.bind")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 0.7, parseValue("0.7"))
	assert.Equal(t, "gpt-4o", parseValue("gpt-4o"))
	assert.Equal(t, "nan", parseValue("nan"))
}

func TestChat_OneShot(t *testing.T) {
	newHome(t)
	out := mustRun(t, "chat", "hello")
	assert.Contains(t, out, "mock response")
}

func TestChat_REPLApproves(t *testing.T) {
	newHome(t)
	scripted(t,
		"I'll create project 'Apollo'. "+config.DefaultMarker,
		"Project Apollo is ready.",
	)

	out, err := run(t, "create a project called Apollo\ny\nexit\n", "--user", "alice", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, agent.ConfirmationSuffix)
	assert.Contains(t, out, "Project Apollo is ready.")
	assert.NotContains(t, out, config.DefaultMarker)

	assert.Contains(t, mustRun(t, "--user", "alice", "project", "list"), "Apollo")
}

func TestChat_REPLRejects(t *testing.T) {
	newHome(t)
	scripted(t, "I'll create project 'Apollo'. "+config.DefaultMarker)

	out, err := run(t, "create a project called Apollo\nn\n", "--user", "alice", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, agent.CancelledReply)
	assert.Contains(t, mustRun(t, "--user", "alice", "project", "list"), "No projects.")
}

func TestChat_YesFlag(t *testing.T) {
	newHome(t)
	scripted(t,
		"I'll create project 'Apollo'. "+config.DefaultMarker,
		"Done.",
	)

	out := mustRun(t, "--user", "alice", "chat", "--yes", "create a project called Apollo")
	assert.Contains(t, out, "Done.")
	assert.Contains(t, mustRun(t, "--user", "alice", "project", "list"), "Apollo")
}

func TestChat_NoProvider(t *testing.T) {
	home := newHome(t)
	t.Setenv("OPENROUTER_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"),
		[]byte("llm:\n  provider: openrouter\n  model: x\n"), 0o600))

	_, err := run(t, "", "chat", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no language model available")
}

func TestStorePath(t *testing.T) {
	p := config.Paths{Database: "/data/taskpilot.db"}

	path, err := storePath(config.Config{Store: config.StoreConfig{Driver: "memory"}}, p)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)

	path, err = storePath(config.Config{Store: config.StoreConfig{Driver: "sqlite"}}, p)
	require.NoError(t, err)
	assert.Equal(t, "/data/taskpilot.db", path)

	_, err = storePath(config.Config{Store: config.StoreConfig{Driver: "postgres"}}, p)
	assert.Error(t, err)
}
