package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/taskpilot/internal/github"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/soyeahso/taskpilot/internal/store"
)

// newGitHubFixture wires the GitHub group to a fake API.
func newGitHubFixture(t *testing.T, h http.HandlerFunc) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	backend := store.NewProjectStore(db)
	d := NewDispatcher(GitHubCatalog(), backend, log)
	d.EnableGitHub(github.New(github.Options{BaseURL: ts.URL, Token: "ghp_test"}, log))
	return &fixture{d: d, backend: backend, alice: Caller{UserID: "alice", SessionID: "s1"}}
}

func TestGitHubCatalog(t *testing.T) {
	c := GitHubCatalog()
	assert.Len(t, c.ListTools(), len(Builtin())+8)
	assert.True(t, c.IsMutating(GitHubCreateIssue))
	assert.False(t, c.IsMutating(GitHubListIssues))

	_, ok := DefaultCatalog().GetSchema(GitHubListIssues)
	assert.False(t, ok, "the default catalog leaves the GitHub group out")
}

func TestGitHubTools_NotEnabled(t *testing.T) {
	log := logging.New(nil, "silent")
	d := NewDispatcher(GitHubCatalog(), nil, log)
	res := d.Execute(context.Background(), GitHubListRepositories, `{}`, Caller{UserID: "alice"})
	assert.False(t, res.Success)
	assert.Equal(t, "unknown tool "+GitHubListRepositories, res.Error)
}

func TestGitHubListIssues(t *testing.T) {
	f := newGitHubFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/alice/roadmap/issues", r.URL.Path)
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[{"number":1,"title":"Plan Q3"}]`))
	})

	res := f.d.Execute(context.Background(), GitHubListIssues,
		`{"owner":"alice","repo":"roadmap","state":"CLOSED","per_page":"5"}`, f.alice)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Payload["count"])
	assert.Empty(t, res.Tasks)
	assert.Empty(t, res.Projects)
}

func TestGitHubCreateIssue(t *testing.T) {
	f := newGitHubFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var in github.NewIssue
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Ship v2", in.Title)
		assert.Equal(t, []string{"release", "q3"}, in.Labels)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number":17}`))
	})

	res := f.d.Execute(context.Background(), GitHubCreateIssue,
		`{"owner":"alice","repo":"roadmap","title":"Ship v2","labels":["release","q3"]}`, f.alice)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, float64(17), res.Payload["issueNumber"])
	assert.Equal(t, "Issue 'Ship v2' opened in alice/roadmap", res.Payload["message"])
}

func TestGitHubTools_Validation(t *testing.T) {
	f := newGitHubFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	res := f.d.Execute(context.Background(), GitHubGetRepository, `{"owner":"alice"}`, f.alice)
	assert.Equal(t, "missing required parameter: repo", res.Error)

	res = f.d.Execute(context.Background(), GitHubCreateIssue,
		`{"owner":"alice","repo":"roadmap","title":"x","labels":"release"}`, f.alice)
	assert.Contains(t, res.Error, "invalid arguments:")

	res = f.d.Execute(context.Background(), GitHubListCommits, `{"owner":"alice","repo":"roadmap","page":1.5}`, f.alice)
	assert.False(t, res.Success)
}

func TestGitHubTools_APIErrorReported(t *testing.T) {
	f := newGitHubFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	res := f.d.Execute(context.Background(), GitHubSearchRepositories, `{"query":"kanban"}`, f.alice)
	assert.False(t, res.Success)
	assert.Equal(t, "github: Bad credentials (HTTP 401)", res.Error)
}
