package tools

import (
	"context"
	"fmt"

	"github.com/soyeahso/taskpilot/internal/github"
)

// GitHub tool names.
const (
	GitHubListRepositories   = "github_list_repositories"
	GitHubGetRepository      = "github_get_repository"
	GitHubListIssues         = "github_list_issues"
	GitHubCreateIssue        = "github_create_issue"
	GitHubListPullRequests   = "github_list_pull_requests"
	GitHubGetFileContent     = "github_get_file_content"
	GitHubListCommits        = "github_list_commits"
	GitHubSearchRepositories = "github_search_repositories"
)

// GitHubBackend is the repository service behind the github_* tools.
type GitHubBackend interface {
	ListRepositories(ctx context.Context, l github.Listing) ([]map[string]any, error)
	GetRepository(ctx context.Context, owner, repo string) (map[string]any, error)
	ListIssues(ctx context.Context, owner, repo string, l github.Listing) ([]map[string]any, error)
	CreateIssue(ctx context.Context, owner, repo string, in github.NewIssue) (map[string]any, error)
	ListPullRequests(ctx context.Context, owner, repo string, l github.Listing) ([]map[string]any, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (map[string]any, error)
	ListCommits(ctx context.Context, owner, repo string, f github.CommitFilter) ([]map[string]any, error)
	SearchRepositories(ctx context.Context, s github.Search) (map[string]any, error)
}

var (
	ownerParam     = Param{Type: "string", Description: "Repository owner"}
	repoParam      = Param{Type: "string", Description: "Repository name"}
	perPageParam   = Param{Type: "integer", Description: "Items per page (default 30, max 100)"}
	pageParam      = Param{Type: "integer", Description: "Page number (default 1)"}
	directionParam = Param{Type: "string", Description: "Sort direction (default desc)", Enum: []string{"asc", "desc"}}
	stateParam     = Param{Type: "string", Description: "State filter (default open)", Enum: []string{"open", "closed", "all"}}
)

// GitHubTools returns the optional repository tool group.
func GitHubTools() []Schema {
	return []Schema{
		{
			Name:        GitHubListRepositories,
			Description: "List repositories of the configured GitHub account.",
			Parameters: map[string]Param{
				"type":      {Type: "string", Description: "Repository type (default owner)", Enum: []string{"all", "owner", "member", "public", "private"}},
				"sort":      {Type: "string", Description: "Sort field (default updated)", Enum: []string{"created", "updated", "pushed", "full_name"}},
				"direction": directionParam,
				"per_page":  perPageParam,
				"page":      pageParam,
			},
		},
		{
			Name:        GitHubGetRepository,
			Description: "Get details of one GitHub repository.",
			Parameters:  map[string]Param{"owner": ownerParam, "repo": repoParam},
			Required:    []string{"owner", "repo"},
		},
		{
			Name:        GitHubListIssues,
			Description: "List issues of a GitHub repository.",
			Parameters: map[string]Param{
				"owner":     ownerParam,
				"repo":      repoParam,
				"state":     stateParam,
				"sort":      {Type: "string", Description: "Sort field (default created)", Enum: []string{"created", "updated", "comments"}},
				"direction": directionParam,
				"per_page":  perPageParam,
				"page":      pageParam,
			},
			Required: []string{"owner", "repo"},
		},
		{
			Name:        GitHubCreateIssue,
			Description: "Open an issue in a GitHub repository.",
			Parameters: map[string]Param{
				"owner":     ownerParam,
				"repo":      repoParam,
				"title":     {Type: "string", Description: "Issue title"},
				"body":      {Type: "string", Description: "Issue description"},
				"labels":    {Type: "array", Description: "Labels to apply", Items: &Param{Type: "string"}},
				"assignees": {Type: "array", Description: "Logins to assign", Items: &Param{Type: "string"}},
			},
			Required: []string{"owner", "repo", "title"},
			Mutating: true,
		},
		{
			Name:        GitHubListPullRequests,
			Description: "List pull requests of a GitHub repository.",
			Parameters: map[string]Param{
				"owner":     ownerParam,
				"repo":      repoParam,
				"state":     stateParam,
				"sort":      {Type: "string", Description: "Sort field (default created)", Enum: []string{"created", "updated", "popularity", "long-running"}},
				"direction": directionParam,
				"per_page":  perPageParam,
				"page":      pageParam,
			},
			Required: []string{"owner", "repo"},
		},
		{
			Name:        GitHubGetFileContent,
			Description: "Read a file from a GitHub repository.",
			Parameters: map[string]Param{
				"owner": ownerParam,
				"repo":  repoParam,
				"path":  {Type: "string", Description: "File path inside the repository"},
				"ref":   {Type: "string", Description: "Branch, tag or commit SHA"},
			},
			Required: []string{"owner", "repo", "path"},
		},
		{
			Name:        GitHubListCommits,
			Description: "List commits of a GitHub repository.",
			Parameters: map[string]Param{
				"owner":    ownerParam,
				"repo":     repoParam,
				"sha":      {Type: "string", Description: "Branch, tag or commit SHA to start from"},
				"path":     {Type: "string", Description: "Only commits touching this path"},
				"author":   {Type: "string", Description: "Only commits by this author"},
				"per_page": perPageParam,
				"page":     pageParam,
			},
			Required: []string{"owner", "repo"},
		},
		{
			Name:        GitHubSearchRepositories,
			Description: "Search GitHub repositories, e.g. 'kanban language:go'.",
			Parameters: map[string]Param{
				"query":    {Type: "string", Description: "Search query"},
				"sort":     {Type: "string", Description: "Sort field (default stars)", Enum: []string{"stars", "forks", "help-wanted-issues", "updated"}},
				"order":    directionParam,
				"per_page": perPageParam,
				"page":     pageParam,
			},
			Required: []string{"query"},
		},
	}
}

// GitHubCatalog returns the builtin tools followed by the GitHub group.
func GitHubCatalog() *Catalog {
	return MustCatalog(append(Builtin(), GitHubTools()...)...)
}

// EnableGitHub registers the github_* handlers. The catalog must also carry
// GitHubTools for the model to see them. Call before the first Execute.
func (d *Dispatcher) EnableGitHub(gh GitHubBackend) {
	d.github = gh
	d.handlers[GitHubListRepositories] = d.ghListRepositories
	d.handlers[GitHubGetRepository] = d.ghGetRepository
	d.handlers[GitHubListIssues] = d.ghListIssues
	d.handlers[GitHubCreateIssue] = d.ghCreateIssue
	d.handlers[GitHubListPullRequests] = d.ghListPullRequests
	d.handlers[GitHubGetFileContent] = d.ghGetFileContent
	d.handlers[GitHubListCommits] = d.ghListCommits
	d.handlers[GitHubSearchRepositories] = d.ghSearchRepositories
}

func argStrings(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argPage(args map[string]any) (github.Page, error) {
	per, _, err := argInt(args, "per_page")
	if err != nil {
		return github.Page{}, err
	}
	page, _, err := argInt(args, "page")
	if err != nil {
		return github.Page{}, err
	}
	return github.Page{PerPage: int(per), Page: int(page)}, nil
}

func argListing(args map[string]any) (github.Listing, error) {
	page, err := argPage(args)
	if err != nil {
		return github.Listing{}, err
	}
	l := github.Listing{Page: page}
	l.Type, _ = argString(args, "type")
	l.State, _ = argString(args, "state")
	l.Sort, _ = argString(args, "sort")
	l.Direction, _ = argString(args, "direction")
	return l, nil
}

func argRepo(args map[string]any) (owner, repo string) {
	owner, _ = argString(args, "owner")
	repo, _ = argString(args, "repo")
	return owner, repo
}

func listResult(key string, items []map[string]any) Result {
	if items == nil {
		items = []map[string]any{}
	}
	return Result{Success: true, Payload: map[string]any{key: items, "count": len(items)}}
}

func (d *Dispatcher) ghListRepositories(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	l, err := argListing(args)
	if err != nil {
		return Result{}, err
	}
	repos, err := d.github.ListRepositories(ctx, l)
	if err != nil {
		return Result{}, err
	}
	return listResult("repositories", repos), nil
}

func (d *Dispatcher) ghGetRepository(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	owner, repo := argRepo(args)
	r, err := d.github.GetRepository(ctx, owner, repo)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Payload: map[string]any{"repository": r}}, nil
}

func (d *Dispatcher) ghListIssues(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	l, err := argListing(args)
	if err != nil {
		return Result{}, err
	}
	owner, repo := argRepo(args)
	issues, err := d.github.ListIssues(ctx, owner, repo, l)
	if err != nil {
		return Result{}, err
	}
	return listResult("issues", issues), nil
}

func (d *Dispatcher) ghCreateIssue(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	owner, repo := argRepo(args)
	in := github.NewIssue{
		Labels:    argStrings(args, "labels"),
		Assignees: argStrings(args, "assignees"),
	}
	in.Title, _ = argString(args, "title")
	in.Body, _ = argString(args, "body")

	issue, err := d.github.CreateIssue(ctx, owner, repo, in)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Payload: map[string]any{
			"issue":       issue,
			"issueNumber": issue["number"],
			"message":     fmt.Sprintf("Issue '%s' opened in %s/%s", in.Title, owner, repo),
		},
	}, nil
}

func (d *Dispatcher) ghListPullRequests(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	l, err := argListing(args)
	if err != nil {
		return Result{}, err
	}
	owner, repo := argRepo(args)
	prs, err := d.github.ListPullRequests(ctx, owner, repo, l)
	if err != nil {
		return Result{}, err
	}
	return listResult("pullRequests", prs), nil
}

func (d *Dispatcher) ghGetFileContent(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	owner, repo := argRepo(args)
	path, _ := argString(args, "path")
	ref, _ := argString(args, "ref")

	file, err := d.github.GetFileContent(ctx, owner, repo, path, ref)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Payload: map[string]any{"file": file}}, nil
}

func (d *Dispatcher) ghListCommits(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	page, err := argPage(args)
	if err != nil {
		return Result{}, err
	}
	f := github.CommitFilter{Page: page}
	f.SHA, _ = argString(args, "sha")
	f.Path, _ = argString(args, "path")
	f.Author, _ = argString(args, "author")

	owner, repo := argRepo(args)
	commits, err := d.github.ListCommits(ctx, owner, repo, f)
	if err != nil {
		return Result{}, err
	}
	return listResult("commits", commits), nil
}

func (d *Dispatcher) ghSearchRepositories(ctx context.Context, args map[string]any, _ Caller) (Result, error) {
	page, err := argPage(args)
	if err != nil {
		return Result{}, err
	}
	s := github.Search{Page: page}
	s.Query, _ = argString(args, "query")
	s.Sort, _ = argString(args, "sort")
	s.Order, _ = argString(args, "order")

	res, err := d.github.SearchRepositories(ctx, s)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Payload: map[string]any{"searchResult": res}}, nil
}
