package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubConfig locates a directory of film pages in a repository.
type GitHubConfig struct {
	Owner    string
	Repo     string
	BasePath string
	Ref      string // branch, tag or commit; empty means the default branch
	Token    string // optional; raises the API rate limit
}

// ParseGitHubLocation splits "owner/repo[/base/path]".
func ParseGitHubLocation(loc string) (GitHubConfig, error) {
	parts := strings.SplitN(strings.Trim(loc, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return GitHubConfig{}, fmt.Errorf("github location %q: want owner/repo[/path]", loc)
	}
	cfg := GitHubConfig{Owner: parts[0], Repo: parts[1]}
	if len(parts) == 3 {
		cfg.BasePath = parts[2]
	}
	return cfg, nil
}

// GitHubSource fetches film pages through the GitHub contents API.
type GitHubSource struct {
	client *github.Client
	cfg    GitHubConfig
}

// NewGitHubSource creates a rate-limited client. Primary and secondary rate
// limits are waited out rather than surfaced as errors.
func NewGitHubSource(cfg GitHubConfig) (*GitHubSource, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if cfg.Token != "" {
		ghClient = ghClient.WithAuthToken(cfg.Token)
	}
	return newGitHubSource(ghClient, cfg), nil
}

func newGitHubSource(client *github.Client, cfg GitHubConfig) *GitHubSource {
	return &GitHubSource{client: client, cfg: cfg}
}

func (g *GitHubSource) contentOptions() *github.RepositoryContentGetOptions {
	if g.cfg.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: g.cfg.Ref}
}

// List recursively lists all markdown files below BasePath.
func (g *GitHubSource) List(ctx context.Context) ([]string, error) {
	return g.listRecursive(ctx, g.cfg.BasePath, "")
}

func (g *GitHubSource) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	_, dirContents, _, err := g.client.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Repo, fullPath, g.contentOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	var pages []string
	for _, item := range dirContents {
		name := item.GetName()
		rel := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if strings.HasSuffix(name, ".md") {
				pages = append(pages, rel)
			}
		case "dir":
			sub, err := g.listRecursive(ctx, path.Join(fullPath, name), rel)
			if err != nil {
				return nil, err
			}
			pages = append(pages, sub...)
		}
	}
	return pages, nil
}

// Fetch downloads and decodes one page.
func (g *GitHubSource) Fetch(ctx context.Context, relativePath string) (*Document, error) {
	fullPath := path.Join(g.cfg.BasePath, relativePath)

	file, _, resp, err := g.client.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Repo, fullPath, g.contentOptions())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("fetch %s: %w", fullPath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if file == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	var raw string
	if file.Content != nil {
		raw = *file.Content
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &Document{
		Path:    relativePath,
		Content: content,
		SHA:     file.GetSHA(),
		URL:     file.GetHTMLURL(),
	}, nil
}

// Revision returns the SHA of the latest commit touching BasePath.
func (g *GitHubSource) Revision(ctx context.Context) (string, error) {
	opts := &github.CommitsListOptions{
		Path:        g.cfg.BasePath,
		SHA:         g.cfg.Ref,
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, _, err := g.client.Repositories.ListCommits(ctx, g.cfg.Owner, g.cfg.Repo, opts)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", g.cfg.BasePath)
	}
	return commits[0].GetSHA(), nil
}
