package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.github.com"

// Client is the official GitHub SDK client.
type Client = gh.Client

// NewTokenClient creates a GitHub SDK client authenticated with a static token.
// A non-default baseURL selects a GitHub Enterprise server.
func NewTokenClient(ctx context.Context, token, baseURL string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && baseURL != defaultBaseURL {
		return gh.NewEnterpriseClient(baseURL, baseURL, httpClient)
	}
	return gh.NewClient(httpClient), nil
}

// CommitInfo is the commit metadata a push target needs.
type CommitInfo struct {
	HTMLURL   string
	Timestamp time.Time
}

// CommitResolver looks up commits that a push payload did not describe.
type CommitResolver struct {
	client *Client
}

func NewCommitResolver(client *Client) *CommitResolver {
	return &CommitResolver{client: client}
}

// ResolveCommit fetches the commit identified by sha in repoFullName ("owner/name").
func (r *CommitResolver) ResolveCommit(ctx context.Context, repoFullName, sha string) (CommitInfo, error) {
	owner, name, ok := strings.Cut(repoFullName, "/")
	if !ok || owner == "" || name == "" {
		return CommitInfo{}, fmt.Errorf("invalid repository name %q", repoFullName)
	}
	commit, _, err := r.client.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("get commit %s@%s: %w", repoFullName, sha, err)
	}
	info := CommitInfo{HTMLURL: commit.GetHTMLURL()}
	if date := commit.GetCommit().GetCommitter().GetDate(); !date.IsZero() {
		info.Timestamp = date.Time
	} else if date := commit.GetCommit().GetAuthor().GetDate(); !date.IsZero() {
		info.Timestamp = date.Time
	}
	return info, nil
}
