package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brandonmcclure/classy/pkg/autotest"
	ghprovider "github.com/brandonmcclure/classy/pkg/providers/github"
)

// CommitResolver looks up commit metadata missing from a push payload.
type CommitResolver interface {
	ResolveCommit(ctx context.Context, repoFullName, sha string) (ghprovider.CommitInfo, error)
}

// Normalizer shapes GitHub deliveries into commit targets.
type Normalizer struct {
	Portal   autotest.ClassPortal
	Resolver CommitResolver
	Logger   *log.Logger
	Now      func() time.Time
}

type repositoryPayload struct {
	FullName string          `json:"full_name"`
	CloneURL string          `json:"clone_url"`
	HTMLURL  string          `json:"html_url"`
	URL      string          `json:"url"`
	PushedAt json.RawMessage `json:"pushed_at"`
}

type commentPayload struct {
	Comment struct {
		Body      string `json:"body"`
		CommitID  string `json:"commit_id"`
		CreatedAt string `json:"created_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Repository repositoryPayload `json:"repository"`
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Created    bool   `json:"created"`
	Deleted    bool   `json:"deleted"`
	Forced     bool   `json:"forced"`
	HeadCommit *struct {
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		URL       string `json:"url"`
	} `json:"head_commit"`
	Commits []json.RawMessage `json:"commits"`
	Pusher  struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Repository repositoryPayload `json:"repository"`
}

const zeroSHA = "0000000000000000000000000000000000000000"

var deliverableTag = regexp.MustCompile(`(?i)#(d\d+|project\d+)\b`)

// ProcessComment normalizes a commit_comment delivery.
func (n *Normalizer) ProcessComment(ctx context.Context, raw []byte) (*autotest.CommitTarget, error) {
	var payload commentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode comment: %v", autotest.ErrNormalization, err)
	}
	sha := strings.TrimSpace(payload.Comment.CommitID)
	repo := payload.Repository
	if sha == "" || repo.FullName == "" {
		return nil, fmt.Errorf("%w: comment without commit or repository", autotest.ErrNormalization)
	}

	person, err := n.person(ctx, payload.Comment.User.Login)
	if err != nil {
		return nil, err
	}
	body := payload.Comment.Body
	deliv := ""
	if match := deliverableTag.FindStringSubmatch(body); match != nil {
		deliv = strings.ToLower(match[1])
	} else if deliv, err = n.deliverable(ctx); err != nil {
		return nil, err
	}

	return &autotest.CommitTarget{
		Kind:        autotest.KindComment,
		RepoID:      repo.FullName,
		CloneURL:    repo.CloneURL,
		CommitSHA:   sha,
		CommitURL:   commitURL(repo, sha),
		PostbackURL: postbackURL(repo, sha),
		PersonID:    person,
		Timestamp:   n.timestamp(payload.Comment.CreatedAt),
		DelivID:     deliv,
		Comment: &autotest.CommentInfo{
			Body:  body,
			Flags: parseFlags(body),
		},
	}, nil
}

// ProcessPush normalizes a push delivery. It returns a nil target for pushes
// that delete a branch.
func (n *Normalizer) ProcessPush(ctx context.Context, raw []byte) (*autotest.CommitTarget, error) {
	var payload pushPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode push: %v", autotest.ErrNormalization, err)
	}
	if payload.HeadCommit == nil && (payload.Deleted || payload.After == zeroSHA) {
		return nil, nil
	}
	repo := payload.Repository
	if repo.FullName == "" {
		return nil, fmt.Errorf("%w: push without repository", autotest.ErrNormalization)
	}

	sha := payload.After
	url := ""
	var stamp int64
	if payload.HeadCommit != nil && payload.HeadCommit.ID != "" {
		sha = payload.HeadCommit.ID
		url = payload.HeadCommit.URL
		stamp = n.timestamp(payload.HeadCommit.Timestamp)
	} else {
		url, stamp = n.resolveHead(ctx, repo, sha)
	}
	if sha == "" {
		return nil, fmt.Errorf("%w: push without head commit", autotest.ErrNormalization)
	}
	if url == "" {
		url = commitURL(repo, sha)
	}

	login := payload.Pusher.Name
	if login == "" {
		login = payload.Sender.Login
	}
	person, err := n.person(ctx, login)
	if err != nil {
		return nil, err
	}
	deliv, err := n.deliverable(ctx)
	if err != nil {
		return nil, err
	}

	return &autotest.CommitTarget{
		Kind:        autotest.KindPush,
		RepoID:      repo.FullName,
		CloneURL:    repo.CloneURL,
		CommitSHA:   sha,
		CommitURL:   url,
		PostbackURL: postbackURL(repo, sha),
		Ref:         payload.Ref,
		PersonID:    person,
		Timestamp:   stamp,
		DelivID:     deliv,
		Push: &autotest.PushInfo{
			Pusher:  login,
			Commits: len(payload.Commits),
			Created: payload.Created,
			Forced:  payload.Forced,
		},
	}, nil
}

// resolveHead fills commit metadata for a push without head_commit, falling
// back to the repository pushed_at time when no API client is configured.
func (n *Normalizer) resolveHead(ctx context.Context, repo repositoryPayload, sha string) (string, int64) {
	if n.Resolver != nil && sha != "" {
		info, err := n.Resolver.ResolveCommit(ctx, repo.FullName, sha)
		if err == nil {
			stamp := n.now().UnixMilli()
			if !info.Timestamp.IsZero() {
				stamp = info.Timestamp.UnixMilli()
			}
			return info.HTMLURL, stamp
		}
		n.logf("commit lookup for %s@%s failed: %v", repo.FullName, sha, err)
	}
	if stamp, ok := pushedAt(repo.PushedAt); ok {
		return "", stamp
	}
	return "", n.now().UnixMilli()
}

func (n *Normalizer) person(ctx context.Context, login string) (string, error) {
	if n.Portal == nil {
		if login == "" {
			return "", fmt.Errorf("%w: delivery without actor", autotest.ErrNormalization)
		}
		return login, nil
	}
	person, err := n.Portal.PersonID(ctx, login)
	if err != nil {
		return "", fmt.Errorf("person id for %q: %w", login, err)
	}
	return person, nil
}

func (n *Normalizer) deliverable(ctx context.Context) (string, error) {
	if n.Portal == nil {
		return "", nil
	}
	deliv, err := n.Portal.DefaultDeliverable(ctx)
	if err != nil {
		return "", fmt.Errorf("default deliverable: %w", err)
	}
	return deliv, nil
}

func (n *Normalizer) timestamp(value string) int64 {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UnixMilli()
	}
	return n.now().UnixMilli()
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Normalizer) logf(format string, args ...interface{}) {
	if n.Logger != nil {
		n.Logger.Printf(format, args...)
	}
}

func parseFlags(body string) autotest.CommentFlags {
	var flags autotest.CommentFlags
	for _, field := range strings.Fields(strings.ToLower(body)) {
		switch strings.TrimRight(field, ".,;:!?") {
		case "#force":
			flags.Force = true
		case "#silent":
			flags.Silent = true
		case "#schedule":
			flags.Schedule = true
		case "#unschedule":
			flags.Unschedule = true
		case "#check":
			flags.Check = true
		}
	}
	return flags
}

// pushedAt accepts the unix seconds GitHub sends on push events as well as an
// RFC 3339 string.
func pushedAt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return seconds * 1000, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := time.Parse(time.RFC3339, text); err == nil {
			return parsed.UnixMilli(), true
		}
	}
	return 0, false
}

func commitURL(repo repositoryPayload, sha string) string {
	if repo.HTMLURL == "" {
		return ""
	}
	return strings.TrimRight(repo.HTMLURL, "/") + "/commit/" + sha
}

func postbackURL(repo repositoryPayload, sha string) string {
	if repo.URL == "" {
		return ""
	}
	return strings.TrimRight(repo.URL, "/") + "/commits/" + sha + "/comments"
}
