package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brandonmcclure/classy/pkg/autotest"
	ghprovider "github.com/brandonmcclure/classy/pkg/providers/github"
)

type stubPortal struct {
	deliv string
	err   error
}

func (p stubPortal) DefaultDeliverable(ctx context.Context) (string, error) {
	return p.deliv, p.err
}

func (p stubPortal) PersonID(ctx context.Context, login string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "person-" + login, nil
}

type stubResolver struct {
	info ghprovider.CommitInfo
	err  error
}

func (r stubResolver) ResolveCommit(ctx context.Context, repo, sha string) (ghprovider.CommitInfo, error) {
	return r.info, r.err
}

func TestParseFlags(t *testing.T) {
	flags := parseFlags("please #Force this, #check. but not #forced")
	if !flags.Force || !flags.Check {
		t.Fatalf("expected force and check, got %+v", flags)
	}
	if flags.Silent || flags.Schedule || flags.Unschedule {
		t.Fatalf("unexpected flags: %+v", flags)
	}
}

func TestProcessCommentDeliverableTag(t *testing.T) {
	n := &Normalizer{Portal: stubPortal{deliv: "d0"}}
	raw := []byte(`{"comment":{"body":"@autobot #D2 #silent","commit_id":"abc123","created_at":"2024-03-01T12:00:00Z","user":{"login":"ta"}},"repository":{"full_name":"org/repo","html_url":"https://github.com/org/repo","url":"https://api.github.com/repos/org/repo"}}`)

	target, err := n.ProcessComment(context.Background(), raw)
	if err != nil {
		t.Fatalf("process comment: %v", err)
	}
	if target.DelivID != "d2" {
		t.Fatalf("expected deliverable from tag, got %q", target.DelivID)
	}
	if target.PersonID != "person-ta" {
		t.Fatalf("unexpected person: %q", target.PersonID)
	}
	if target.Timestamp != 1709294400000 {
		t.Fatalf("unexpected timestamp: %d", target.Timestamp)
	}
	if target.CommitURL != "https://github.com/org/repo/commit/abc123" {
		t.Fatalf("unexpected commit url: %q", target.CommitURL)
	}
	if target.PostbackURL != "https://api.github.com/repos/org/repo/commits/abc123/comments" {
		t.Fatalf("unexpected postback url: %q", target.PostbackURL)
	}
	if !target.Comment.Flags.Silent {
		t.Fatalf("expected silent flag")
	}
}

func TestProcessCommentRequiresCommit(t *testing.T) {
	n := &Normalizer{}
	_, err := n.ProcessComment(context.Background(), []byte(`{"comment":{"body":"hi"},"repository":{"full_name":"org/repo"}}`))
	if !errors.Is(err, autotest.ErrNormalization) {
		t.Fatalf("expected normalization error, got %v", err)
	}
}

func TestProcessCommentPortalFailure(t *testing.T) {
	n := &Normalizer{Portal: stubPortal{err: autotest.ErrUpstream}}
	raw := []byte(`{"comment":{"body":"hi","commit_id":"abc","user":{"login":"s"}},"repository":{"full_name":"org/repo"}}`)
	if _, err := n.ProcessComment(context.Background(), raw); !errors.Is(err, autotest.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestProcessPushUsesResolver(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &Normalizer{
		Portal:   stubPortal{deliv: "d1"},
		Resolver: stubResolver{info: ghprovider.CommitInfo{HTMLURL: "https://github.com/org/repo/commit/feed", Timestamp: stamp}},
	}
	raw := []byte(`{"ref":"refs/heads/main","after":"feed","head_commit":null,"sender":{"login":"s"},"repository":{"full_name":"org/repo"}}`)

	target, err := n.ProcessPush(context.Background(), raw)
	if err != nil {
		t.Fatalf("process push: %v", err)
	}
	if target.CommitSHA != "feed" || target.CommitURL != "https://github.com/org/repo/commit/feed" {
		t.Fatalf("unexpected target: %+v", target)
	}
	if target.Timestamp != stamp.UnixMilli() {
		t.Fatalf("unexpected timestamp: %d", target.Timestamp)
	}
	if target.Push.Pusher != "s" {
		t.Fatalf("expected sender to stand in for pusher, got %q", target.Push.Pusher)
	}
}

func TestProcessPushFallsBackToPushedAt(t *testing.T) {
	n := &Normalizer{
		Portal:   stubPortal{deliv: "d1"},
		Resolver: stubResolver{err: errors.New("rate limited")},
	}
	raw := []byte(`{"after":"feed","pusher":{"name":"s"},"repository":{"full_name":"org/repo","html_url":"https://github.com/org/repo","pushed_at":1709294400}}`)

	target, err := n.ProcessPush(context.Background(), raw)
	if err != nil {
		t.Fatalf("process push: %v", err)
	}
	if target.Timestamp != 1709294400000 {
		t.Fatalf("unexpected timestamp: %d", target.Timestamp)
	}
	if target.CommitURL != "https://github.com/org/repo/commit/feed" {
		t.Fatalf("unexpected commit url: %q", target.CommitURL)
	}
}

func TestProcessPushDeletedBranch(t *testing.T) {
	n := &Normalizer{}
	target, err := n.ProcessPush(context.Background(), []byte(`{"deleted":true,"after":"`+zeroSHA+`","repository":{"full_name":"org/repo"}}`))
	if err != nil || target != nil {
		t.Fatalf("expected nil target without error, got %+v %v", target, err)
	}
}

func TestPushedAt(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want int64
		ok   bool
	}{
		"seconds": {raw: `1709294400`, want: 1709294400000, ok: true},
		"rfc3339": {raw: `"2024-03-01T12:00:00Z"`, want: 1709294400000, ok: true},
		"null":    {raw: `null`},
		"garbage": {raw: `"yesterday"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := pushedAt(json.RawMessage(tc.raw))
			if ok != tc.ok || got != tc.want {
				t.Fatalf("pushedAt(%s) = %d, %v", tc.raw, got, ok)
			}
		})
	}
}
