package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/org/repo/commits/abc123" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sha": "abc123",
			"html_url": "https://github.example.com/org/repo/commit/abc123",
			"commit": {"committer": {"date": "2024-03-01T12:00:00Z"}}
		}`))
	}))
	defer server.Close()

	client, err := NewTokenClient(context.Background(), "secret-token", server.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	info, err := NewCommitResolver(client).ResolveCommit(context.Background(), "org/repo", "abc123")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.HTMLURL != "https://github.example.com/org/repo/commit/abc123" {
		t.Fatalf("unexpected url %q", info.HTMLURL)
	}
	if info.Timestamp.UnixMilli() != 1709294400000 {
		t.Fatalf("unexpected timestamp %v", info.Timestamp)
	}
}

func TestResolveCommitRejectsBadRepo(t *testing.T) {
	client, err := NewTokenClient(context.Background(), "token", "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := NewCommitResolver(client).ResolveCommit(context.Background(), "no-slash", "abc"); err == nil {
		t.Fatalf("expected invalid repository error")
	}
}

func TestNewTokenClientRequiresToken(t *testing.T) {
	if _, err := NewTokenClient(context.Background(), "", ""); err == nil {
		t.Fatalf("expected missing token error")
	}
}
