package targets

import (
	"testing"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

func TestRowRoundTripKeepsDetail(t *testing.T) {
	target := autotest.CommitTarget{
		Kind:      autotest.KindComment,
		RepoID:    "org/repo",
		CommitSHA: "abc123",
		DelivID:   "d2",
		Timestamp: 42,
		Comment:   &autotest.CommentInfo{Body: "#force #d2", Flags: autotest.CommentFlags{Force: true}},
	}
	data, err := toRow(target)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if data.Kind != "comment" || data.RepoID != "org/repo" || data.Timestamp != 42 {
		t.Fatalf("unexpected indexed columns: %+v", data)
	}

	restored, err := fromRow(data)
	if err != nil {
		t.Fatalf("fromRow: %v", err)
	}
	if restored.Comment == nil || !restored.Comment.Flags.Force {
		t.Fatalf("expected comment detail to survive, got %+v", restored)
	}
}

func TestFromRowWithoutPayload(t *testing.T) {
	restored, err := fromRow(row{Kind: "push", RepoID: "org/repo", CommitSHA: "def"})
	if err != nil {
		t.Fatalf("fromRow: %v", err)
	}
	if restored.Kind != autotest.KindPush || restored.CommitSHA != "def" {
		t.Fatalf("unexpected target: %+v", restored)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
