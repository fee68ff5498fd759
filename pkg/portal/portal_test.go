package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

func TestKindFor(t *testing.T) {
	if KindFor("sdmm") != KindEdX {
		t.Fatalf("expected sdmm to use the edx portal")
	}
	if KindFor("cs310") != KindStandard || KindFor("classytest") != KindStandard {
		t.Fatalf("expected other deployments to use the standard portal")
	}
}

func TestNewSelectsVariant(t *testing.T) {
	p, err := New(KindEdX, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(*EdX); !ok {
		t.Fatalf("expected *EdX, got %T", p)
	}
	p, err = New(KindStandard, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(*Standard); !ok {
		t.Fatalf("expected *Standard, got %T", p)
	}
	if _, err := New("moodle", Config{}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestEdX(t *testing.T) {
	p := NewEdX(Config{})
	deliv, _ := p.DefaultDeliverable(context.Background())
	if deliv != "d0" {
		t.Fatalf("expected d0, got %q", deliv)
	}
	person, err := p.PersonID(context.Background(), "student1")
	if err != nil || person != "student1" {
		t.Fatalf("expected login as person id, got %q, %v", person, err)
	}
	if _, err := p.PersonID(context.Background(), " "); !errors.Is(err, autotest.ErrNormalization) {
		t.Fatalf("expected normalization error, got %v", err)
	}
}

func TestStandardQueriesPortal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/portal/at/defaultDeliverable":
			_, _ = w.Write([]byte(`{"success":{"defaultDeliverable":"d3"}}`))
		case "/portal/at/personId/student1":
			_, _ = w.Write([]byte(`{"success":{"personId":"p42"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"failure":{"message":"unknown login"}}`))
		}
	}))
	defer server.Close()

	p := NewStandard(Config{URL: server.URL + "/"})
	deliv, err := p.DefaultDeliverable(context.Background())
	if err != nil || deliv != "d3" {
		t.Fatalf("expected d3, got %q, %v", deliv, err)
	}
	person, err := p.PersonID(context.Background(), "student1")
	if err != nil || person != "p42" {
		t.Fatalf("expected p42, got %q, %v", person, err)
	}
	if _, err := p.PersonID(context.Background(), "ghost"); !errors.Is(err, autotest.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestStandardWithoutURLUsesDefaults(t *testing.T) {
	p := NewStandard(Config{DefaultDeliverable: "d1"})
	deliv, err := p.DefaultDeliverable(context.Background())
	if err != nil || deliv != "d1" {
		t.Fatalf("expected d1, got %q, %v", deliv, err)
	}
	person, err := p.PersonID(context.Background(), "student1")
	if err != nil || person != "student1" {
		t.Fatalf("expected login fallback, got %q, %v", person, err)
	}
}
