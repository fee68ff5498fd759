package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

// EdX serves deployments without a portal backend: every delivery counts
// towards the configured default deliverable and logins are person ids.
type EdX struct {
	deliverable string
}

func NewEdX(cfg Config) *EdX {
	deliverable := cfg.DefaultDeliverable
	if deliverable == "" {
		deliverable = "d0"
	}
	return &EdX{deliverable: deliverable}
}

func (e *EdX) DefaultDeliverable(ctx context.Context) (string, error) {
	return e.deliverable, nil
}

func (e *EdX) PersonID(ctx context.Context, githubLogin string) (string, error) {
	login := strings.TrimSpace(githubLogin)
	if login == "" {
		return "", fmt.Errorf("%w: empty github login", autotest.ErrNormalization)
	}
	return login, nil
}
