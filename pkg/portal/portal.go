// Package portal resolves course metadata from the class portal.
package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

// Kind selects the portal variant a deployment talks to.
type Kind string

const (
	KindStandard Kind = "standard"
	KindEdX      Kind = "edx"
)

// edxDeployment is the deployment name served by the EdX variant.
const edxDeployment = "sdmm"

// Config configures both variants.
type Config struct {
	URL                string
	Timeout            time.Duration
	DefaultDeliverable string
}

// KindFor returns the portal variant used by the named deployment.
func KindFor(name string) Kind {
	if strings.EqualFold(strings.TrimSpace(name), edxDeployment) {
		return KindEdX
	}
	return KindStandard
}

// New builds the portal variant for kind.
func New(kind Kind, cfg Config) (autotest.ClassPortal, error) {
	switch kind {
	case KindStandard, "":
		return NewStandard(cfg), nil
	case KindEdX:
		return NewEdX(cfg), nil
	default:
		return nil, fmt.Errorf("unknown portal kind %q", kind)
	}
}
