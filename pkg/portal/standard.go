package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/hashicorp/go-retryablehttp"
)

// Standard queries the class portal REST backend.
type Standard struct {
	baseURL     string
	deliverable string
	client      *retryablehttp.Client
}

func NewStandard(cfg Config) *Standard {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.Logger = nil
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	deliverable := cfg.DefaultDeliverable
	if deliverable == "" {
		deliverable = "d0"
	}
	return &Standard{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		deliverable: deliverable,
		client:      client,
	}
}

type defaultDeliverableResponse struct {
	Success *struct {
		DefaultDeliverable string `json:"defaultDeliverable"`
	} `json:"success"`
	Failure *failure `json:"failure"`
}

type personIDResponse struct {
	Success *struct {
		PersonID string `json:"personId"`
	} `json:"success"`
	Failure *failure `json:"failure"`
}

type failure struct {
	Message string `json:"message"`
}

// DefaultDeliverable returns the deliverable a push is graded against.
func (s *Standard) DefaultDeliverable(ctx context.Context) (string, error) {
	if s.baseURL == "" {
		return s.deliverable, nil
	}
	var body defaultDeliverableResponse
	if err := s.get(ctx, "/portal/at/defaultDeliverable", &body); err != nil {
		return "", err
	}
	if body.Failure != nil {
		return "", fmt.Errorf("%w: portal: %s", autotest.ErrUpstream, body.Failure.Message)
	}
	if body.Success == nil || body.Success.DefaultDeliverable == "" {
		return "", fmt.Errorf("%w: portal returned no default deliverable", autotest.ErrUpstream)
	}
	return body.Success.DefaultDeliverable, nil
}

// PersonID maps a GitHub login to the course person id.
func (s *Standard) PersonID(ctx context.Context, githubLogin string) (string, error) {
	login := strings.TrimSpace(githubLogin)
	if login == "" {
		return "", fmt.Errorf("%w: empty github login", autotest.ErrNormalization)
	}
	if s.baseURL == "" {
		return login, nil
	}
	var body personIDResponse
	if err := s.get(ctx, "/portal/at/personId/"+url.PathEscape(login), &body); err != nil {
		return "", err
	}
	if body.Failure != nil {
		return "", fmt.Errorf("%w: portal: %s", autotest.ErrUpstream, body.Failure.Message)
	}
	if body.Success == nil || body.Success.PersonID == "" {
		return "", fmt.Errorf("%w: portal has no person for %s", autotest.ErrUpstream, login)
	}
	return body.Success.PersonID, nil
}

func (s *Standard) get(ctx context.Context, path string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: portal %s: %v", autotest.ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: portal %s: %v", autotest.ErrUpstream, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: portal %s returned %d: %v", autotest.ErrUpstream, path, resp.StatusCode, err)
	}
	return nil
}
