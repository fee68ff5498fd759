package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"

	"github.com/go-playground/webhooks/v6/github"
	gh "github.com/google/go-github/v57/github"
	"github.com/google/uuid"
)

// Response bodies. Webhook senders are untrusted, so failures never carry detail.
const (
	msgPong          = "pong"
	msgNotHandled    = "Webhook event not handled."
	msgBranchDeleted = "Webhook not handled (if branch was deleted this is normal)"
	msgFailed        = "Failed to process commit."
)

var githubEvents = []github.Event{
	github.CommitCommentEvent,
	github.PushEvent,
}

// GitHubOptions configures a GitHubHandler.
type GitHubOptions struct {
	Secret      string
	Engine      autotest.Engine
	Normalizer  *Normalizer
	Logger      *log.Logger
	MaxBody     int64
	DebugEvents bool
}

// GitHubHandler receives GitHub deliveries, normalizes them into commit
// targets and hands them to the engine.
type GitHubHandler struct {
	hook        *github.Webhook
	secret      string
	engine      autotest.Engine
	normalizer  *Normalizer
	logger      *log.Logger
	maxBody     int64
	debugEvents bool
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(opts GitHubOptions) (*GitHubHandler, error) {
	if opts.Engine == nil {
		return nil, errors.New("github handler requires an engine")
	}
	// Signatures are checked in parse, so the decoder itself carries no secret.
	hook, err := github.New()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = &Normalizer{}
	}
	if normalizer.Logger == nil {
		normalizer.Logger = logger
	}
	return &GitHubHandler{
		hook:        hook,
		secret:      opts.Secret,
		engine:      opts.Engine,
		normalizer:  normalizer,
		logger:      logger,
		maxBody:     opts.MaxBody,
		debugEvents: opts.DebugEvents,
	}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	eventName := r.Header.Get("X-GitHub-Event")
	label := eventLabel(eventName)
	logger.Printf("github delivery event=%s delivery=%s", eventName, r.Header.Get("X-GitHub-Delivery"))

	switch github.Event(eventName) {
	case github.PingEvent:
		internal.IncWebhookEvent(label, "pong")
		writeJSON(w, http.StatusOK, msgPong)
		return
	case github.CommitCommentEvent, github.PushEvent:
	default:
		logger.Printf("unhandled github event %q", eventName)
		internal.IncWebhookEvent(label, "unhandled")
		writeJSON(w, http.StatusBadRequest, msgNotHandled)
		return
	}

	ctx := internal.ContextWithRequestID(r.Context(), reqID)
	target, err := h.receive(ctx, logger, r)
	switch {
	case err != nil:
		logger.Printf("github %s failed: %v", eventName, err)
		internal.IncWebhookEvent(label, "failed")
		writeJSON(w, http.StatusBadRequest, msgFailed)
	case target == nil:
		logger.Printf("github %s produced no target", eventName)
		internal.IncWebhookEvent(label, "ignored")
		writeJSON(w, http.StatusBadRequest, msgBranchDeleted)
	default:
		internal.IncWebhookEvent(label, "handled")
		writeJSON(w, http.StatusOK, target)
	}
}

// receive parses, normalizes and dispatches one delivery. Panics raised by the
// normalizer or the engine are turned into errors.
func (h *GitHubHandler) receive(ctx context.Context, logger *log.Logger, r *http.Request) (target *autotest.CommitTarget, err error) {
	defer func() {
		if v := recover(); v != nil {
			internal.IncRecovery("webhook")
			target, err = nil, fmt.Errorf("%w: panic: %v", autotest.ErrInternal, v)
		}
	}()

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", autotest.ErrNormalization, err)
	}
	if h.debugEvents {
		logger.Printf("github event=%s body=%s", r.Header.Get("X-GitHub-Event"), rawBody)
	}

	payload, err := h.parse(logger, r, rawBody)
	if err != nil {
		return nil, err
	}

	switch payload.(type) {
	case github.CommitCommentPayload:
		target, err = h.normalizer.ProcessComment(ctx, rawBody)
	case github.PushPayload:
		target, err = h.normalizer.ProcessPush(ctx, rawBody)
	default:
		return nil, fmt.Errorf("%w: unexpected payload %T", autotest.ErrValidation, payload)
	}
	if err != nil || target == nil {
		return nil, err
	}
	target.DeliveryID = r.Header.Get("X-GitHub-Delivery")

	if err := autotest.Dispatch(ctx, h.engine, target); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return target, nil
}

// parse verifies the signature and decodes the payload. X-Hub-Signature-256
// is preferred; the legacy sha1 header is only consulted when it is absent.
func (h *GitHubHandler) parse(logger *log.Logger, r *http.Request, rawBody []byte) (interface{}, error) {
	if h.secret != "" {
		signature := r.Header.Get(gh.SHA256SignatureHeader)
		if signature == "" {
			signature = r.Header.Get(gh.SHA1SignatureHeader)
			if signature != "" {
				logger.Printf("github delivery signed with legacy sha1 only")
			}
		}
		if signature == "" {
			return nil, fmt.Errorf("%w: missing signature", autotest.ErrNormalization)
		}
		if err := gh.ValidateSignature(signature, rawBody, []byte(h.secret)); err != nil {
			return nil, fmt.Errorf("%w: signature: %v", autotest.ErrNormalization, err)
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(rawBody))
	payload, err := h.hook.Parse(r, githubEvents...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", autotest.ErrNormalization, err)
	}
	return payload, nil
}

// eventLabel maps the sender-supplied event name onto a fixed metric label.
func eventLabel(name string) string {
	switch github.Event(name) {
	case github.PingEvent, github.PushEvent, github.CommitCommentEvent:
		return name
	default:
		return "other"
	}
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
