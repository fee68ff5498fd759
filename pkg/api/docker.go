package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/runtime"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
)

const msgRuntimeUnavailable = "container runtime unavailable"

// ImagesHandler lists the images known to the container runtime.
type ImagesHandler struct {
	Runtime runtime.Client
	Logger  *log.Logger
}

func (h *ImagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Runtime == nil {
		h.logf("list images: %v: %s", autotest.ErrUpstream, msgRuntimeUnavailable)
		http.Error(w, msgRuntimeUnavailable, http.StatusInternalServerError)
		return
	}

	images, err := h.Runtime.ImageList(r.Context(), image.ListOptions{})
	if err != nil {
		h.logf("list images failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if images == nil {
		images = []image.Summary{}
	}
	writeJSON(w, images)
}

func (h *ImagesHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

type buildRequest struct {
	Remote string `json:"remote"`
	Tag    string `json:"tag"`
}

// BuildHandler builds an image from a remote context and streams the runtime
// progress back as newline-delimited JSON.
type BuildHandler struct {
	Runtime runtime.Client
	Logger  *log.Logger
	MaxBody int64
}

func (h *BuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}

	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid build request: %v", err), http.StatusBadRequest)
		return
	}
	req.Remote = strings.TrimSpace(req.Remote)
	if req.Remote == "" {
		http.Error(w, "missing remote", http.StatusBadRequest)
		return
	}
	if h.Runtime == nil {
		h.logf("build %s: %v: %s", req.Remote, autotest.ErrUpstream, msgRuntimeUnavailable)
		http.Error(w, msgRuntimeUnavailable, http.StatusInternalServerError)
		return
	}

	opts := build.ImageBuildOptions{RemoteContext: req.Remote}
	if tag := strings.TrimSpace(req.Tag); tag != "" {
		opts.Tags = []string{tag}
	}
	resp, err := h.Runtime.ImageBuild(r.Context(), nil, opts)
	if err != nil {
		h.logf("build %s rejected: %v", req.Remote, err)
		internal.IncBuildStream("rejected")
		http.Error(w, err.Error(), runtime.StatusCode(err))
		return
	}

	stream := runtime.NewProgressStream(resp.Body)
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	outcome := h.relay(w, stream, req.Remote)
	internal.IncBuildStream(outcome)
}

// relay copies progress records to w until the stream ends. Failures after
// the status line can only be logged.
func (h *BuildHandler) relay(w http.ResponseWriter, stream *runtime.ProgressStream, remote string) string {
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for {
		msg, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return "completed"
		}
		if err != nil {
			h.logf("build %s: %v", remote, err)
			return "error"
		}
		if err := encoder.Encode(msg); err != nil {
			h.logf("build %s: client went away: %v", remote, err)
			return "client_gone"
		}
		if flusher != nil {
			flusher.Flush()
		}
		if msg.Error != nil {
			h.logf("build %s failed: %s", remote, msg.Error.Message)
			return "error"
		}
	}
}

func (h *BuildHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}
