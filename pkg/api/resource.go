package api

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ResourceHandler serves build artifacts from Root. Files are opened on every
// request.
type ResourceHandler struct {
	Root   string
	Prefix string
	Logger *log.Logger
}

func (h *ResourceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prefix := h.Prefix
	if prefix == "" {
		prefix = "/resource/"
	}
	rel := filepath.FromSlash(strings.TrimPrefix(r.URL.Path, prefix))
	if !filepath.IsLocal(rel) {
		http.Error(w, fmt.Sprintf("resource %q: %v", rel, fs.ErrNotExist), http.StatusNotFound)
		return
	}
	name := filepath.Join(h.Root, rel)

	file, err := os.Open(name)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.fail(w, err)
		return
	}
	if info.IsDir() {
		h.fail(w, &fs.PathError{Op: "read", Path: name, Err: errors.New("is a directory")})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, file); err != nil && h.Logger != nil {
		h.Logger.Printf("serve %s: %v", name, err)
	}
}

func (h *ResourceHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, fs.ErrNotExist) {
		status = http.StatusNotFound
	}
	if h.Logger != nil {
		h.Logger.Printf("resource: %v", err)
	}
	http.Error(w, err.Error(), status)
}
