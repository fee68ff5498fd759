// Package runtime connects to the container runtime used for image builds.
package runtime

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// Client is the subset of the Docker Engine API the gateway needs.
type Client interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Config selects the runtime endpoint and its TLS material.
type Config struct {
	Host        string
	CAPath      string
	SSLCertPath string
	SSLKeyPath  string
	APIVersion  string
}

var _ Client = (*client.Client)(nil)

// New builds a Docker client. A host with an http, https or tcp scheme is
// dialled over TCP with TLS and a pinned API version; anything else uses the
// local default socket with version negotiation.
func New(cfg Config) (*client.Client, error) {
	remote, ok, err := remoteHost(cfg.Host)
	if err != nil {
		return nil, err
	}
	if !ok {
		return client.NewClientWithOpts(client.WithAPIVersionNegotiation())
	}

	opts := []client.Opt{
		client.WithHost(remote),
		client.WithTLSClientConfig(cfg.CAPath, cfg.SSLCertPath, cfg.SSLKeyPath),
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	return client.NewClientWithOpts(opts...)
}

// remoteHost rewrites an http(s)/tcp host into the tcp://host:port form the
// Docker client expects. ok is false when the local socket should be used.
func remoteHost(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse docker host %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" && scheme != "tcp" {
		return "", false, nil
	}
	host := parsed.Hostname()
	if host == "" {
		return "", false, fmt.Errorf("docker host %q has no hostname", raw)
	}
	port := parsed.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	return "tcp://" + net.JoinHostPort(host, port), true, nil
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return "2376"
	}
}
