package gitlab

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// UserAgent is sent with every API request.
const UserAgent = "gitlab-cleaner"

// Options configures New.
type Options struct {
	Server  string
	Token   string
	Retries int
	Timeout time.Duration
}

// BaseURL turns a host ("gitlab.example.com"), a server URL or an API URL
// into a URL accepted by gitlab.WithBaseURL.
func BaseURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("empty server")
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url '%s' has no host", server)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// New creates a GitLab API client. Extra options are applied last
// (tests use them to inject an http.Client).
func New(opts Options, extra ...gitlab.ClientOptionFunc) (*gitlab.Client, error) {
	base, err := BaseURL(opts.Server)
	if err != nil {
		return nil, err
	}

	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(base),
	}
	if opts.Retries > 0 {
		clientOpts = append(clientOpts, gitlab.WithCustomRetryMax(opts.Retries))
	} else {
		clientOpts = append(clientOpts, gitlab.WithoutRetries())
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}
	clientOpts = append(clientOpts, extra...)

	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("new gitlab client: %w", err)
	}
	client.UserAgent = UserAgent
	return client, nil
}
