// Package export provides a client for the build-export event feeds.
package export

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"buildtime-agent/src/sanitize"
)

const (
	// APIPrefix is the path prefix of every export endpoint.
	APIPrefix = "/build-export/v1"

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 4096
	// maxErrorText caps the cleaned body kept in StatusError.
	maxErrorText = 300
)

// Credential is the static credential sent with every request. A token
// takes precedence over username/password.
type Credential struct {
	Username string
	Password string
	Token    string
}

func (c Credential) header() string {
	if c.Token != "" {
		return "Bearer " + c.Token
	}
	if c.Username == "" && c.Password == "" {
		return ""
	}
	raw := c.Username + ":" + c.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Client opens event-stream feeds on the export API.
type Client struct {
	baseURL    string
	credential Credential
	httpClient *http.Client
	insecure   bool
}

// Option configures a Client.
type Option func(*Client)

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		c.insecure = insecure
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new export API client.
func NewClient(baseURL string, credential Credential, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.insecure)
	}
	return c
}

func newHTTPClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 10 * time.Second
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in
	}
	// No client-wide Timeout: feeds stay open for as long as the server streams.
	return &http.Client{Transport: gzhttp.Transport(transport)}
}

// BuildsSincePath returns the discovery feed path for builds since t.
func BuildsSincePath(since time.Time) string {
	return fmt.Sprintf("%s/builds/since/%s", APIPrefix, strconv.FormatInt(since.UnixMilli(), 10))
}

// BuildEventsPath returns the detail feed path for a single build.
func BuildEventsPath(buildID string) string {
	return fmt.Sprintf("%s/build/%s/events", APIPrefix, url.PathEscape(buildID))
}

// Open issues a streaming GET against path. When lastEventID is non-empty it
// is sent as Last-Event-ID so the server resumes after that event. The
// caller owns the returned body.
func (c *Client) Open(ctx context.Context, path, lastEventID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if auth := c.credential.header(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: sanitize.OneLine(string(body), maxErrorText)}
	}

	return resp.Body, nil
}
