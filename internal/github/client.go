// Package github is a thin read-only client for the GitHub Actions REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Client defaults.
const (
	DefaultAPIURL    = "https://api.github.com"
	defaultTimeout   = 30 * time.Second
	apiVersion       = "2022-11-28"
	maxResponseBytes = 64 << 20
)

// ErrNotFound matches any 404 returned by the API.
var ErrNotFound = errors.New("github: not found")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: GET %s returned status %d: %s", e.URL, e.StatusCode, e.Message)
}

// Is lets callers use errors.Is(err, ErrNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Category classifies the error for breaker and logging decisions.
func (e *APIError) Category() types.FailureCategory {
	return classifyHTTPStatus(e.StatusCode)
}

func classifyHTTPStatus(code int) types.FailureCategory {
	// 429 is rate limiting, not a caller mistake.
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return types.FailurePermanent
	}
	return types.FailureTransient
}

// Client performs authenticated GET requests against the API.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	breakerCfg BreakerConfig
	logger     *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (GHES or a test server).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker replaces the default circuit breaker settings. Each repository
// gets its own breaker built from cfg.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultAPIURL,
		userAgent:  "fleetgate",
		httpClient: &http.Client{Timeout: defaultTimeout},
		breakerCfg: DefaultBreakerConfig(),
		logger:     slog.Default(),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// breaker returns the circuit breaker guarding repo, creating it on first use.
// Breakers are per repository so one failing repo never rejects calls for
// another.
func (c *Client) breaker(repo string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[repo]
	if !ok {
		cb = newBreaker("github:"+repo, c.breakerCfg, c.logger)
		c.breakers[repo] = cb
	}
	return cb
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, repo, path string, query url.Values, out interface{}) error {
	body, err := c.get(ctx, repo, path, query, "application/vnd.github+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github: decoding %s: %w", path, err)
	}
	return nil
}

// get performs a GET through repo's circuit breaker and returns the raw body.
func (c *Client) get(ctx context.Context, repo, path string, query url.Values, accept string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	res, err := c.breaker(repo).Execute(func() (interface{}, error) {
		return c.do(ctx, u, accept)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("github: GET %s: %w", path, err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) do(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: GET %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("github: reading response from %s: %w", u, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			URL:        u,
			Message:    apiMessage(body),
		}
	}
	return body, nil
}

// apiMessage extracts the "message" field GitHub puts in error bodies.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// repoPath validates an owner/name pair and returns the /repos prefix for it.
func repoPath(repo string) (string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("github: invalid repository %q, want owner/name", repo)
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}
