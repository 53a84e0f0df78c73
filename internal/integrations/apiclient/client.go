package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"growth-engine/internal/integrations/paramstore"
)

const defaultTimeout = 10 * time.Second

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("apiclient: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a JSON-over-HTTP client authenticated with a bearer token held in
// Parameter Store. The token is fetched on the first request and reused for
// the lifetime of the process.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	getter     paramstore.Getter
	tokenParam string

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New creates a client named name (used in error messages) for baseURL.
func New(name, baseURL string, getter paramstore.Getter, tokenParam string, opts ...Option) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "apiclient"
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base url must not be empty", name)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%s: parse base url: %w", name, err)
	}
	if getter == nil {
		return nil, fmt.Errorf("%s: paramstore getter must not be nil", name)
	}
	tokenParam = strings.TrimSpace(tokenParam)
	if tokenParam == "" {
		return nil, fmt.Errorf("%s: token parameter must not be empty", name)
	}
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		getter:     getter,
		tokenParam: tokenParam,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken caches a successfully fetched token. Failures are not cached,
// so a transient SSM error is retried on the next request.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	tok, err := paramstore.Token(ctx, c.getter, c.tokenParam)
	if err != nil {
		return "", fmt.Errorf("%s: resolve token: %w", c.name, err)
	}
	c.token = tok
	return tok, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// URL joins path and query onto the base url.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.URL(path, query), nil, out)
}

// PostJSON sends in as the JSON body and decodes the response into out when
// out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, c.URL(path, nil), in, out)
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.name, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := c.doJSONRequest(req, target)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.name, method, target, err)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, target string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// StatusCode extracts the upstream HTTP status from err, if any.
func StatusCode(err error) (int, bool) {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.StatusCode, true
}
