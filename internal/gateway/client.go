// Package gateway is the single HTTP entry point to the matrimony API. It
// attaches the stored bearer credential, purges it when the server answers
// 401, and normalizes every failure into an *apierr.Error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
)

// DefaultTimeout bounds every request end to end.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 8 << 20

// Credentials is the view of the credential store the gateway needs.
type Credentials interface {
	Get(ctx context.Context) string
	Invalidate(ctx context.Context)
}

// Throttle delays outbound requests per scope.
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// Raw is sent verbatim instead of Body, with ContentType.
	Raw         io.Reader
	ContentType string
}

// Response is a successful (2xx) API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return apierr.Application(r.Status, "invalid_response", fmt.Sprintf("unexpected response from server: %v", err))
	}
	return nil
}

// Client issues authenticated JSON requests.
type Client struct {
	base     *url.URL
	http     *http.Client
	creds    Credentials
	throttle Throttle
	timeout  time.Duration
	newID    func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is copied and
// its transport wrapped with request logging.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithThrottle rate limits outbound requests per endpoint scope.
func WithThrottle(t Throttle) Option {
	return func(c *Client) { c.throttle = t }
}

// New builds a Client for baseURL. creds may be nil for unauthenticated use.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:  base,
		http:  &http.Client{Timeout: DefaultTimeout},
		creds: creds,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.http
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if hc.Timeout <= 0 {
		hc.Timeout = DefaultTimeout
	}
	hc.Transport = &loggingTransport{next: hc.Transport}
	c.http = &hc
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Do sends req and decodes a successful JSON response into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Send dispatches req. No retries are attempted.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if c.throttle != nil {
		if err := c.throttle.Wait(ctx, scopeOf(req)); err != nil {
			return nil, apierr.Network(fmt.Errorf("throttled: %w", err))
		}
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apierr.Network(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			c.creds.Invalidate(context.WithoutCancel(ctx))
		}
		return nil, apierr.Authentication(parseErrorPayload(body).message())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p := parseErrorPayload(body)
		e := apierr.Application(resp.StatusCode, p.Code, p.message())
		e.Fields = p.Errors
		return nil, e
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := *c.base
	u.Path = path.Join("/", c.base.Path, req.Path)
	u.RawQuery = ""
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Raw != nil:
		body = req.Raw
		contentType = req.ContentType
	case req.Body != nil:
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apierr.Validation(fmt.Sprintf("encode request body: %v", err))
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, apierr.Validation(fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("X-Request-ID", c.newID())

	if c.creds != nil {
		if token := c.creds.Get(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

// scopeOf groups requests for throttling by method and the first two path
// segments, e.g. "POST /api/messages".
func scopeOf(req Request) string {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " /" + strings.Join(parts, "/")
}

type errorPayload struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors"`
}

func parseErrorPayload(body []byte) errorPayload {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return errorPayload{}
	}
	return p
}

func (p errorPayload) message() string {
	if m := strings.TrimSpace(p.Message); m != "" {
		return m
	}
	if m := strings.TrimSpace(p.Error); m != "" {
		return m
	}
	fields := make([]string, 0, len(p.Errors))
	for field := range p.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, m := range p.Errors[field] {
			if strings.TrimSpace(m) != "" {
				return m
			}
		}
	}
	return ""
}
