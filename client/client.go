package client

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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/internal/redact"
)

const (
	// HeaderRequestID carries the correlation id of every request.
	HeaderRequestID = "X-Request-ID"

	defaultRetries   = 2
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "gosession/1"
	maxErrorBody     = 64 << 10
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://backoffice.example.com".
	BaseURL string
	// Transport is the round tripper for every request. Wrap it in an
	// Authorizer for authenticated business calls. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds one attempt. Defaults to 30s.
	Timeout time.Duration
	// Retries is the retry budget for idempotent requests. Negative disables
	// retries; zero means the default of 2.
	Retries int
	// RetryInitialInterval is the first backoff delay. Defaults to 200ms.
	RetryInitialInterval time.Duration
	UserAgent            string
	Logger               hclog.Logger
}

// Client performs JSON requests against the back-office API.
type Client struct {
	base      *url.URL
	http      *http.Client
	retries   int
	initial   time.Duration
	userAgent string
	log       hclog.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("client: BaseURL is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse BaseURL: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.Retries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 0
	}
	initial := opts.RetryInitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Client{
		base:      base,
		http:      &http.Client{Transport: transport, Timeout: timeout},
		retries:   retries,
		initial:   initial,
		userAgent: ua,
		log:       log.Named("client"),
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL joins path and query onto the base URL. Absolute URLs are returned
// unchanged.
func (c *Client) URL(path string, query url.Values) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Get decodes the JSON answer of GET path into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.send(ctx, call{method: http.MethodGet, path: path, query: query, out: out})
}

// Post sends body as JSON and decodes the answer into out. Either may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, call{method: http.MethodPost, path: path, body: body, out: out})
}

// Put sends body as JSON and decodes the answer into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, call{method: http.MethodPut, path: path, body: body, out: out})
}

// Delete issues DELETE path and decodes the answer into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.send(ctx, call{method: http.MethodDelete, path: path, out: out})
}

type idempotentKey struct{}

// WithIdempotent marks requests made with ctx as safe to retry regardless of
// their method.
func WithIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

func isIdempotent(ctx context.Context, method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	marked, _ := ctx.Value(idempotentKey{}).(bool)
	return marked
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	out    any
	bearer string
	header http.Header
	// raw, when set, is sent as is with header's Content-Type.
	raw []byte
	// noRetry forces a single attempt.
	noRetry bool
	// rawOut receives the undecoded response body.
	rawOut *[]byte
}

func (c *Client) send(ctx context.Context, cl call) error {
	payload := cl.raw
	if payload == nil && cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	requestID := goSession.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	attempt := func() (struct{}, error) {
		err := c.once(ctx, cl, payload, requestID)
		if err == nil {
			return struct{}{}, nil
		}
		if retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	tries := uint(1)
	if !cl.noRetry && isIdempotent(ctx, cl.method) {
		tries += uint(c.retries)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initial

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug("retrying request", "method", cl.method, "path", cl.path, "in", next, "error", err)
		}),
	)
	return err
}

func (c *Client) once(ctx context.Context, cl call, payload []byte, requestID string) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.URL(cl.path, cl.query), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, requestID)
	if cl.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cl.bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", cl.method, "path", cl.path, "error", err)
		return err
	}
	defer resp.Body.Close()

	c.log.Trace("request", "method", cl.method, "path", cl.path, "status", resp.StatusCode,
		"duration", time.Since(start), "headers", redact.Header(req.Header))

	if resp.StatusCode >= 400 {
		return responseError(resp, cl.op)
	}

	if cl.rawOut != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*cl.rawOut = data
		return nil
	}
	if cl.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// responseError builds a *goSession.StatusError from a non-2xx response,
// reading the server's JSON error body when it has one.
func responseError(resp *http.Response, op string) error {
	se := &goSession.StatusError{
		Op:         op,
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		se.Code = body.Code
		se.Message = body.Message
		if se.Message == "" {
			se.Message = body.Error
		}
	}
	return se
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *goSession.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
