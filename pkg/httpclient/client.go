package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const defaultUserAgent = "nullbr-search-service/1.0"

// Kind classifies a transport failure
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindConnectFailed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectFailed:
		return "connect_failed"
	default:
		return "other"
	}
}

// TransportError is returned when a request could not be completed on any path
type TransportError struct {
	Kind   Kind
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// fallbackable reports whether the direct path should be tried after this failure
func (e *TransportError) fallbackable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnectFailed
}

// Options configures the two network paths and the retry policy
type Options struct {
	// ProxyURL is the preferred path route. Empty means the system proxy
	// settings (HTTP_PROXY/HTTPS_PROXY/NO_PROXY).
	ProxyURL string
	// DirectOnly disables the preferred path entirely.
	DirectOnly bool

	PreferredTimeout     time.Duration
	DirectConnectTimeout time.Duration
	DirectReadTimeout    time.Duration

	// MaxAttempts bounds attempts per path for idempotent methods.
	MaxAttempts int
	BackoffBase time.Duration

	UserAgent string
}

// DefaultOptions returns the production transport settings
func DefaultOptions() Options {
	return Options{
		PreferredTimeout:     5 * time.Second,
		DirectConnectTimeout: 10 * time.Second,
		DirectReadTimeout:    30 * time.Second,
		MaxAttempts:          3,
		BackoffBase:          1 * time.Second,
		UserAgent:            defaultUserAgent,
	}
}

// Request describes one logical HTTP call
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header
	// JSON, when set, is marshalled as the request body.
	JSON interface{}
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v
func (r *Response) DecodeJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Client is an HTTP client with a preferred (proxied) path, a direct fallback
// path and bounded retries for idempotent requests
type Client struct {
	preferred   *http.Client
	direct      *http.Client
	proxyURL    string
	maxAttempts int
	backoffBase time.Duration
	userAgent   string
}

// NewClient creates a new HTTP client
func NewClient(opts Options) (*Client, error) {
	def := DefaultOptions()
	if opts.PreferredTimeout <= 0 {
		opts.PreferredTimeout = def.PreferredTimeout
	}
	if opts.DirectConnectTimeout <= 0 {
		opts.DirectConnectTimeout = def.DirectConnectTimeout
	}
	if opts.DirectReadTimeout <= 0 {
		opts.DirectReadTimeout = def.DirectReadTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	c := &Client{
		direct:      newDirectClient(opts.DirectConnectTimeout, opts.DirectReadTimeout),
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		userAgent:   opts.UserAgent,
	}

	if !opts.DirectOnly {
		proxy := http.ProxyFromEnvironment
		if opts.ProxyURL != "" {
			u, err := url.Parse(opts.ProxyURL)
			if err != nil || u.Host == "" {
				return nil, fmt.Errorf("invalid proxy url %q", opts.ProxyURL)
			}
			proxy = http.ProxyURL(u)
			c.proxyURL = u.Redacted()
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = proxy
		c.preferred = &http.Client{
			Timeout:   opts.PreferredTimeout,
			Transport: t,
		}
	}

	return c, nil
}

func newDirectClient(connect, read time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.ResponseHeaderTimeout = read
	return &http.Client{
		Timeout:   connect + read,
		Transport: t,
	}
}

// Do performs the request on the preferred path and, on timeout or
// connection failure, once more on the direct path. Each path attempt is
// itself retried for idempotent methods.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if c.preferred != nil {
		resp, err := c.attempt(ctx, c.preferred, req)
		if err == nil {
			return resp, nil
		}
		var terr *TransportError
		if !errors.As(err, &terr) || !terr.fallbackable() {
			return nil, err
		}
		log.Warn().
			Err(err).
			Str("url", req.URL).
			Msg("Preferred path failed, trying direct connection")
	}

	resp, err := c.attempt(ctx, c.direct, req)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL).Msg("Direct connection failed")
		return nil, err
	}
	return resp, nil
}

// statusRetryError signals a retryable HTTP status inside the retry loop
type statusRetryError struct {
	code int
}

func (e *statusRetryError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// attempt runs one path with bounded exponential backoff. When retries are
// exhausted on a status code, the last response is returned to the caller.
func (c *Client) attempt(ctx context.Context, hc *http.Client, req Request) (*Response, error) {
	var maxRetries uint64
	if isIdempotent(req.Method) && c.maxAttempts > 1 {
		maxRetries = uint64(c.maxAttempts - 1)
	}
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.backoffBase))

	var last *Response
	n := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n++
		resp, terr := c.send(ctx, hc, req)
		if terr != nil {
			last = nil
			log.Debug().
				Int("attempt", n).
				Err(terr).
				Str("url", req.URL).
				Msg("Request failed")
			if terr.fallbackable() {
				return retry.RetryableError(terr)
			}
			return terr
		}

		last = resp
		if retryableStatus(resp.StatusCode) {
			log.Debug().
				Int("attempt", n).
				Int("status", resp.StatusCode).
				Str("url", req.URL).
				Msg("Retryable status")
			return retry.RetryableError(&statusRetryError{code: resp.StatusCode})
		}
		return nil
	})
	if err == nil {
		return last, nil
	}

	var se *statusRetryError
	if errors.As(err, &se) && last != nil {
		return last, nil
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		return nil, terr
	}
	// context cancelled between attempts
	return nil, &TransportError{Kind: KindOther, Method: req.Method, URL: req.URL, Err: err}
}

// send performs a single HTTP exchange and reads the whole body
func (c *Client) send(ctx context.Context, hc *http.Client, req Request) (*Response, *TransportError) {
	target := req.URL
	if len(req.Params) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, &TransportError{Kind: KindOther, Method: req.Method, URL: req.URL, Err: err}
		}
		q := u.Query()
		for k, vs := range req.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var body io.Reader
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, &TransportError{Kind: KindOther, Method: req.Method, URL: req.URL, Err: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Kind: KindOther, Method: req.Method, URL: req.URL, Err: err}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, classify(req, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, classify(req, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func classify(req Request, err error) *TransportError {
	kind := KindOther

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindOther
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &opErr), errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindConnectFailed
	}

	return &TransportError{Kind: kind, Method: req.Method, URL: req.URL, Err: err}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HasProxy returns true if an explicit proxy is configured for the preferred path
func (c *Client) HasProxy() bool {
	return c.proxyURL != ""
}

// ProxyURL returns the redacted preferred path proxy, if any
func (c *Client) ProxyURL() string {
	return c.proxyURL
}
