package bitbucket

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
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/gregjones/httpcache"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds connection setup, response headers and the whole
// request. A slow Bitbucket blocks the caller for at most this long.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed response body is logged.
const maxErrorBody = 4 << 10

// ErrUnexpectedStatus is wrapped by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatusError reports a response whose status code is not one of 200, 201,
// 202 or 204.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Credentials are sent with every request using HTTP Basic authentication.
type Credentials struct {
	Username string
	Password string
}

// ProxyConfig routes requests through an HTTP proxy. Username is optional;
// when set, the proxy credentials are sent as Proxy-Authorization.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	Credentials Credentials
	Proxy       *ProxyConfig
	Timeout     time.Duration // DefaultTimeout when zero.
	RateLimit   float64       // Requests per second; zero disables limiting.
}

// Transport performs authenticated requests against Bitbucket and maps
// response codes onto success or failure. It holds no per-request state and
// is safe for concurrent use.
//
// The round-tripper stack is:
//  1. httpcache (ETag-based conditional request caching for GETs)
//  2. request metrics
//  3. net/http transport with optional proxy
type Transport struct {
	client  *http.Client
	creds   Credentials
	limiter *rate.Limiter
}

// NewTransport builds a Transport from opts.
func NewTransport(opts TransportOptions) (*Transport, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	base.ResponseHeaderTimeout = timeout
	proxy, err := proxyFunc(opts.Proxy)
	if err != nil {
		return nil, err
	}
	base.Proxy = proxy

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = instrument(base)

	t := &Transport{
		client: &http.Client{Transport: cache, Timeout: timeout},
		creds:  opts.Credentials,
	}
	if opts.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return t, nil
}

// proxyFunc returns the proxy selector for cfg. Without an explicit proxy the
// HTTP_PROXY, HTTPS_PROXY and NO_PROXY variables of the environment apply.
func proxyFunc(cfg *ProxyConfig) (func(*http.Request) (*url.URL, error), error) {
	if cfg == nil || cfg.URL == "" {
		fromEnv := httpproxy.FromEnvironment().ProxyFunc()
		return func(req *http.Request) (*url.URL, error) {
			return fromEnv(req.URL)
		}, nil
	}

	proxyURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL: %w", err)
	}
	if strings.TrimSpace(cfg.Username) != "" {
		proxyURL.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return http.ProxyURL(proxyURL), nil
}

// Do sends a request and returns the response body.
// A 204 yields (nil, nil); 200, 201 and 202 yield the body; any other status
// yields a *StatusError. Failures are logged at warn level before returning.
func (t *Transport) Do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) ([]byte, error) {
	log := clog.FromContext(ctx)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		log.Warn("failed to build request", "method", method, "url", rawURL, "error", err)
		return nil, fmt.Errorf("building %s %s: %w", method, rawURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	// Preemptive: Bitbucket answers anonymous requests with 404 rather than a
	// challenge for private repositories.
	req.SetBasicAuth(t.creds.Username, t.creds.Password)

	resp, err := t.client.Do(req)
	if err != nil {
		log.Warn("failed to send request", "method", method, "url", rawURL, "error", err)
		return nil, fmt.Errorf("sending %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Warn("failed to read response body", "method", method, "url", rawURL, "error", err)
			return nil, fmt.Errorf("reading %s %s response: %w", method, rawURL, err)
		}
		return data, nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	log.Warn("unexpected response status",
		"method", method,
		"url", rawURL,
		"status", resp.Status,
		"body", string(data),
	)

	return nil, &StatusError{
		Method:     method,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(data),
	}
}

// Get issues a GET request.
func (t *Transport) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return t.Do(ctx, http.MethodGet, rawURL, nil, nil)
}

// PostJSON serializes v (omitting empty fields) and POSTs it.
func (t *Transport) PostJSON(ctx context.Context, rawURL string, v any) ([]byte, error) {
	data, err := SerializeObject(v)
	if err != nil {
		clog.FromContext(ctx).Warn("failed to serialize request body", "url", rawURL, "error", err)
		return nil, err
	}
	clog.FromContext(ctx).Debug("sending json", "url", rawURL, "body", string(data))

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	return t.Do(ctx, http.MethodPost, rawURL, bytes.NewReader(data), header)
}

// PostEmpty POSTs with no body. Bitbucket Server rejects body-less POSTs as
// potential XSRF unless X-Atlassian-Token is set.
func (t *Transport) PostEmpty(ctx context.Context, rawURL string) ([]byte, error) {
	header := http.Header{}
	header.Set("X-Atlassian-Token", "no-check")
	return t.Do(ctx, http.MethodPost, rawURL, nil, header)
}

// PostForm POSTs form-encoded values.
func (t *Transport) PostForm(ctx context.Context, rawURL string, values url.Values) ([]byte, error) {
	return t.Do(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()), formHeader())
}

// PutForm PUTs form-encoded values.
func (t *Transport) PutForm(ctx context.Context, rawURL string, values url.Values) error {
	_, err := t.Do(ctx, http.MethodPut, rawURL, strings.NewReader(values.Encode()), formHeader())
	return err
}

// Delete issues a DELETE request.
func (t *Transport) Delete(ctx context.Context, rawURL string) error {
	_, err := t.Do(ctx, http.MethodDelete, rawURL, nil, nil)
	return err
}

func formHeader() http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return header
}

// SerializeObject encodes v as JSON. Fields tagged omitempty are left out
// when empty, so absent values never reach Bitbucket as nulls.
func SerializeObject(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return data, nil
}

// Decode parses a JSON response body into a T.
func Decode[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, errors.New("empty response body")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding response: %w", err)
	}
	return v, nil
}

// GetJSON fetches rawURL and decodes the body into a T.
func GetJSON[T any](ctx context.Context, t *Transport, rawURL string) (T, error) {
	data, err := t.Get(ctx, rawURL)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := Decode[T](data)
	if err != nil {
		clog.FromContext(ctx).Warn("invalid response", "url", rawURL, "error", err)
	}
	return v, err
}
