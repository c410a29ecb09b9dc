// Package relay forwards client calls to the script backend and collapses its
// redirect indirection into a single JSON answer.
//
// The backend never answers on the first hop: it replies with a Location header
// naming the URL that holds the real response. The relay runs each call through
// an explicit state machine:
//
//	Forwarding -> (Resolving) -> Done
//
// Forwarding sends the call as received. If the answer carries no Location, its
// body is the result. Otherwise Resolving issues a second request to that URL:
// a bare GET for GET-initiated calls, and a replay of the original method and
// body for POST-initiated ones. Nothing is retried.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"classrelay/internal/core"
)

// defaultMaxResponseBytes caps how much of a backend body is read. Reference
// images come back as data URLs, so this is generous.
const defaultMaxResponseBytes = 32 << 20

// Config holds relay configuration
type Config struct {
	// BackendURL is the fixed script endpoint all calls are sent to
	BackendURL string

	// MaxPayloadBytes bounds the encoded query string (GET) or body (POST).
	// Zero disables the check.
	MaxPayloadBytes int64

	// MaxResponseBytes bounds a backend body, before and after decoding.
	// Zero means defaultMaxResponseBytes.
	MaxResponseBytes int64

	// Hooks observe each relay call (optional)
	Hooks Hooks
}

// Client is the relay. It is stateless between calls and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	backend    *url.URL
	maxPayload  int64
	maxResponse int64
	hooks       Hooks
}

// New creates a relay client. httpClient must not follow redirects on its own;
// see httpclient.NewHTTPClient.
func New(httpClient *http.Client, cfg Config) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	backend, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if backend.Scheme != "http" && backend.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be absolute http(s), got %q", cfg.BackendURL)
	}
	maxResponse := cfg.MaxResponseBytes
	if maxResponse <= 0 {
		maxResponse = defaultMaxResponseBytes
	}
	return &Client{
		httpClient:  httpClient,
		backend:     backend,
		maxPayload:  cfg.MaxPayloadBytes,
		maxResponse: maxResponse,
		hooks:       cfg.Hooks,
	}, nil
}

// BackendURL returns the configured backend endpoint
func (c *Client) BackendURL() string {
	return c.backend.String()
}

// Relay forwards req and returns the normalized backend answer.
// The returned error is always a *core.RelayError.
func (c *Client) Relay(ctx context.Context, req *core.RelayRequest) (*core.RelayResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("request is required", nil)
	}

	info := RequestInfo{Method: req.Method, Action: req.Action}
	if c.hooks.OnRequestStart != nil {
		ctx = c.hooks.OnRequestStart(ctx, info)
	}

	start := time.Now()
	resp, err := c.run(ctx, req)

	if c.hooks.OnRequestEnd != nil {
		end := ResponseInfo{RequestInfo: info, Duration: time.Since(start), Err: err}
		if resp != nil {
			end.Redirected = resp.Redirected
			end.Malformed = resp.Malformed
			end.Status = resp.Status()
			end.Message = resp.Message()
		}
		c.hooks.OnRequestEnd(ctx, end)
	}
	return resp, err
}

type phase int

const (
	phaseForwarding phase = iota
	phaseResolving
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseForwarding:
		return "forwarding"
	case phaseResolving:
		return "resolving"
	case phaseDone:
		return "done"
	}
	return "unknown"
}

// hop is one HTTP exchange with the backend
type hop struct {
	method string
	url    string
	body   []byte
}

// hopResult is what the state machine needs from a response
type hopResult struct {
	location *url.URL
	body     []byte
}

func (c *Client) run(ctx context.Context, req *core.RelayRequest) (*core.RelayResponse, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return nil, core.NewInvalidRequestError("unsupported method: "+req.Method, nil)
	}
	if c.maxPayload > 0 {
		if size := req.Size(); size > c.maxPayload {
			return nil, core.NewPayloadTooLargeError(size, c.maxPayload)
		}
	}

	var (
		current = phaseForwarding
		target  *url.URL
		resp    *core.RelayResponse
	)

	for current != phaseDone {
		switch current {
		case phaseForwarding:
			result, err := c.send(ctx, current, c.forwardHop(req))
			if err != nil {
				return nil, err
			}
			if result.location == nil {
				resp = core.NewResponse(result.body, false)
				current = phaseDone
				continue
			}
			target = result.location
			current = phaseResolving

		case phaseResolving:
			result, err := c.send(ctx, current, resolveHop(req, target))
			if err != nil {
				return nil, err
			}
			resp = core.NewResponse(result.body, true)
			current = phaseDone
		}
	}

	return resp, nil
}

// forwardHop builds the first request: same method, same payload encoding.
func (c *Client) forwardHop(req *core.RelayRequest) hop {
	u := *c.backend
	if req.Method == http.MethodGet {
		q := u.Query()
		for k, vs := range req.Params {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		return hop{method: http.MethodGet, url: u.String()}
	}
	return hop{method: http.MethodPost, url: u.String(), body: req.Body}
}

// resolveHop builds the second request. The backend's redirect drops the POST
// payload, so POST calls are replayed with their original body.
func resolveHop(req *core.RelayRequest, target *url.URL) hop {
	if req.Method == http.MethodPost {
		return hop{method: http.MethodPost, url: target.String(), body: req.Body}
	}
	return hop{method: http.MethodGet, url: target.String()}
}

func (c *Client) send(ctx context.Context, p phase, h hop) (*hopResult, error) {
	var bodyReader io.Reader
	if h.body != nil {
		bodyReader = bytes.NewReader(h.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, h.method, h.url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request: "+err.Error(), err)
	}
	if h.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.Warn("relay hop failed",
			"phase", p.String(),
			"method", h.method,
			"request_id", core.GetRequestID(ctx),
			"error", err,
		)
		return nil, core.NewNetworkFault(err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := readLimited(resp.Body, c.maxResponse)
	if errors.Is(err, errBodyTooLarge) {
		return nil, core.NewBackendError(fmt.Sprintf("backend response exceeds %d bytes", c.maxResponse))
	}
	if err != nil {
		return nil, core.NewNetworkFault("failed to read backend response: "+err.Error(), err)
	}

	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"), c.maxResponse)
	if errors.Is(err, errBodyTooLarge) {
		return nil, core.NewBackendError(fmt.Sprintf("decoded backend response exceeds %d bytes", c.maxResponse))
	}
	if err != nil {
		return nil, core.NewMalformedResponseError("failed to decode backend response: " + err.Error())
	}

	result := &hopResult{body: body}
	location, err := resp.Location()
	switch {
	case err == nil:
		result.location = location
	case !errors.Is(err, http.ErrNoLocation):
		return nil, core.NewMalformedResponseError("invalid redirect target: " + resp.Header.Get("Location"))
	}

	slog.Debug("relay hop",
		"phase", p.String(),
		"method", h.method,
		"status", resp.StatusCode,
		"redirect", result.location != nil,
		"request_id", core.GetRequestID(ctx),
	)
	return result, nil
}
