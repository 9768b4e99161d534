// Package resilient is the single call primitive every orchestration step
// goes through: registry resolution, then the service's named circuit
// breaker, then the HTTP round trip, with failures classified into the errs
// taxonomy so the saga can tell business errors from infrastructure ones.
package resilient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cryptosim/trading-sagas/internal/breaker"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
	"github.com/cryptosim/trading-sagas/internal/registry"
)

// Request describes one downstream call.
type Request struct {
	Service string
	Method  string
	Path    string
	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is a successful (2xx/3xx) downstream answer.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals a response body.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, fmt.Errorf("resilient: decode response: %w", err)
	}
	return out, nil
}

// Client composes the registry client and the breaker set.
type Client struct {
	registry *registry.Client
	breakers *breaker.Set
	http     *http.Client
}

// New builds the client. The transport is OTel-instrumented so the W3C
// traceparent header flows to every downstream service.
func New(reg *registry.Client, breakers *breaker.Set) *Client {
	return &Client{
		registry: reg,
		breakers: breakers,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Call resolves, guards, and performs one downstream request.
//
// Error shape: ErrUnresolvable and ErrOpen become ServiceUnavailable (the
// latter flagged circuitOpen so the saga knows not to retry), deadline
// overruns become ServiceTimeout, and downstream 4xx/5xx pass through with
// their original status and body. Connection-level failures additionally
// invalidate the registry cache to force re-resolution on the next call.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	addr, err := c.registry.Resolve(ctx, req.Service)
	if err != nil {
		return nil, errs.Unavailable(req.Service, false, err)
	}

	b := c.breakers.Get(req.Service)
	timeout := b.CallTimeout()
	if httpmeta.IsCompensation(ctx) {
		// Compensation favors eventual consistency over speed.
		timeout *= 2
	}

	var resp *Response
	err = b.ExecuteTimeout(ctx, timeout, func(callCtx context.Context) error {
		r, callErr := c.do(callCtx, addr, req)
		resp = r
		return callErr
	})
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, breaker.ErrOpen):
		return nil, errs.Unavailable(req.Service, true, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, errs.Timeout(req.Service, err)
	default:
		var envelope *errs.E
		if errors.As(err, &envelope) {
			return nil, envelope
		}
		if isConnectionError(err) {
			c.registry.Invalidate(req.Service)
		}
		return nil, errs.Unavailable(req.Service, false, err)
	}
}

func (c *Client) do(ctx context.Context, addr registry.Address, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("resilient: encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	url := "http://" + addr.HostPort() + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("resilient: build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpmeta.Propagate(ctx, httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("resilient: read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		// Pass-through: the saga branches on downstream business errors
		// (e.g. the portfolio service rejecting a reduce) by status/body.
		return nil, errs.Downstream(req.Service, httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return &Response{Status: httpResp.StatusCode, Body: raw}, nil
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
