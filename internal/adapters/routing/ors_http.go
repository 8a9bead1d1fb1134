package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"location-tracker/internal/ports"
	"net"
	"net/http"
	"strings"
	"time"
)

// ORS error codes that map onto terminal route failures.
const (
	orsCodeRouteNotFound    = 2009
	orsCodePointNotFound    = 2010
	orsCodeUnsupportedPoint = 2099
)

type httpStatusError struct {
	Code int
	Body string
}

type orsErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (o *ORSProvider) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json, application/geo+json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (o *ORSProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transport failures (network errors, 5xx responses)
// using exponential backoff while respecting context cancellation.
// Quota responses (429) are not retried here; they surface as
// RouteQuotaExceeded and the caller owns that retry decision.
func (o *ORSProvider) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 500, 502, 503, 504:
				retry = true
			}
		}

		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}

// classify converts a transport or HTTP failure into a *ports.RouteError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var re *ports.RouteError
	if errors.As(err, &re) {
		return re
	}

	var he *httpStatusError
	if !errors.As(err, &he) {
		return &ports.RouteError{Kind: ports.RouteUnknown, Err: err}
	}

	switch he.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ports.RouteError{Kind: ports.RouteRequestDenied, Err: err}
	case http.StatusTooManyRequests:
		return &ports.RouteError{Kind: ports.RouteQuotaExceeded, Err: err}
	}

	var body orsErrorBody
	if json.Unmarshal([]byte(he.Body), &body) == nil {
		switch body.Error.Code {
		case orsCodeRouteNotFound:
			return &ports.RouteError{Kind: ports.RouteZeroResults, Err: err}
		case orsCodePointNotFound, orsCodeUnsupportedPoint:
			return &ports.RouteError{Kind: ports.RouteNotFound, Err: err}
		}
	}

	if he.Code == http.StatusNotFound {
		return &ports.RouteError{Kind: ports.RouteNotFound, Err: err}
	}

	return &ports.RouteError{Kind: ports.RouteUnknown, Err: err}
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}
