package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// SharedHTTPClient returns an HTTP client with connection pooling.
// The three service clients share one when built from cmd.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// postJSON sends body as JSON and returns the response when the transport
// succeeded. Transport failures come back as *CallError; the caller owns
// status handling and closing the body.
func postJSON(ctx context.Context, client *http.Client, service, url string, body any, headers map[string]string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		kind := FailureTransport
		if isTimeout(ctx, err) {
			kind = FailureTimeout
		}
		return nil, &CallError{Service: service, Kind: kind, Err: err}
	}
	return resp, nil
}

// statusError drains a non-200 response into a *CallError, picking up an
// embedded error message when the body is JSON.
func statusError(service string, resp *http.Response) *CallError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &CallError{
		Service:    service,
		Kind:       FailureStatus,
		StatusCode: resp.StatusCode,
		Message:    embeddedMessage(raw),
	}
}

// embeddedMessage understands the common shapes:
// {"error":{"message":"..."}}, {"error":"..."}, {"detail":"..."},
// {"detail":{"message":"..."}} and {"message":"..."}.
func embeddedMessage(raw []byte) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, field := range []json.RawMessage{body.Error, body.Detail} {
		if len(field) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(field, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(field, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return body.Message
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
