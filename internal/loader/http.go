package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kode4food/flume/pkg/log"
)

type (
	// HTTPInvoker invokes remote transform units over HTTP. The endpoint
	// receives the threaded data value and returns its replacement
	HTTPInvoker struct {
		httpClient *http.Client
	}

	// TransformRequest is the JSON envelope POSTed to an HTTP step
	TransformRequest struct {
		Data any `json:"data"`
	}

	// TransformResult is the JSON envelope an HTTP step responds with
	TransformResult struct {
		Data    any    `json:"data,omitempty"`
		Error   string `json:"error,omitempty"`
		Success bool   `json:"success"`
	}

	httpTransform struct {
		invoker  *HTTPInvoker
		endpoint string
	}
)

var (
	ErrStepUnsuccessful = errors.New("step returned success=false")
	ErrHTTPError        = errors.New("step returned HTTP error")
)

// NewHTTPInvoker creates an invoker whose individual step calls are
// bounded by the provided timeout
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transform returns a transform unit that POSTs the data value to the
// given endpoint
func (c *HTTPInvoker) Transform(endpoint string) Transform {
	return &httpTransform{
		invoker:  c,
		endpoint: endpoint,
	}
}

func (t *httpTransform) Apply(ctx context.Context, data any) (any, error) {
	body, err := json.Marshal(TransformRequest{Data: data})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, t.endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Flume-Engine/1.0")

	start := time.Now()
	resp, err := t.invoker.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("HTTP step request failed",
			slog.String("endpoint", t.endpoint),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("HTTP step error",
			slog.String("endpoint", t.endpoint),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	var result TransformResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	if !result.Success {
		if result.Error == "" {
			return nil, ErrStepUnsuccessful
		}
		return nil, fmt.Errorf("%w: %s", ErrStepUnsuccessful, result.Error)
	}
	return result.Data, nil
}
