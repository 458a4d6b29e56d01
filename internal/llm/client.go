package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepchat/deepchat-backend/internal/config"
)

const errorBodyLimit = 32 * 1024

// Transport sends completion requests. The request's Stream flag
// selects how the response body is consumed: streaming responses carry
// a raw body read incrementally, non-streaming ones a decoded payload.
type Transport interface {
	Send(ctx context.Context, req ChatCompletionRequest) (*Response, error)
}

// Response is the transport-level result of a completion request.
type Response struct {
	StatusCode int
	// Body is the raw response body for streaming requests. The caller
	// owns it and must close it.
	Body io.ReadCloser
	// Payload is the decoded body for successful non-streaming requests.
	Payload *ChatCompletionResponse
	// ErrorBody holds the raw error body for non-success responses.
	ErrorBody string
}

// Success reports whether the response carries a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the default Transport over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a completion API client
func NewClient(cfg config.DeepSeekConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		// Streaming responses stay open for the whole generation, so
		// no overall client timeout; cancellation comes from ctx.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// Send issues a completion request. Network failures are returned as
// errors; HTTP-level failures come back as a Response with the raw
// error body so callers can build an APIError from it.
func (c *Client) Send(ctx context.Context, req ChatCompletionRequest) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, errorBodyLimit))
		return &Response{
			StatusCode: httpResp.StatusCode,
			ErrorBody:  string(raw),
		}, nil
	}

	if req.Stream {
		return &Response{
			StatusCode: httpResp.StatusCode,
			Body:       httpResp.Body,
		}, nil
	}

	defer httpResp.Body.Close()
	var decoded ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return &Response{StatusCode: httpResp.StatusCode}, nil
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Payload:    &decoded,
	}, nil
}
