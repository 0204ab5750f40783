package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sheethub/sheethub/internal/mcp"
	"github.com/sheethub/sheethub/internal/tools"
)

const (
	maxRetries    = 3
	retryWaitMin  = 500 * time.Millisecond
	retryWaitMax  = 5 * time.Second
	maxReplyBytes = 8 << 20
)

// rpcClient posts JSON-RPC envelopes to a sheethub /mcp endpoint.
type rpcClient struct {
	url      string
	retry    *retryablehttp.Client
	noRetry  *retryablehttp.Client
	registry *tools.Registry
	nextID   atomic.Int64
}

// rpcReply keeps the result raw so it can be printed as-is.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

func newRPCClient(url string, timeout time.Duration, logger *slog.Logger) *rpcClient {
	retry := retryablehttp.NewClient()
	retry.RetryMax = maxRetries
	retry.RetryWaitMin = retryWaitMin
	retry.RetryWaitMax = retryWaitMax
	retry.Backoff = retryablehttp.DefaultBackoff
	retry.HTTPClient.Timeout = timeout
	retry.Logger = logger
	retry.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true, nil
		}
		return false, nil
	}
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler

	noRetry := retryablehttp.NewClient()
	noRetry.RetryMax = 0
	noRetry.HTTPClient.Timeout = timeout
	noRetry.Logger = logger
	noRetry.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &rpcClient{url: url, retry: retry, noRetry: noRetry, registry: tools.NewRegistry()}
}

// call sends one request. Mutating tools/call requests are never retried
// since the server may have applied the change before the failure.
func (c *rpcClient) call(ctx context.Context, method string, params any) (*rpcReply, error) {
	envelope := map[string]any{
		"jsonrpc": mcp.JSONRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		envelope["params"] = params
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.retry
	if !c.retryable(method, params) {
		client = c.noRetry
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	var reply rpcReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode reply (status %d): %w", resp.StatusCode, err)
	}
	return &reply, nil
}

func (c *rpcClient) retryable(method string, params any) bool {
	if method != "tools/call" {
		return true
	}
	p, ok := params.(toolCallParams)
	if !ok {
		return false
	}
	tool, err := c.registry.Lookup(p.Name)
	if err != nil {
		return false
	}
	return tool.ReadOnly
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
