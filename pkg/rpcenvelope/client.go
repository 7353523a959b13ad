package rpcenvelope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Client calls a single remote service's "/kapi/<service>" endpoint.
type Client struct {
	baseURL    string
	service    string
	token      string
	httpClient *http.Client
	nextID     uint64
}

// NewClient builds a Client for baseURL (e.g. "http://10.0.0.2:3300"),
// attaching token to every call as a bearer Authorization header. This
// package's Server does not itself read that header.
func NewClient(baseURL, service, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		service:    service,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method with params (JSON-marshaled) and decodes the
// response's result into out (nil to discard it).
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpcenvelope: marshal params: %w", err)
	}

	req := Request{
		Method: method,
		Params: paramsJSON,
		ID:     atomic.AddUint64(&c.nextID, 1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpcenvelope: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/kapi/"+c.service, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcenvelope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpcenvelope: call %s.%s: %w", c.service, method, err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("rpcenvelope: decode response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("rpcenvelope: %s.%s: %s", c.service, method, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("rpcenvelope: unmarshal result: %w", err)
	}
	return nil
}
