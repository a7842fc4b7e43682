// Package client provides a Go client for the paygate facilitator API.
// The seller middleware uses it to verify and settle payment proofs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/confluxpay/paygate/pkg/x402"
)

// Client is a paygate facilitator API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new facilitator client. The default timeout covers the
// worst-case settlement wait.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PaymentRequest is the body of a verify or settle call.
type PaymentRequest struct {
	Payload         x402.PaymentProof `json:"payload"`
	Token           string            `json:"token,omitempty"`
	Network         string            `json:"network,omitempty"`
	Treasury        string            `json:"treasury,omitempty"`
	PaymentContract string            `json:"paymentContract,omitempty"`
}

// Health is the facilitator liveness report.
type Health struct {
	Status          string `json:"status"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chainId"`
	Facilitator     string `json:"facilitator"`
	Balance         string `json:"balance,omitempty"`
	PaymentContract string `json:"paymentContract"`
}

// SupportedKind is one scheme/network pair the facilitator serves.
type SupportedKind struct {
	Scheme  string   `json:"scheme"`
	Method  string   `json:"method"`
	Network string   `json:"network"`
	Tokens  []string `json:"tokens"`
}

// SupportedResponse is the response for listing supported kinds.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Verify asks the facilitator to verify a payment proof without settling it.
func (c *Client) Verify(ctx context.Context, method x402.PaymentMethod, req PaymentRequest) (*x402.VerifyResult, error) {
	var res x402.VerifyResult
	if err := c.post(ctx, "/x402/verify-"+string(method), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Settle asks the facilitator to finalize a verified payment on-chain. A
// settlement failure comes back as a SettlementResult with Success=false,
// not as an error; errors mean the call itself failed.
func (c *Client) Settle(ctx context.Context, method x402.PaymentMethod, req PaymentRequest) (*x402.SettlementResult, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/x402/settle-"+string(method), &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Settlement failures map to 500 with a SettlementResult body; only
	// treat responses without one as transport errors.
	switch resp.StatusCode {
	case http.StatusOK, http.StatusInternalServerError:
		var res x402.SettlementResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		}
		if resp.StatusCode == http.StatusInternalServerError && res.Error == "" {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		}
		return &res, nil
	default:
		return nil, c.parseError(resp)
	}
}

// Health fetches the facilitator health report. No API key is required.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/x402/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported lists the scheme/network pairs the facilitator serves.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	var resp SupportedResponse
	if err := c.get(ctx, "/x402/supported", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}
