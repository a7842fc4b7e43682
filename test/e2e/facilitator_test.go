//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confluxpay/paygate/pkg/client"
	"github.com/confluxpay/paygate/pkg/x402"
)

// TestHealth_Endpoints tests liveness probes and the chain health report
func TestHealth_Endpoints(t *testing.T) {
	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		t.Run(path+" returns 200", func(t *testing.T) {
			resp := get(t, path, "")
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}

	t.Run("/x402/health requires no API key", func(t *testing.T) {
		health, err := newClient("").Health(context.Background())
		require.NoError(t, err)

		// The relayer balance fetch can fail in offline CI; the endpoint
		// degrades instead of erroring.
		assert.Contains(t, []string{"ok", "degraded"}, health.Status)
		assert.Equal(t, "eip155:71", health.Network)
		assert.EqualValues(t, 71, health.ChainID)
	})
}

// TestAuth_APIKey tests the shared-secret gate on payment endpoints
func TestAuth_APIKey(t *testing.T) {
	t.Run("supported without key returns 401", func(t *testing.T) {
		_, err := newClient("").Supported(context.Background())
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	})

	t.Run("supported with wrong key returns 401", func(t *testing.T) {
		_, err := newClient("not-the-key").Supported(context.Background())
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	})

	t.Run("supported with valid key returns kinds", func(t *testing.T) {
		resp, err := newClient(testAPIKey).Supported(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, resp.Kinds)

		networks := make([]string, 0, len(resp.Kinds))
		for _, k := range resp.Kinds {
			assert.Equal(t, x402.SchemeExact, k.Scheme)
			networks = append(networks, k.Network)
		}
		assert.Contains(t, networks, "eip155:71")
	})
}

// TestVerify_Validation tests request validation before any chain access
func TestVerify_Validation(t *testing.T) {
	c := newClient(testAPIKey)

	t.Run("unknown network returns 400", func(t *testing.T) {
		_, err := c.Verify(context.Background(), x402.MethodNative, client.PaymentRequest{
			Payload: proof(x402.MethodNative, "eip155:999"),
			Network: "eip155:999",
		})
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "INVALID_REQUEST", apiErr.Code)
	})

	t.Run("unknown token returns 400", func(t *testing.T) {
		_, err := c.Verify(context.Background(), x402.MethodNative, client.PaymentRequest{
			Payload: proof(x402.MethodNative, "eip155:71"),
			Token:   "DOGE",
		})
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "INVALID_REQUEST", apiErr.Code)
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		resp := post(t, "/x402/verify-native", testAPIKey, []byte("{not json"))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		body := []byte(`{"payload":{"network":"` + strings.Repeat("a", 2<<20) + `"}}`)
		resp := post(t, "/x402/verify-native", testAPIKey, body)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// TestSettle_NoRelayer tests settlement behavior when the facilitator has
// no signing key configured
func TestSettle_NoRelayer(t *testing.T) {
	c := newClient(testAPIKey)

	result, err := c.Settle(context.Background(), x402.MethodERC20, client.PaymentRequest{
		Payload: proof(x402.MethodERC20, "eip155:71"),
	})
	// Either the scheme reports a settlement failure, or the chain
	// access fails first in offline CI and surfaces as an error. Never
	// a success either way.
	if err == nil {
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	}
}

// TestSecurity_Middleware tests the outer middleware chain
func TestSecurity_Middleware(t *testing.T) {
	t.Run("scanner paths blocked", func(t *testing.T) {
		resp := get(t, "/wp-admin/setup.php", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("OPTIONS returns CORS headers", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, testCtx.TestServer.URL+"/x402/supported", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://example.com")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-API-Key")
	})

	t.Run("metrics endpoint serves", func(t *testing.T) {
		resp := get(t, "/metrics", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

// Helpers

func proof(method x402.PaymentMethod, network string) x402.PaymentProof {
	return x402.PaymentProof{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     network,
		Method:      method,
		Payload:     json.RawMessage(`{"txHash":"0xabc"}`),
	}
}

func get(t *testing.T, path, apiKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, testCtx.TestServer.URL+path, nil)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func post(t *testing.T, path, apiKey string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, testCtx.TestServer.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
