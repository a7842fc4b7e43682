package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/confluxpay/paygate/pkg/x402"
)

func TestClient_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x402/verify-native" {
			t.Errorf("Expected path /x402/verify-native, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("Expected X-API-Key test-key, got %s", got)
		}

		var req PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Token != "CFX" {
			t.Errorf("Expected token CFX, got %s", req.Token)
		}

		json.NewEncoder(w).Encode(x402.VerifyResult{Valid: true})
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	res, err := client.Verify(context.Background(), x402.MethodNative, PaymentRequest{Token: "CFX"})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !res.Valid {
		t.Error("Verify() = invalid, want valid")
	}
}

func TestClient_Verify_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "UNAUTHORIZED", "message": "Invalid API key"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "wrong-key")
	_, err := client.Verify(context.Background(), x402.MethodNative, PaymentRequest{})
	if err == nil {
		t.Fatal("Verify() expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Verify() error = %v, want *APIError", err)
	}
	if apiErr.Code != "UNAUTHORIZED" {
		t.Errorf("APIError.Code = %s, want UNAUTHORIZED", apiErr.Code)
	}
}

func TestClient_Settle_FailureBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x402/settle-erc20" {
			t.Errorf("Expected path /x402/settle-erc20, got %s", r.URL.Path)
		}
		// Settlement failures come back as 500 with a result body.
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(x402.SettlementResult{Success: false, Error: "execution reverted"})
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	res, err := client.Settle(context.Background(), x402.MethodERC20, PaymentRequest{})
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if res.Success {
		t.Error("Settle() = success, want failure")
	}
	if res.Error != "execution reverted" {
		t.Errorf("Settle().Error = %s, want execution reverted", res.Error)
	}
}

func TestClient_Settle_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.SettlementResult{Success: true, Transaction: "0xfeed", Payer: "0xbeef"})
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	res, err := client.Settle(context.Background(), x402.MethodEIP3009, PaymentRequest{})
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if !res.Success || res.Transaction != "0xfeed" {
		t.Errorf("Settle() = %+v, want success with transaction 0xfeed", res)
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x402/health" {
			t.Errorf("Expected path /x402/health, got %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "" {
			t.Errorf("Health should not send an API key, got %s", got)
		}
		json.NewEncoder(w).Encode(Health{Status: "ok", Network: "eip155:71", ChainID: 71})
	}))
	defer server.Close()

	client := New(server.URL, "")
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Status != "ok" || health.ChainID != 71 {
		t.Errorf("Health() = %+v", health)
	}
}

func TestClient_Supported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SupportedResponse{Kinds: []SupportedKind{
			{Scheme: "exact", Method: "eip3009", Network: "eip155:71", Tokens: []string{"USDC"}},
		}})
	}))
	defer server.Close()

	client := New(server.URL, "test-key")
	resp, err := client.Supported(context.Background())
	if err != nil {
		t.Fatalf("Supported() error = %v", err)
	}
	if len(resp.Kinds) != 1 || resp.Kinds[0].Method != "eip3009" {
		t.Errorf("Supported() = %+v", resp.Kinds)
	}
}
