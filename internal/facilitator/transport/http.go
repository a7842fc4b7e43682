package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/confluxpay/paygate/internal/auth"
	"github.com/confluxpay/paygate/internal/facilitator/domain"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/observability/metrics"
	"github.com/confluxpay/paygate/pkg/x402"
)

// maxBodyBytes caps every facilitator request body. Oversized bodies are
// rejected before JSON parsing.
const maxBodyBytes = 1 << 20

// settleTimeout bounds one settlement end to end, including the wait for
// the confirmation receipt.
const settleTimeout = 2 * time.Minute

// Service defines the facilitator service interface for HTTP transport.
type Service interface {
	Verify(ctx context.Context, method x402.PaymentMethod, req domain.PaymentRequest) (*x402.VerifyResult, error)
	Settle(ctx context.Context, method x402.PaymentMethod, req domain.PaymentRequest) (*x402.SettlementResult, error)
	Health(ctx context.Context) *domain.Health
	Supported() []domain.SupportedKind
}

// Handler handles HTTP requests for the facilitator.
type Handler struct {
	svc    Service
	apiKey string
	logger *slog.Logger
}

// NewHandler creates a new facilitator HTTP handler.
func NewHandler(svc Service, apiKey string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, apiKey: apiKey, logger: logger}
}

// RegisterRoutes registers the facilitator routes on a chi router. The
// health endpoint is exempt from authentication; everything else requires
// the configured API key.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/x402/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.apiKey, writeError))
		r.Get("/x402/supported", h.handleSupported)
		for _, method := range []x402.PaymentMethod{x402.MethodNative, x402.MethodERC20, x402.MethodEIP3009} {
			r.Post("/x402/verify-"+string(method), h.handleVerify(method))
			r.Post("/x402/settle-"+string(method), h.handleSettle(method))
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

func (h *Handler) handleSupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SupportedResponse{Kinds: h.svc.Supported()})
}

func (h *Handler) handleVerify(method x402.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decode(w, r)
		if !ok {
			return
		}

		res, err := h.svc.Verify(r.Context(), method, req.ToDomain())
		if err != nil {
			metrics.RecordVerify(string(method), "error")
			h.writeServiceError(w, err, "Failed to verify payment")
			return
		}

		outcome := "invalid"
		if res.Valid {
			outcome = "valid"
		}
		metrics.RecordVerify(string(method), outcome)
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) handleSettle(method x402.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decode(w, r)
		if !ok {
			return
		}

		// Settlement moves funds; a client disconnect must not abort the
		// in-flight chain call. The deadline keeps a never-mining
		// transaction from pinning the handler: the receipt wait gives up
		// and the result comes back as a settlement failure.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), settleTimeout)
		defer cancel()

		start := time.Now()
		res, err := h.svc.Settle(ctx, method, req.ToDomain())
		if err != nil {
			metrics.RecordSettle(string(method), "error", time.Since(start))
			h.writeServiceError(w, err, "Failed to settle payment")
			return
		}

		if !res.Success {
			metrics.RecordSettle(string(method), "failure", time.Since(start))
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
		metrics.RecordSettle(string(method), "success", time.Since(start))
		writeJSON(w, http.StatusOK, res)
	}
}

// decode reads the capped request body and parses it as JSON. A false return
// means the response has already been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (PaymentRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body too large or unreadable")
		return PaymentRequest{}, false
	}

	var req PaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return PaymentRequest{}, false
	}
	return req, true
}

// writeServiceError maps domain errors to HTTP codes. Configuration
// mismatches the caller can fix map to 400; everything else is a 500 with a
// generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, networks.ErrNetworkNotFound):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Network not supported")
	case errors.Is(err, networks.ErrTokenNotFound):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token not supported")
	case errors.Is(err, domain.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown payment method")
	default:
		h.logger.Error("facilitator request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", generic)
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
