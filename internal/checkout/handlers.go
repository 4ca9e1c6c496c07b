package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/madukaneranga/Kixora-sub000/internal/common"
	"github.com/madukaneranga/Kixora-sub000/internal/gateway"
	"github.com/madukaneranga/Kixora-sub000/internal/order"
)

// Payer is the service surface the HTTP layer depends on.
type Payer interface {
	Pay(ctx context.Context, orderID string) (gateway.Result, error)
}

// Handler exposes the checkout endpoints: starting a payment and the
// gateway's return/cancel ingress that fires the terminal events.
type Handler struct {
	Svc      Payer
	SDK      *gateway.PayHereSDK
	Validate *validator.Validate
}

type payRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// Pay opens a checkout session for the order and responds once it settles.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", fieldErrors(err))
			return
		}
	} else if req.OrderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}

	result, err := h.Svc.Pay(r.Context(), req.OrderID)
	if err != nil {
		h.writeError(w, result, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Session returns the pending hosted-checkout form for the storefront to
// render, if a session is currently open.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.SDK == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout sdk not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	pending, ok := h.SDK.Pending()
	if !ok || (orderID != "" && pending.OrderID != orderID) {
		common.JSONError(w, http.StatusNotFound, "NO_SESSION", "no pending checkout session", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"orderId": pending.OrderID,
			"action":  pending.Action,
			"fields":  pending.Fields,
		},
	})
}

// Return is the gateway's completion redirect: it fires the completed slot.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.SDK == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout sdk not configured", nil)
		return
	}
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}
	h.SDK.Completed(orderID)
	common.JSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// Cancel is the gateway's dismissal redirect: it fires the dismissed slot.
func (h *Handler) Cancel(w http.ResponseWriter, _ *http.Request) {
	if h == nil || h.SDK == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout sdk not configured", nil)
		return
	}
	h.SDK.Dismissed()
	common.JSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Failure reports a processor-side failure message: it fires the error slot.
func (h *Handler) Failure(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.SDK == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout sdk not configured", nil)
		return
	}
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		message = "payment failed"
	}
	h.SDK.Error(message)
	common.JSON(w, http.StatusOK, map[string]string{"status": "reported"})
}

func (h *Handler) writeError(w http.ResponseWriter, res gateway.Result, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	case errors.Is(err, gateway.ErrUserCancelled):
		common.JSONError(w, http.StatusConflict, "PAYMENT_CANCELLED", "payment cancelled by customer", res)
		return
	case errors.Is(err, gateway.ErrSessionTimeout):
		common.JSONError(w, http.StatusGatewayTimeout, "PAYMENT_TIMEOUT",
			"payment status unknown, check order status before retrying", res)
		return
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		common.JSONError(w, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", err.Error(), nil)
		return
	}
	var vErr *gateway.ValidationError
	if errors.As(err, &vErr) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", vErr.Error(),
			map[string]any{"fields": vErr.Fields})
		return
	}
	var lErr *gateway.ScriptLoadError
	if errors.As(err, &lErr) {
		common.JSONError(w, http.StatusServiceUnavailable, "SCRIPT_LOAD_FAILED",
			"checkout temporarily unavailable, please retry", nil)
		return
	}
	var sErr *gateway.SDKUnavailableError
	if errors.As(err, &sErr) {
		common.JSONError(w, http.StatusBadGateway, "SDK_UNAVAILABLE", sErr.Error(), nil)
		return
	}
	var gErr *gateway.GatewayError
	if errors.As(err, &gErr) {
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_FAILED", gErr.Message, res)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func fieldErrors(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return map[string]any{"fields": fields}
}
