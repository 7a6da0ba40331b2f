package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eamaze/shopcore/internal/checkout"
	"github.com/eamaze/shopcore/internal/fulfillment"
	"github.com/eamaze/shopcore/internal/payment"
	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Checkout    *checkout.Service
	Payments    *payment.Service
	Fulfillment *fulfillment.Service
	Orders      *shop.OrderRepo
	Redis       *redis.Client
}

type CheckoutReq struct {
	OwnerID     int64              `json:"owner_id"`
	Method      shop.PaymentMethod `json:"method"`
	CreditCents int                `json:"credit_cents"`
}

type CheckoutResp struct {
	OrderID    string `json:"order_id"`
	TotalCents int    `json:"total_cents"`
	DueCents   int    `json:"due_cents"`
	ApproveURL string `json:"approve_url,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/attest", h.attest)
	r.Post("/orders/{id}/complete", h.complete)
	r.Post("/orders/{id}/review", h.review)
	r.Post("/orders/{id}/refund", h.refund)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OwnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id required"})
		return
	}
	switch req.Method {
	case shop.MethodPayPal, shop.MethodCrypto:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown payment method"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, approveURL, err := h.Checkout.Checkout(ctx, req.OwnerID, req.Method, req.CreditCents)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CheckoutResp{
		OrderID:    order.ID,
		TotalCents: order.TotalCents,
		DueCents:   order.DueCents(),
		ApproveURL: approveURL,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves from the Redis cache first, matching the write path that
// refreshes the key on every transition.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Orders.Status(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	b, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "cancelled via API"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Checkout.Cancel(ctx, chi.URLParam(r, "id"), req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.StatusCancelled)})
}

// attest is the manual verification path: a staff member vouches that an
// off-provider payment arrived.
func (h *OrdersHandler) attest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StaffID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "staff_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Payments.Attest(ctx, chi.URLParam(r, "id"), req.StaffID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.StatusPaid)})
}

func (h *OrdersHandler) complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID int64 `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StaffID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "staff_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Fulfillment.Complete(ctx, chi.URLParam(r, "id"), req.StaffID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.StatusFulfilled)})
}

func (h *OrdersHandler) review(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID int64 `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Fulfillment.Review(ctx, chi.URLParam(r, "id"), req.OwnerID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.StatusReviewed)})
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StaffID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "staff_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Checkout.Refund(ctx, chi.URLParam(r, "id"), req.StaffID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.StatusRefunded)})
}
