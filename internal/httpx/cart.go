package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Cart *cart.Repo
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Post("/cart/{owner}/items", h.addItem)
	r.Delete("/cart/{owner}/items/{itemID}", h.removeItem)
	r.Get("/cart/{owner}", h.viewCart)
	r.Delete("/cart/{owner}", h.clearCart)
	r.Get("/carts", h.listCarts)
	r.Delete("/carts", h.wipeCarts)
}

func ownerParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "owner"), 10, 64)
	return id, err == nil && id > 0
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner"})
		return
	}
	var req struct {
		ItemID string `json:"item_id"`
		Qty    int    `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_id required"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Cart.AddItem(ctx, ownerID, req.ItemID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	lines, err := h.Cart.View(ctx, ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp(ownerID, lines))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Cart.RemoveItem(ctx, ownerID, chi.URLParam(r, "itemID")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *CartHandler) viewCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Cart.View(ctx, ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp(ownerID, lines))
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Cart.Clear(ctx, ownerID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *CartHandler) listCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	carts, err := h.Cart.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, carts)
}

func (h *CartHandler) wipeCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Cart.WipeAll(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"wiped_lines": n})
}

type cartView struct {
	OwnerID    int64       `json:"owner_id"`
	Lines      []cart.Line `json:"lines"`
	TotalCents int         `json:"total_cents"`
	Total      string      `json:"total"`
}

func cartResp(ownerID int64, lines []cart.Line) cartView {
	total := 0
	for _, l := range lines {
		total += l.Qty * l.PriceCents
	}
	return cartView{OwnerID: ownerID, Lines: lines, TotalCents: total, Total: shop.FormatCents(total)}
}
