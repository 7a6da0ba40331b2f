package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/go-chi/chi/v5"
)

type ItemsHandler struct {
	Items *shop.ItemRepo
	Sink  shop.EventSink
}

func (h *ItemsHandler) Register(r *chi.Mux) {
	r.Get("/items", h.listItems)
	r.Get("/items/lookup", h.lookupItem)
	r.Get("/items/{id}", h.getItem)
	r.Post("/items", h.createItem)
	r.Patch("/items/{id}", h.editItem)
	r.Post("/items/{id}/restock", h.restockItem)
	r.Delete("/items/{id}", h.removeItem)
	r.Post("/items/{id}/keys", h.addKeys)
	r.Get("/items/export", h.exportCSV)
	r.Get("/shop/status", h.shopStatus)
	r.Put("/shop/status", h.setShopStatus)
	r.Put("/shop/hide-stock", h.setHideStock)
}

// itemView is the buyer-facing shape: stock rendered per the shop's
// visibility settings instead of raw counters.
type itemView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	PriceCents  int    `json:"price_cents"`
	Price       string `json:"price"`
	Stock       string `json:"stock,omitempty"`
	Digital     bool   `json:"digital"`
}

// renderStock applies presentation only; reservation math always uses the
// exact counters.
func renderStock(it shop.Item, hideAll bool) string {
	if hideAll {
		return ""
	}
	if it.Visibility == shop.VisibilityBinary {
		if it.ForSale() > 0 {
			return "in stock"
		}
		return "out of stock"
	}
	return strconv.Itoa(it.ForSale())
}

func (h *ItemsHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Items.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	hideAll, err := h.Items.HideStock(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	views := make([]itemView, 0, len(items))
	for _, it := range items {
		if it.Status != shop.ItemActive {
			continue
		}
		views = append(views, itemView{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			ImageURL:    it.ImageURL,
			PriceCents:  it.PriceCents,
			Price:       shop.FormatCents(it.PriceCents),
			Stock:       renderStock(it, hideAll),
			Digital:     it.Digital,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ItemsHandler) getItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Items.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// lookupItem resolves an item by its (unique) name, the handle buyers
// actually type.
func (h *ItemsHandler) lookupItem(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Items.GetByName(ctx, name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *ItemsHandler) createItem(w http.ResponseWriter, r *http.Request) {
	var in shop.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if in.Name == "" || in.PriceCents < 0 || in.Qty < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Items.Create(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *ItemsHandler) editItem(w http.ResponseWriter, r *http.Request) {
	var e shop.ItemEdit
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.Edit(ctx, chi.URLParam(r, "id"), e); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ItemsHandler) restockItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "qty must be positive"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.Restock(ctx, chi.URLParam(r, "id"), req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restocked"})
}

func (h *ItemsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.Remove(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *ItemsHandler) addKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "keys required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.AddKeys(ctx, chi.URLParam(r, "id"), req.Keys); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": len(req.Keys)})
}

func (h *ItemsHandler) exportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="items.csv"`)
	if err := h.Items.ExportCSV(ctx, w); err != nil {
		// headers already sent; best effort
		return
	}
}

func (h *ItemsHandler) shopStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, err := h.Items.Setting(ctx, "shop_status")
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *ItemsHandler) setShopStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Status != "open" && req.Status != "closed" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be open or closed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.SetSetting(ctx, "shop_status", req.Status); err != nil {
		writeErr(w, err)
		return
	}
	h.Sink.Publish(shop.EventShopStatusChanged, "", shop.ShopStatusChangedPayload{Status: req.Status})
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *ItemsHandler) setHideStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Items.SetSetting(ctx, "hide_stock", strconv.FormatBool(req.Hidden)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hidden": req.Hidden})
}
