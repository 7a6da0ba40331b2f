package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/eamaze/shopcore/internal/credit"
	"github.com/eamaze/shopcore/internal/giveaway"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/eamaze/shopcore/internal/ticket"
	"github.com/eamaze/shopcore/internal/tier"
	"github.com/go-chi/chi/v5"
)

// CommunityHandler groups the member-facing surfaces around the order
// pipeline: support tickets, the giveaway, store credit, and tier rules.
type CommunityHandler struct {
	Tickets  *ticket.Manager
	Giveaway *giveaway.Scheduler
	Credit   *credit.Repo
	Tiers    *tier.Repo
	Eval     *tier.Evaluator
}

func (h *CommunityHandler) Register(r *chi.Mux) {
	r.Post("/tickets", h.openTicket)
	r.Get("/tickets/{id}", h.getTicket)
	r.Post("/tickets/{id}/close", h.closeTicket)
	r.Get("/tickets/panel", h.getPanel)
	r.Put("/tickets/panel", h.setPanel)
	r.Post("/giveaway/enter", h.enterGiveaway)
	r.Get("/credit/{user}", h.getBalance)
	r.Post("/credit/{user}/add", h.addCredit)
	r.Put("/credit/{user}", h.setCredit)
	r.Get("/tiers", h.listTiers)
	r.Put("/tiers/{role}", h.setTier)
	r.Delete("/tiers/{role}", h.removeTier)
	r.Delete("/users/{user}/roles/{role}", h.revokeRole)
}

func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *CommunityHandler) openTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID    int64  `json:"owner_id"`
		ChannelRef string `json:"channel_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID <= 0 || req.ChannelRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id and channel_ref required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tickets.Open(ctx, req.OwnerID, req.ChannelRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *CommunityHandler) getTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	t, err := h.Tickets.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *CommunityHandler) closeTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Tickets.Close(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(shop.TicketClosed)})
}

func (h *CommunityHandler) getPanel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ref, err := h.Tickets.Panel(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel_ref": ref})
}

func (h *CommunityHandler) setPanel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelRef string `json:"channel_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel_ref required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Tickets.SetPanel(ctx, req.ChannelRef); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel_ref": req.ChannelRef})
}

func (h *CommunityHandler) enterGiveaway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	round, err := h.Giveaway.Enter(ctx, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round_id": round.ID, "ends_at": round.EndsAt})
}

func (h *CommunityHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "user")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cents, err := h.Credit.Balance(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"balance_cents": cents,
		"balance":       shop.FormatCents(cents),
	})
}

func (h *CommunityHandler) addCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "user")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user"})
		return
	}
	var req struct {
		DeltaCents int `json:"delta_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeltaCents == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delta_cents required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cents, err := h.Credit.Add(ctx, userID, req.DeltaCents)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance_cents": cents})
}

func (h *CommunityHandler) setCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "user")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user"})
		return
	}
	var req struct {
		Cents int `json:"cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Credit.Set(ctx, userID, req.Cents); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance_cents": req.Cents})
}

func (h *CommunityHandler) listTiers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rules, err := h.Tiers.Rules(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *CommunityHandler) setTier(w http.ResponseWriter, r *http.Request) {
	roleID, ok := int64Param(r, "role")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}
	var req struct {
		ThresholdCents int `json:"threshold_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThresholdCents < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold_cents required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Tiers.SetRule(ctx, roleID, req.ThresholdCents); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role_id": roleID, "threshold_cents": req.ThresholdCents})
}

func (h *CommunityHandler) removeTier(w http.ResponseWriter, r *http.Request) {
	roleID, ok := int64Param(r, "role")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Tiers.RemoveRule(ctx, roleID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *CommunityHandler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, okU := int64Param(r, "user")
	roleID, okR := int64Param(r, "role")
	if !okU || !okR {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user or role"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Eval.Revoke(ctx, userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
