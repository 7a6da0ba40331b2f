package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eamaze/shopcore/internal/shop"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, shop.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shop.ErrInsufficientStock),
		errors.Is(err, shop.ErrStaleCart),
		errors.Is(err, shop.ErrIllegalTransition),
		errors.Is(err, shop.ErrPaymentMismatch):
		return http.StatusConflict
	case errors.Is(err, shop.ErrShopClosed):
		return http.StatusForbidden
	case errors.Is(err, shop.ErrBelowMinimum),
		errors.Is(err, shop.ErrInsufficientCredit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
