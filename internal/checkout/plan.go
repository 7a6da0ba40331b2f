package checkout

import (
	"fmt"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/shop"
)

// plan is the validated snapshot a cart turns into before any reservation.
type plan struct {
	Lines      []shop.OrderLine
	TotalCents int
}

// buildPlan re-validates every cart line against the live catalogue. Any
// mismatch aborts before a single reservation is attempted and leaves the
// cart untouched so the user can retry.
func buildPlan(orderID string, lines []cart.Line, items map[string]shop.Item) (*plan, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("cart is empty: %w", shop.ErrStaleCart)
	}
	p := &plan{}
	for _, l := range lines {
		it, ok := items[l.ItemID]
		if !ok {
			return nil, fmt.Errorf("item %s no longer exists: %w", l.ItemID, shop.ErrStaleCart)
		}
		if it.Status != shop.ItemActive {
			return nil, fmt.Errorf("item %s is no longer for sale: %w", it.Name, shop.ErrStaleCart)
		}
		if it.PriceCents != l.PriceCents {
			return nil, fmt.Errorf("price of %s changed from %s to %s: %w",
				it.Name, shop.FormatCents(l.PriceCents), shop.FormatCents(it.PriceCents), shop.ErrStaleCart)
		}
		if it.ForSale() < l.Qty {
			return nil, fmt.Errorf("item %s: %w", it.Name, shop.ErrInsufficientStock)
		}
		p.Lines = append(p.Lines, shop.OrderLine{
			OrderID:    orderID,
			ItemID:     l.ItemID,
			Name:       it.Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
			Digital:    it.Digital,
		})
		p.TotalCents += l.Qty * l.PriceCents
	}
	return p, nil
}
