package checkout

import (
	"testing"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeItem(id, name string, price, available, reserved int) shop.Item {
	return shop.Item{
		ID:           id,
		Name:         name,
		PriceCents:   price,
		QtyAvailable: available,
		QtyReserved:  reserved,
		Status:       shop.ItemActive,
	}
}

func TestBuildPlan(t *testing.T) {
	lines := []cart.Line{
		{ItemID: "a", Qty: 2, PriceCents: 500},
		{ItemID: "b", Qty: 1, PriceCents: 1250},
	}
	items := map[string]shop.Item{
		"a": activeItem("a", "widget", 500, 10, 0),
		"b": activeItem("b", "gadget", 1250, 3, 2),
	}

	p, err := buildPlan("order-1", lines, items)
	require.NoError(t, err)
	assert.Equal(t, 2250, p.TotalCents)
	require.Len(t, p.Lines, 2)
	assert.Equal(t, "order-1", p.Lines[0].OrderID)
	assert.Equal(t, "widget", p.Lines[0].Name)
	assert.Equal(t, 2, p.Lines[0].Qty)
}

func TestBuildPlanEmptyCart(t *testing.T) {
	_, err := buildPlan("order-1", nil, nil)
	assert.ErrorIs(t, err, shop.ErrStaleCart)
}

func TestBuildPlanMissingItem(t *testing.T) {
	lines := []cart.Line{{ItemID: "gone", Qty: 1, PriceCents: 100}}
	_, err := buildPlan("order-1", lines, map[string]shop.Item{})
	assert.ErrorIs(t, err, shop.ErrStaleCart)
}

func TestBuildPlanInactiveItem(t *testing.T) {
	it := activeItem("a", "widget", 500, 10, 0)
	it.Status = shop.ItemHidden
	lines := []cart.Line{{ItemID: "a", Qty: 1, PriceCents: 500}}
	_, err := buildPlan("order-1", lines, map[string]shop.Item{"a": it})
	assert.ErrorIs(t, err, shop.ErrStaleCart)
}

func TestBuildPlanPriceChanged(t *testing.T) {
	lines := []cart.Line{{ItemID: "a", Qty: 1, PriceCents: 500}}
	items := map[string]shop.Item{"a": activeItem("a", "widget", 600, 10, 0)}
	_, err := buildPlan("order-1", lines, items)
	assert.ErrorIs(t, err, shop.ErrStaleCart)
}

func TestBuildPlanReservedStockCounts(t *testing.T) {
	// 5 on hand but 4 already reserved: only 1 is for sale.
	lines := []cart.Line{{ItemID: "a", Qty: 2, PriceCents: 500}}
	items := map[string]shop.Item{"a": activeItem("a", "widget", 500, 5, 4)}
	_, err := buildPlan("order-1", lines, items)
	assert.ErrorIs(t, err, shop.ErrInsufficientStock)

	lines[0].Qty = 1
	p, err := buildPlan("order-1", lines, items)
	require.NoError(t, err)
	assert.Equal(t, 500, p.TotalCents)
}
