package shop

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ItemRepo struct{ DB postgres.Pool }

type ItemInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	PriceCents  int             `json:"price_cents"`
	Qty         int             `json:"qty"`
	Digital     bool            `json:"digital"`
	Visibility  StockVisibility `json:"visibility"`
}

func (r *ItemRepo) Create(ctx context.Context, in ItemInput) (*Item, error) {
	if in.Visibility == "" {
		in.Visibility = VisibilityExact
	}
	it := &Item{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		PriceCents:   in.PriceCents,
		QtyAvailable: in.Qty,
		Digital:      in.Digital,
		Visibility:   in.Visibility,
		Status:       ItemActive,
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO items(id, name, description, image_url, price_cents, qty_available, digital, stock_visibility, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, it.ID, it.Name, it.Description, it.ImageURL, it.PriceCents, it.QtyAvailable, it.Digital, it.Visibility, it.Status)
	if err != nil {
		return nil, err
	}
	return it, nil
}

type ItemEdit struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	ImageURL    *string          `json:"image_url"`
	PriceCents  *int             `json:"price_cents"`
	Visibility  *StockVisibility `json:"visibility"`
	Status      *ItemStatus      `json:"status"`
}

func (r *ItemRepo) Edit(ctx context.Context, id string, e ItemEdit) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE items SET
			name             = COALESCE($2, name),
			description      = COALESCE($3, description),
			image_url        = COALESCE($4, image_url),
			price_cents      = COALESCE($5, price_cents),
			stock_visibility = COALESCE($6, stock_visibility),
			status           = COALESCE($7, status),
			updated_at       = now()
		WHERE id=$1
	`, id, e.Name, e.Description, e.ImageURL, e.PriceCents, e.Visibility, e.Status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Restock adds quantity back to availability. Also the deliberate manual step
// after a refund; nothing re-increments stock automatically.
func (r *ItemRepo) Restock(ctx context.Context, id string, qty int) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE items SET qty_available = qty_available + $2, updated_at = now() WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ItemRepo) Remove(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ItemRepo) Get(ctx context.Context, id string) (*Item, error) {
	return r.scanOne(r.DB.QueryRow(ctx, itemCols+` WHERE id=$1`, id))
}

func (r *ItemRepo) GetByName(ctx context.Context, name string) (*Item, error) {
	return r.scanOne(r.DB.QueryRow(ctx, itemCols+` WHERE name=$1`, name))
}

const itemCols = `SELECT id, name, description, image_url, price_cents, qty_available, qty_reserved,
       digital, stock_visibility, status, created_at, updated_at FROM items`

func (r *ItemRepo) scanOne(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PriceCents,
		&it.QtyAvailable, &it.QtyReserved, &it.Digital, &it.Visibility, &it.Status,
		&it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *ItemRepo) List(ctx context.Context) ([]Item, error) {
	rows, err := r.DB.Query(ctx, itemCols+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PriceCents,
			&it.QtyAvailable, &it.QtyReserved, &it.Digital, &it.Visibility, &it.Status,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddKeys loads license keys into an item's digital delivery pool.
func (r *ItemRepo) AddKeys(ctx context.Context, itemID string, keys []string) error {
	for _, k := range keys {
		if _, err := r.DB.Exec(ctx,
			`INSERT INTO license_keys(id, item_id, key) VALUES ($1,$2,$3)`,
			uuid.NewString(), itemID, k); err != nil {
			return err
		}
	}
	return nil
}

// ExportCSV writes the catalogue. Stock visibility is presentation-only: a
// binary item shows in/out instead of a count, and hide_stock blanks it.
func (r *ItemRepo) ExportCSV(ctx context.Context, w io.Writer) error {
	items, err := r.List(ctx)
	if err != nil {
		return err
	}
	hide, err := r.HideStock(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "price", "stock", "reserved", "digital", "status"}); err != nil {
		return err
	}
	for _, it := range items {
		stock := strconv.Itoa(it.QtyAvailable)
		switch {
		case hide:
			stock = "hidden"
		case it.Visibility == VisibilityBinary:
			if it.ForSale() > 0 {
				stock = "in stock"
			} else {
				stock = "out of stock"
			}
		}
		if err := cw.Write([]string{
			it.ID, it.Name, FormatCents(it.PriceCents), stock,
			strconv.Itoa(it.QtyReserved), strconv.FormatBool(it.Digital), string(it.Status),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ---- settings (single-row state with optimistic versioning) ----

const (
	SettingShopStatus = "shop_status"
	SettingHideStock  = "hide_stock"
)

func (r *ItemRepo) Setting(ctx context.Context, name string) (string, error) {
	var v string
	err := r.DB.QueryRow(ctx, `SELECT value FROM settings WHERE name=$1`, name).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetSetting bumps the row version so concurrent workers converge on one value.
func (r *ItemRepo) SetSetting(ctx context.Context, name, value string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO settings(name, value, version) VALUES ($1,$2,1)
		ON CONFLICT (name) DO UPDATE SET value=$2, version=settings.version+1
	`, name, value)
	return err
}

func (r *ItemRepo) ShopOpen(ctx context.Context) (bool, error) {
	v, err := r.Setting(ctx, SettingShopStatus)
	if err != nil {
		return false, err
	}
	return v != "closed", nil
}

func (r *ItemRepo) HideStock(ctx context.Context) (bool, error) {
	v, err := r.Setting(ctx, SettingHideStock)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// LogEvent appends to the analytics trail. Failures are the caller's to
// ignore; analytics never block a sale.
func (r *ItemRepo) LogEvent(ctx context.Context, eventType, itemID string, userID int64) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO analytics(event_type, item_id, user_id) VALUES ($1,$2,$3)`,
		eventType, itemID, userID)
	return err
}
