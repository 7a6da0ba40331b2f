package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/redis/go-redis/v9"
)

// Reminder nudges owners whose carts sat untouched past the threshold.
// The Redis SetNX key throttles to one nudge per owner per interval, so the
// sweep can run as often as it likes.
type Reminder struct {
	Cart  *Repo
	Items *shop.ItemRepo
	Redis *redis.Client
	Sink  shop.EventSink

	Threshold time.Duration
	Interval  time.Duration
}

func (r *Reminder) Sweep(ctx context.Context) error {
	// No point nudging anyone toward a closed shop.
	open, err := r.Items.ShopOpen(ctx)
	if err != nil {
		return err
	}
	if !open {
		return nil
	}

	stale, err := r.Cart.Inactive(ctx, time.Now().UTC().Add(-r.Threshold))
	if err != nil {
		return err
	}
	for _, c := range stale {
		key := fmt.Sprintf(redisx.KeyCartReminder, c.OwnerID)
		ok, err := r.Redis.SetNX(ctx, key, "1", r.Interval).Result()
		if err != nil || !ok {
			continue
		}
		r.Sink.Publish(shop.EventCartReminder, fmt.Sprintf("cart-%d", c.OwnerID), shop.CartReminderPayload{
			OwnerID:    c.OwnerID,
			Lines:      c.Lines,
			LastActive: c.LastActive,
		})
	}
	return nil
}
