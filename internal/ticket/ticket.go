// Package ticket tracks support channel lifecycle: open, close with a purge
// deadline, then a sweep that purges each closed ticket exactly once.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
)

type Manager struct {
	DB         postgres.Pool
	Sink       shop.EventSink
	PurgeDelay time.Duration
}

func (m *Manager) Open(ctx context.Context, ownerID int64, channelRef string) (*shop.Ticket, error) {
	t := shop.Ticket{OwnerID: ownerID, ChannelRef: channelRef, Status: shop.TicketOpen}
	err := m.DB.QueryRow(ctx, `
		INSERT INTO tickets (owner_id, channel_ref) VALUES ($1,$2) RETURNING id
	`, ownerID, channelRef).Scan(&t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Close stamps the purge deadline and announces it. Closing a ticket that is
// already closed or purged is a no-op, so the deadline never moves.
func (m *Manager) Close(ctx context.Context, ticketID int64) error {
	t, err := m.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Status != shop.TicketOpen {
		return nil
	}

	purgeAt := time.Now().Add(m.PurgeDelay)
	tag, err := m.DB.Exec(ctx, `
		UPDATE tickets SET status=$2, closed_at=now(), purge_at=$3
		WHERE id=$1 AND status=$4
	`, ticketID, shop.TicketClosed, purgeAt, shop.TicketOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil // raced with another close
	}

	m.Sink.Publish(shop.EventTicketClosing, fmt.Sprintf("ticket-%d", ticketID), shop.TicketClosingPayload{
		TicketID:   ticketID,
		OwnerID:    t.OwnerID,
		ChannelRef: t.ChannelRef,
		PurgeAt:    purgeAt,
	})
	return nil
}

const settingPanel = "ticket_panel"

// SetPanel records which channel hosts the ticket panel so the presentation
// adapter can rebuild it after a restart.
func (m *Manager) SetPanel(ctx context.Context, channelRef string) error {
	_, err := m.DB.Exec(ctx, `
		INSERT INTO settings(name, value, version) VALUES ($1,$2,1)
		ON CONFLICT (name) DO UPDATE SET value=$2, version=settings.version+1
	`, settingPanel, channelRef)
	return err
}

func (m *Manager) Panel(ctx context.Context) (string, error) {
	var v string
	err := m.DB.QueryRow(ctx, `SELECT value FROM settings WHERE name=$1`, settingPanel).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (m *Manager) Get(ctx context.Context, ticketID int64) (*shop.Ticket, error) {
	var t shop.Ticket
	err := m.DB.QueryRow(ctx, `
		SELECT id, owner_id, channel_ref, status, closed_at, purge_at
		FROM tickets WHERE id=$1
	`, ticketID).Scan(&t.ID, &t.OwnerID, &t.ChannelRef, &t.Status, &t.ClosedAt, &t.PurgeAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shop.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PurgeDue purges every closed ticket whose deadline has passed and returns
// how many it purged. The guarded UPDATE makes each purge fire once across
// concurrent sweeps; losing the race is not an error.
func (m *Manager) PurgeDue(ctx context.Context) (int, error) {
	rows, err := m.DB.Query(ctx, `
		SELECT id FROM tickets WHERE status=$1 AND purge_at <= now()
	`, shop.TicketClosed)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range ids {
		ok, err := m.purgeOne(ctx, id)
		if err != nil {
			log.Printf("ticket: purge %d: %v", id, err)
			continue
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}

func (m *Manager) purgeOne(ctx context.Context, ticketID int64) (bool, error) {
	var channelRef string
	err := m.DB.QueryRow(ctx, `
		UPDATE tickets SET status=$2
		WHERE id=$1 AND status=$3
		RETURNING channel_ref
	`, ticketID, shop.TicketPurged, shop.TicketClosed).Scan(&channelRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // another sweep got it first
	}
	if err != nil {
		return false, err
	}

	m.Sink.Publish(shop.EventTicketPurged, fmt.Sprintf("ticket-%d", ticketID), shop.TicketPurgedPayload{
		TicketID:   ticketID,
		ChannelRef: channelRef,
	})
	return true, nil
}
