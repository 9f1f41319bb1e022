package repository // repository defines data access for seats

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

// SeatRepo reads the room → block → row → seat hierarchy.  The layout is
// edited by the room designer; this repository never mutates it.
type SeatRepo struct {
	db *sqlx.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sqlx.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const placementSelect = `SELECT s.id AS seat_id, s.label, s.number,
       r.id AS row_id, r.name AS row_name,
       b.id AS block_id, b.name AS block_name, b.room_id
FROM seats s
JOIN seat_rows r ON r.id = s.row_id
JOIN blocks b ON b.id = r.block_id`

// Placements resolves the given seat ids.  Ids that do not exist are simply
// absent from the result.
func (r *SeatRepo) Placements(ctx context.Context, seatIDs []uint64) ([]model.SeatPlacement, error) {
	out := make([]model.SeatPlacement, 0, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(placementSelect+` WHERE s.id IN (?)`, seatIDs)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByRoom returns the number of physical seats in a room.
func (r *SeatRepo) CountByRoom(ctx context.Context, roomID uint64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM seats s
		 JOIN seat_rows r ON r.id = s.row_id
		 JOIN blocks b ON b.id = r.block_id
		 WHERE b.room_id = ?`, roomID)
	return n, err
}

// LayoutByRoom returns every seat of a room ordered by block, row and seat
// number so the result can be grouped in one pass.
func (r *SeatRepo) LayoutByRoom(ctx context.Context, roomID uint64) ([]model.SeatPlacement, error) {
	out := make([]model.SeatPlacement, 0)
	err := r.db.SelectContext(ctx, &out,
		placementSelect+` WHERE b.room_id = ? ORDER BY b.sort, b.id, r.sort, r.id, s.number, s.id`, roomID)
	if err != nil {
		return nil, err
	}
	return out, nil
}
