package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-booking/internal/model"
)

// BookingRepo is the MySQL booking ledger.  The bookings table carries
// UNIQUE(event_id, seat_id), which is the last line of defence against
// double allocation; the row locks taken through bookingTx make sure the
// service sees a conflict before it ever hits that key.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

var _ BookingLedger = (*BookingRepo)(nil)

const bookingColumns = `id, event_id, seat_id, user_id, name, comment, booking_code, type, picked_up_at, created_at, updated_at`

// ledgerTxOptions runs ledger transactions at READ COMMITTED.  Plain reads
// then see the latest committed rows, and locking reads that match nothing
// take no gap locks, so writers of different events never block each other
// on the bookings indexes.  Writers of one event are serialised by the
// event row lock.
var ledgerTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithinTx opens a transaction, hands it to fn and commits when fn
// succeeds.  Any error from fn, or a failed commit, rolls the whole
// transaction back.
func (r *BookingRepo) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTxx(ctx, ledgerTxOptions)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	committed = true
	return nil
}

// CountByEvent returns the number of committed bookings for an event.
func (r *BookingRepo) CountByEvent(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE event_id = ?`, eventID)
	return n, err
}

// CountByEventAndUser returns the number of bookings a user holds for an event.
func (r *BookingRepo) CountByEventAndUser(ctx context.Context, eventID, userID uint64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE event_id = ? AND user_id = ?`, eventID, userID)
	return n, err
}

// BookedSeatIDs returns the booked seat ids of an event in ascending order.
func (r *BookingRepo) BookedSeatIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	ids := make([]uint64, 0)
	err := r.db.SelectContext(ctx, &ids, `SELECT seat_id FROM bookings WHERE event_id = ? ORDER BY seat_id`, eventID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByEvent returns all bookings of an event, newest first.
func (r *BookingRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = ? ORDER BY created_at DESC, id DESC`, eventID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByEventAndUser returns a user's bookings for an event in seat order.
func (r *BookingRepo) ListByEventAndUser(ctx context.Context, eventID, userID uint64) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = ? AND user_id = ? ORDER BY seat_id`, eventID, userID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCode returns every booking carrying the code in seat order.
func (r *BookingRepo) ListByCode(ctx context.Context, code string) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_code = ? ORDER BY event_id, seat_id`, code)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// bookingTx implements LedgerTx on an open *sqlx.Tx.
type bookingTx struct {
	tx *sqlx.Tx
}

func (t *bookingTx) LockEvent(ctx context.Context, eventID uint64) error {
	var id uint64
	err := t.tx.GetContext(ctx, &id, `SELECT id FROM events WHERE id = ? FOR UPDATE`, eventID)
	if isNoRows(err) {
		return ErrEventNotFound
	}
	return translate(err)
}

// LockSeats locks the seat rows with one statement.  ORDER BY id makes
// InnoDB acquire the row locks in ascending order, matching the order every
// other writer uses.
func (t *bookingTx) LockSeats(ctx context.Context, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`SELECT id FROM seats WHERE id IN (?) ORDER BY id FOR UPDATE`, seatIDs)
	if err != nil {
		return err
	}
	locked := make([]uint64, 0, len(seatIDs))
	if err := t.tx.SelectContext(ctx, &locked, t.tx.Rebind(q), args...); err != nil {
		return translate(err)
	}
	return nil
}

func (t *bookingTx) BookedAmong(ctx context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error) {
	booked := make([]uint64, 0)
	if len(seatIDs) == 0 {
		return booked, nil
	}
	// no FOR UPDATE: the event and seat locks already exclude every writer
	// of these keys
	q, args, err := sqlx.In(`SELECT seat_id FROM bookings WHERE event_id = ? AND seat_id IN (?) ORDER BY seat_id`, eventID, seatIDs)
	if err != nil {
		return nil, err
	}
	if err := t.tx.SelectContext(ctx, &booked, t.tx.Rebind(q), args...); err != nil {
		return nil, translate(err)
	}
	return booked, nil
}

func (t *bookingTx) CountByEvent(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE event_id = ?`, eventID)
	return n, translate(err)
}

func (t *bookingTx) CountByEventAndUser(ctx context.Context, eventID, userID uint64) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE event_id = ? AND user_id = ?`, eventID, userID)
	return n, translate(err)
}

// CodeInUse checks committed rows only.  Two batches of different events
// may still draw the same code concurrently; codes are unique per event.
func (t *bookingTx) CodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE booking_code = ?`, code)
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (t *bookingTx) Insert(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (event_id, seat_id, user_id, name, comment, booking_code, type)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, b.EventID, b.SeatID, b.UserID, b.Name, b.Comment, b.BookingCode, b.Type)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

func (t *bookingTx) LockBooking(ctx context.Context, bookingID uint64) (*model.LockedBooking, error) {
	var lb model.LockedBooking
	err := t.tx.GetContext(ctx, &lb,
		`SELECT b.id, b.event_id, b.seat_id, b.user_id, b.name, b.comment, b.booking_code, b.type,
		        b.picked_up_at, b.created_at, b.updated_at, e.reservation_ends_at
		 FROM bookings b
		 JOIN events e ON e.id = b.event_id
		 WHERE b.id = ?
		 FOR UPDATE OF b`, bookingID)
	if isNoRows(err) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return &lb, nil
}

func (t *bookingTx) UpdateDetails(ctx context.Context, bookingID uint64, name string, comment *string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET name = ?, comment = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, comment, bookingID)
	return translate(err)
}

func (t *bookingTx) SetPickedUp(ctx context.Context, bookingID uint64, at *time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET picked_up_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at, bookingID)
	return translate(err)
}

func (t *bookingTx) Delete(ctx context.Context, bookingID uint64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, bookingID)
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
