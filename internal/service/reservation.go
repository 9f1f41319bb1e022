package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-booking/internal/config"
	"github.com/iliyamo/event-seat-booking/internal/metrics"
	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/repository"
)

// Field limits for booking details.
const (
	MaxNameLength    = 255
	MaxCommentLength = 1000
)

// SeatSelection is one requested seat with the name to print on it.
type SeatSelection struct {
	SeatID  uint64
	Name    string
	Comment *string
}

// BookingBatch is the result of one reserve or manual reserve call.
type BookingBatch struct {
	EventID     uint64            `json:"event_id"`
	BookingCode *string           `json:"booking_code"`
	Bookings    []model.Booking   `json:"bookings"`
	Seats       []SeatDescription `json:"seats"`
}

// Amendment lists the booking details to change.  Nil fields stay as they
// are; an empty comment clears it.
type Amendment struct {
	Name    *string
	Comment *string
}

// Availability summarises an event's booking state for seat pickers.
type Availability struct {
	EventID       uint64   `json:"event_id"`
	Capacity      int      `json:"capacity"`
	Remaining     int      `json:"remaining"`
	BookedSeatIDs []uint64 `json:"booked_seat_ids"`
}

// Coordinator runs reservation attempts end to end: it validates a request
// without locks, then re-validates and writes it inside one transaction
// holding exclusive locks on the event row and the requested seats.
type Coordinator struct {
	events  repository.EventReader
	ledger  repository.BookingLedger
	catalog *SeatCatalog
	quota   *QuotaPolicy
	codes   *CodeGenerator

	notifier      Notifier
	notifyTimeout time.Duration
	notifying     sync.WaitGroup

	now func() time.Time
	log *logrus.Entry
}

// NewCoordinator wires the booking rules onto the given stores.  A nil
// notifier disables post-commit signals.
func NewCoordinator(events repository.EventReader, seats repository.SeatReader, ledger repository.BookingLedger, cfg config.BookingConfig, notifier Notifier) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		events:        events,
		ledger:        ledger,
		catalog:       NewSeatCatalog(seats),
		quota:         NewQuotaPolicy(cfg.PerUserLimit, seats, ledger),
		codes:         NewCodeGenerator(cfg.CodeLength, cfg.CodeMaxAttempts),
		notifier:      notifier,
		notifyTimeout: cfg.NotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logrus.WithField("component", "reservations"),
	}
}

// Drain blocks until in-flight notifications have finished.
func (c *Coordinator) Drain() { c.notifying.Wait() }

// Reserve books the selected seats for p.  Either every seat becomes a
// booking sharing one code, or nothing is written.
func (c *Coordinator) Reserve(ctx context.Context, p model.Principal, eventID uint64, selections []SeatSelection) (*BookingBatch, error) {
	start := time.Now()
	batch, err := c.reserve(ctx, p, eventID, selections)
	observe("reserve", "online", start, len(selections), err)
	return batch, err
}

func (c *Coordinator) reserve(ctx context.Context, p model.Principal, eventID uint64, selections []SeatSelection) (*BookingBatch, error) {
	ev, err := c.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.WindowOpen(c.now()) {
		return nil, ErrReservationClosed
	}
	seatIDs, err := validateSelections(selections)
	if err != nil {
		return nil, err
	}
	k := len(seatIDs)

	// Advisory checks: cheap rejection before any lock is taken, in the
	// same order as under lock.  The authoritative checks run again once
	// the event and seat rows are locked.
	idx, err := c.catalog.SeatsExist(ctx, seatIDs, ev.RoomID)
	if err != nil {
		return nil, err
	}
	if err := c.advisoryConflicts(ctx, ev.ID, seatIDs); err != nil {
		return nil, err
	}
	capacity, err := c.quota.EffectiveCapacity(ctx, ev)
	if err != nil {
		return nil, err
	}
	remCap, err := c.quota.RemainingCapacity(ctx, ev)
	if err != nil {
		return nil, err
	}
	remUser, err := c.quota.RemainingForPrincipal(ctx, p, ev)
	if err != nil {
		return nil, err
	}
	if err := Admit(k, remCap, remUser); err != nil {
		return nil, err
	}

	allowance := c.quota.Allowance(p)
	userID := p.ID
	var (
		bookings []model.Booking
		code     string
		left     int
	)
	err = c.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := c.lockAndCheck(ctx, tx, ev.ID, seatIDs); err != nil {
			return err
		}
		booked, err := tx.CountByEvent(ctx, ev.ID)
		if err != nil {
			return err
		}
		held := 0
		if allowance != Unbounded {
			if held, err = tx.CountByEventAndUser(ctx, ev.ID, p.ID); err != nil {
				return err
			}
		}
		if err := Admit(k, remaining(capacity, booked), remaining(allowance, held)); err != nil {
			return err
		}
		if code, err = c.codes.Generate(ctx, tx); err != nil {
			return err
		}
		bookings = make([]model.Booking, 0, k)
		for _, sel := range selections {
			b := model.Booking{
				EventID:     ev.ID,
				SeatID:      sel.SeatID,
				UserID:      &userID,
				Name:        strings.TrimSpace(sel.Name),
				Comment:     normalizeComment(sel.Comment),
				BookingCode: &code,
				Type:        model.EntryOnline,
			}
			if err := tx.Insert(ctx, &b); err != nil {
				return err
			}
			bookings = append(bookings, b)
		}
		left = remaining(capacity, booked+k)
		return nil
	})
	if err != nil {
		return nil, classify(err, seatIDs)
	}

	batch := &BookingBatch{EventID: ev.ID, BookingCode: &code, Bookings: bookings, Seats: idx.Describe(seatIDs)}
	c.log.WithFields(logrus.Fields{"event_id": ev.ID, "user_id": p.ID, "code": code, "seats": seatIDs}).Info("booking batch committed")
	c.afterCommit(ctx, ev, capacity, left, batch)
	return batch, nil
}

// ManualReserve books seats on a guest's behalf.  It takes the same locks
// and conflict checks as Reserve but applies no quota, no window and no
// booking code.  entry is EntryAdmin (the default when empty) or
// EntryManual.
func (c *Coordinator) ManualReserve(ctx context.Context, operator model.Principal, eventID uint64, seatIDs []uint64, guestName string, comment *string, entry model.EntryType) (*BookingBatch, error) {
	start := time.Now()
	if entry == "" {
		entry = model.EntryAdmin
	}
	batch, err := c.manualReserve(ctx, operator, eventID, seatIDs, guestName, comment, entry)
	observe("manual_reserve", "manual", start, len(seatIDs), err)
	return batch, err
}

func (c *Coordinator) manualReserve(ctx context.Context, operator model.Principal, eventID uint64, seatIDs []uint64, guestName string, comment *string, entry model.EntryType) (*BookingBatch, error) {
	if !operator.IsAdmin {
		return nil, ErrForbidden
	}
	if entry != model.EntryAdmin && entry != model.EntryManual {
		return nil, invalid("unknown entry type %q", entry)
	}
	ev, err := c.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := validateSeatIDs(seatIDs); err != nil {
		return nil, err
	}
	guestName = strings.TrimSpace(guestName)
	if err := validateDetails(guestName, comment); err != nil {
		return nil, err
	}
	idx, err := c.catalog.SeatsExist(ctx, seatIDs, ev.RoomID)
	if err != nil {
		return nil, err
	}
	capacity, err := c.quota.EffectiveCapacity(ctx, ev)
	if err != nil {
		return nil, err
	}

	var (
		bookings []model.Booking
		left     int
	)
	err = c.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		if err := c.lockAndCheck(ctx, tx, ev.ID, seatIDs); err != nil {
			return err
		}
		booked, err := tx.CountByEvent(ctx, ev.ID)
		if err != nil {
			return err
		}
		bookings = make([]model.Booking, 0, len(seatIDs))
		for _, id := range seatIDs {
			b := model.Booking{
				EventID: ev.ID,
				SeatID:  id,
				Name:    guestName,
				Comment: normalizeComment(comment),
				Type:    entry,
			}
			if err := tx.Insert(ctx, &b); err != nil {
				return err
			}
			bookings = append(bookings, b)
		}
		left = remaining(capacity, booked+len(seatIDs))
		return nil
	})
	if err != nil {
		return nil, classify(err, seatIDs)
	}

	batch := &BookingBatch{EventID: ev.ID, Bookings: bookings, Seats: idx.Describe(seatIDs)}
	c.log.WithFields(logrus.Fields{"event_id": ev.ID, "operator_id": operator.ID, "seats": seatIDs, "type": entry}).Info("manual bookings committed")
	c.afterCommit(ctx, ev, capacity, left, batch)
	return batch, nil
}

// lockAndCheck takes the event lock, then the seat locks in ascending id
// order, and fails with the already booked seats if there are any.
func (c *Coordinator) lockAndCheck(ctx context.Context, tx repository.LedgerTx, eventID uint64, seatIDs []uint64) error {
	if err := tx.LockEvent(ctx, eventID); err != nil {
		return err
	}
	ordered := slices.Clone(seatIDs)
	slices.Sort(ordered)
	if err := tx.LockSeats(ctx, ordered); err != nil {
		return err
	}
	taken, err := tx.BookedAmong(ctx, eventID, ordered)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &SeatError{Kind: ErrSeatAlreadyBooked, SeatIDs: taken}
	}
	return nil
}

// advisoryConflicts reports requested seats that are already booked,
// without taking locks.
func (c *Coordinator) advisoryConflicts(ctx context.Context, eventID uint64, seatIDs []uint64) error {
	booked, err := c.ledger.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return persistence("list booked seats", err)
	}
	taken := lo.Intersect(booked, seatIDs)
	if len(taken) > 0 {
		slices.Sort(taken)
		return &SeatError{Kind: ErrSeatAlreadyBooked, SeatIDs: taken}
	}
	return nil
}

// Amend changes the name or comment of a booking.
func (c *Coordinator) Amend(ctx context.Context, p model.Principal, bookingID uint64, a Amendment) error {
	if a.Name == nil && a.Comment == nil {
		return invalid("nothing to change")
	}
	if a.Name != nil {
		trimmed := strings.TrimSpace(*a.Name)
		a.Name = &trimmed
		if err := validateDetails(trimmed, a.Comment); err != nil {
			return err
		}
	} else if err := validateComment(a.Comment); err != nil {
		return err
	}
	err := c.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		lb, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := c.guard(p, lb); err != nil {
			return err
		}
		name, comment := lb.Name, lb.Comment
		if a.Name != nil {
			name = *a.Name
		}
		if a.Comment != nil {
			comment = normalizeComment(a.Comment)
		}
		return tx.UpdateDetails(ctx, bookingID, name, comment)
	})
	if err != nil {
		return classify(err, nil)
	}
	return nil
}

// Cancel deletes a booking and returns it as it was before deletion.
func (c *Coordinator) Cancel(ctx context.Context, p model.Principal, bookingID uint64) (*model.Booking, error) {
	var cancelled model.Booking
	err := c.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		lb, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := c.guard(p, lb); err != nil {
			return err
		}
		cancelled = lb.Booking
		return tx.Delete(ctx, bookingID)
	})
	if err != nil {
		return nil, classify(err, nil)
	}
	c.log.WithFields(logrus.Fields{"booking_id": bookingID, "event_id": cancelled.EventID, "by": p.ID, "admin": p.IsAdmin}).Info("booking cancelled")
	return &cancelled, nil
}

// SetPickup records or clears the handover of a physical ticket.
func (c *Coordinator) SetPickup(ctx context.Context, operator model.Principal, bookingID uint64, pickedUp bool) (*model.Booking, error) {
	if !operator.IsAdmin {
		return nil, ErrForbidden
	}
	var out model.Booking
	err := c.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		lb, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		var at *time.Time
		if pickedUp {
			now := c.now()
			at = &now
		}
		if err := tx.SetPickedUp(ctx, bookingID, at); err != nil {
			return err
		}
		out = lb.Booking
		out.PickedUpAt = at
		return nil
	})
	if err != nil {
		return nil, classify(err, nil)
	}
	return &out, nil
}

// guard decides whether p may amend or cancel the locked booking.  Admins
// always may; owners only while the window is open and the ticket has not
// been picked up.
func (c *Coordinator) guard(p model.Principal, lb *model.LockedBooking) error {
	if p.IsAdmin {
		return nil
	}
	if !lb.OwnedBy(p.ID) {
		return ErrForbidden
	}
	if lb.ReservationEndsAt != nil && !c.now().Before(*lb.ReservationEndsAt) {
		return ErrReservationClosed
	}
	if lb.PickedUpAt != nil {
		return ErrAlreadyPickedUp
	}
	return nil
}

// RemainingCapacity returns how many seats the event can still issue.
func (c *Coordinator) RemainingCapacity(ctx context.Context, eventID uint64) (int, error) {
	ev, err := c.loadEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return c.quota.RemainingCapacity(ctx, ev)
}

// BookedSeatIDs returns the booked seats of an event in ascending order.
func (c *Coordinator) BookedSeatIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	if _, err := c.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	ids, err := c.ledger.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return nil, persistence("list booked seats", err)
	}
	return ids, nil
}

// Availability combines capacity and booked seats for one event.
func (c *Coordinator) Availability(ctx context.Context, eventID uint64) (*Availability, error) {
	ev, err := c.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	capacity, err := c.quota.EffectiveCapacity(ctx, ev)
	if err != nil {
		return nil, err
	}
	ids, err := c.ledger.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return nil, persistence("list booked seats", err)
	}
	return &Availability{EventID: ev.ID, Capacity: capacity, Remaining: remaining(capacity, len(ids)), BookedSeatIDs: ids}, nil
}

// Layout returns the event's room layout with booked flags.
func (c *Coordinator) Layout(ctx context.Context, eventID uint64) ([]LayoutBlock, error) {
	ev, err := c.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ids, err := c.ledger.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return nil, persistence("list booked seats", err)
	}
	return c.catalog.Layout(ctx, ev.RoomID, ids)
}

// BookingsForPrincipal lists p's own bookings for an event.
func (c *Coordinator) BookingsForPrincipal(ctx context.Context, p model.Principal, eventID uint64) ([]model.Booking, error) {
	if _, err := c.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	out, err := c.ledger.ListByEventAndUser(ctx, eventID, p.ID)
	if err != nil {
		return nil, persistence("list user bookings", err)
	}
	return out, nil
}

// EventBookings lists every booking of an event for an operator.
func (c *Coordinator) EventBookings(ctx context.Context, operator model.Principal, eventID uint64) ([]model.Booking, error) {
	if !operator.IsAdmin {
		return nil, ErrForbidden
	}
	if _, err := c.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	out, err := c.ledger.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, persistence("list event bookings", err)
	}
	return out, nil
}

// BatchByCode returns the batch p booked under code for the event, as shown
// on the confirmation page.  Admins can open any batch.
func (c *Coordinator) BatchByCode(ctx context.Context, p model.Principal, eventID uint64, code string) (*BookingBatch, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, invalid("booking code required")
	}
	all, err := c.ledger.ListByCode(ctx, code)
	if err != nil {
		return nil, persistence("list bookings by code", err)
	}
	mine := lo.Filter(all, func(b model.Booking, _ int) bool {
		return b.EventID == eventID && (p.IsAdmin || b.OwnedBy(p.ID))
	})
	if len(mine) == 0 {
		return nil, ErrBookingNotFound
	}
	return c.describeBatch(ctx, eventID, code, mine)
}

// LookupCode finds the batch carrying code for the box office.
func (c *Coordinator) LookupCode(ctx context.Context, operator model.Principal, code string) (*BookingBatch, error) {
	if !operator.IsAdmin {
		return nil, ErrForbidden
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, invalid("booking code required")
	}
	all, err := c.ledger.ListByCode(ctx, code)
	if err != nil {
		return nil, persistence("list bookings by code", err)
	}
	if len(all) == 0 {
		return nil, ErrBookingNotFound
	}
	// Codes are unique among live batches; older batches of other events
	// may reuse one, so the most recent event wins.
	latest := lo.MaxBy(all, func(a, b model.Booking) bool { return a.CreatedAt.After(b.CreatedAt) })
	batch := lo.Filter(all, func(b model.Booking, _ int) bool { return b.EventID == latest.EventID })
	return c.describeBatch(ctx, latest.EventID, code, batch)
}

func (c *Coordinator) describeBatch(ctx context.Context, eventID uint64, code string, bookings []model.Booking) (*BookingBatch, error) {
	ids := lo.Map(bookings, func(b model.Booking, _ int) uint64 { return b.SeatID })
	seats, err := c.catalog.Describe(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &BookingBatch{EventID: eventID, BookingCode: &code, Bookings: bookings, Seats: seats}, nil
}

func (c *Coordinator) loadEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	if eventID == 0 {
		return nil, invalid("event id required")
	}
	ev, err := c.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, persistence("load event", err)
	}
	return ev, nil
}

// afterCommit publishes the post-commit signals without blocking the caller.
func (c *Coordinator) afterCommit(ctx context.Context, ev *model.Event, capacity, left int, batch *BookingBatch) {
	committed := BatchCommitted{
		EventID:     ev.ID,
		EventName:   ev.Name,
		BookingCode: batch.BookingCode,
		Seats:       batch.Seats,
		CommittedAt: c.now(),
	}
	if len(batch.Bookings) > 0 {
		committed.UserID = batch.Bookings[0].UserID
		committed.Type = batch.Bookings[0].Type
		committed.Names = lo.Uniq(lo.Map(batch.Bookings, func(b model.Booking, _ int) string { return b.Name }))
	}
	c.notify(ctx, "batch_committed", func(ctx context.Context) error {
		return c.notifier.BatchCommitted(ctx, committed)
	})
	if left == 0 {
		exhausted := CapacityExhausted{EventID: ev.ID, EventName: ev.Name, RoomID: ev.RoomID, Capacity: capacity, Booked: capacity, At: c.now()}
		c.notify(ctx, "capacity_exhausted", func(ctx context.Context) error {
			return c.notifier.CapacityExhausted(ctx, exhausted)
		})
	}
}

func (c *Coordinator) notify(ctx context.Context, kind string, send func(context.Context) error) {
	c.notifying.Add(1)
	go func() {
		defer c.notifying.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
		defer cancel()
		if err := send(nctx); err != nil {
			metrics.NotificationsFailed.WithLabelValues(kind).Inc()
			c.log.WithError(err).WithField("kind", kind).Warn("notification failed")
		}
	}()
}

func validateSelections(selections []SeatSelection) ([]uint64, error) {
	if len(selections) == 0 {
		return nil, invalid("at least one seat required")
	}
	ids := lo.Map(selections, func(s SeatSelection, _ int) uint64 { return s.SeatID })
	if err := validateSeatIDs(ids); err != nil {
		return nil, err
	}
	for _, s := range selections {
		if err := validateDetails(strings.TrimSpace(s.Name), s.Comment); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func validateSeatIDs(ids []uint64) error {
	if len(ids) == 0 {
		return invalid("at least one seat required")
	}
	if lo.Contains(ids, 0) {
		return invalid("seat id must be positive")
	}
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return invalid("duplicate seat ids %v", dups)
	}
	return nil
}

func validateDetails(name string, comment *string) error {
	if name == "" {
		return invalid("name required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return invalid("name longer than %d characters", MaxNameLength)
	}
	return validateComment(comment)
}

func validateComment(comment *string) error {
	if comment != nil && utf8.RuneCountInString(*comment) > MaxCommentLength {
		return invalid("comment longer than %d characters", MaxCommentLength)
	}
	return nil
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// classify maps an error out of a booking transaction onto the taxonomy.
// seatIDs names the seats to report when the unique key fired.
func classify(err error, seatIDs []uint64) error {
	switch {
	case isTaxonomy(err):
		return err
	case errors.Is(err, repository.ErrLockTimeout):
		return ErrLockTimeout
	case errors.Is(err, repository.ErrDuplicateKey):
		return &SeatError{Kind: ErrSeatAlreadyBooked, SeatIDs: seatIDs}
	case errors.Is(err, repository.ErrEventNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrBookingNotFound):
		return ErrBookingNotFound
	}
	return persistence("booking transaction", err)
}

var taxonomy = []error{
	ErrInvalidRequest, ErrReservationClosed, ErrQuotaExceeded, ErrSeatAlreadyBooked,
	ErrUnknownSeat, ErrSeatNotInRoom, ErrLockTimeout, ErrCodeGenerationExhausted,
	ErrPersistence, ErrEventNotFound, ErrBookingNotFound, ErrForbidden, ErrAlreadyPickedUp,
}

func isTaxonomy(err error) bool {
	return lo.ContainsBy(taxonomy, func(target error) bool { return errors.Is(err, target) })
}

func observe(op, kind string, start time.Time, seats int, err error) {
	metrics.TransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := metrics.OutcomeCommitted
	switch {
	case err == nil:
		metrics.SeatsBooked.Add(float64(seats))
	case errors.Is(err, ErrSeatAlreadyBooked):
		outcome = metrics.OutcomeConflict
	case errors.Is(err, ErrLockTimeout):
		outcome = metrics.OutcomeTimeout
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrCodeGenerationExhausted):
		outcome = metrics.OutcomeFailed
	default:
		outcome = metrics.OutcomeRejected
	}
	metrics.ReservationAttempts.WithLabelValues(kind, outcome).Inc()
}
