package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/repository"
)

// fakeStore is an in-memory stand-in for MySQL.  Row locks are one-slot
// channels so blocking, ordering and lock wait timeouts behave like InnoDB
// row locks; writes are staged per transaction and applied on commit.
type fakeStore struct {
	mu       sync.Mutex
	events   map[uint64]*model.Event
	seats    map[uint64]model.SeatPlacement
	bookings map[uint64]model.Booking
	nextID   uint64
	locks    map[string]chan struct{}
	lockWait time.Duration

	seatLockOrders [][]uint64
	// beforeSeatLock runs once, before the first LockSeats call.
	beforeSeatLock func()
	// failInsert, when set, can fail an insert.
	failInsert func(b *model.Booking) error
}

var (
	_ repository.EventReader   = (*fakeStore)(nil)
	_ repository.SeatReader    = (*fakeStore)(nil)
	_ repository.BookingLedger = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   map[uint64]*model.Event{},
		seats:    map[uint64]model.SeatPlacement{},
		bookings: map[uint64]model.Booking{},
		locks:    map[string]chan struct{}{},
		lockWait: 2 * time.Second,
	}
}

func (s *fakeStore) addEvent(ev model.Event) *model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = &ev
	return &ev
}

// addSeats creates seats ids in room, one row per block for simplicity.
func (s *fakeStore) addSeats(roomID uint64, ids ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.seats[id] = model.SeatPlacement{
			SeatID: id, Label: fmt.Sprintf("S%d", id), Number: uint32(id),
			RowID: roomID*10 + 1, RowName: "A", BlockID: roomID * 100, BlockName: "Parkett", RoomID: roomID,
		}
	}
}

// commitBooking writes a booking directly, as another committed
// transaction would.
func (s *fakeStore) commitBooking(b model.Booking) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	if b.Type == "" {
		b.Type = model.EntryOnline
	}
	b.CreatedAt = time.Now()
	s.bookings[b.ID] = b
	return b
}

func (s *fakeStore) snapshot() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b model.Booking) int { return int(a.ID) - int(b.ID) })
	return out
}

func (s *fakeStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *fakeStore) Placements(_ context.Context, ids []uint64) ([]model.SeatPlacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.SeatPlacement{}
	for _, id := range ids {
		if p, ok := s.seats[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) CountByRoom(_ context.Context, roomID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.seats {
		if p.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) LayoutByRoom(_ context.Context, roomID uint64) ([]model.SeatPlacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.SeatPlacement{}
	for _, p := range s.seats {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.SeatPlacement) int { return int(a.SeatID) - int(b.SeatID) })
	return out, nil
}

func (s *fakeStore) filter(keep func(b model.Booking) bool) []model.Booking {
	out := []model.Booking{}
	for _, b := range s.snapshot() {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s *fakeStore) CountByEvent(_ context.Context, eventID uint64) (int, error) {
	return len(s.filter(func(b model.Booking) bool { return b.EventID == eventID })), nil
}

func (s *fakeStore) CountByEventAndUser(_ context.Context, eventID, userID uint64) (int, error) {
	return len(s.filter(func(b model.Booking) bool { return b.EventID == eventID && b.OwnedBy(userID) })), nil
}

func (s *fakeStore) BookedSeatIDs(_ context.Context, eventID uint64) ([]uint64, error) {
	ids := []uint64{}
	for _, b := range s.filter(func(b model.Booking) bool { return b.EventID == eventID }) {
		ids = append(ids, b.SeatID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *fakeStore) ListByEvent(_ context.Context, eventID uint64) ([]model.Booking, error) {
	return s.filter(func(b model.Booking) bool { return b.EventID == eventID }), nil
}

func (s *fakeStore) ListByEventAndUser(_ context.Context, eventID, userID uint64) ([]model.Booking, error) {
	return s.filter(func(b model.Booking) bool { return b.EventID == eventID && b.OwnedBy(userID) }), nil
}

func (s *fakeStore) ListByCode(_ context.Context, code string) ([]model.Booking, error) {
	return s.filter(func(b model.Booking) bool { return b.BookingCode != nil && *b.BookingCode == code }), nil
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	tx := &fakeTx{s: s, deleted: map[uint64]bool{}, updated: map[uint64]model.Booking{}}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range tx.inserts {
		s.bookings[b.ID] = b
	}
	for id, b := range tx.updated {
		s.bookings[id] = b
	}
	for id := range tx.deleted {
		delete(s.bookings, id)
	}
	return nil
}

type fakeTx struct {
	s       *fakeStore
	held    []string
	inserts []model.Booking
	updated map[uint64]model.Booking
	deleted map[uint64]bool
}

func (t *fakeTx) acquire(ctx context.Context, key string) error {
	if slices.Contains(t.held, key) {
		return nil
	}
	t.s.mu.Lock()
	ch, ok := t.s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.s.locks[key] = ch
	}
	wait := t.s.lockWait
	t.s.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		t.held = append(t.held, key)
		return nil
	case <-timer.C:
		return repository.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *fakeTx) release() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, key := range t.held {
		<-t.s.locks[key]
	}
	t.held = nil
}

// view is the booking set as seen inside the transaction.
func (t *fakeTx) view() []model.Booking {
	out := []model.Booking{}
	for _, b := range t.s.snapshot() {
		if t.deleted[b.ID] {
			continue
		}
		if u, ok := t.updated[b.ID]; ok {
			b = u
		}
		out = append(out, b)
	}
	return append(out, t.inserts...)
}

func (t *fakeTx) LockEvent(ctx context.Context, eventID uint64) error {
	if _, err := t.s.GetByID(ctx, eventID); err != nil {
		return err
	}
	return t.acquire(ctx, fmt.Sprintf("event:%d", eventID))
}

func (t *fakeTx) LockSeats(ctx context.Context, seatIDs []uint64) error {
	t.s.mu.Lock()
	hook := t.s.beforeSeatLock
	t.s.beforeSeatLock = nil
	t.s.seatLockOrders = append(t.s.seatLockOrders, slices.Clone(seatIDs))
	t.s.mu.Unlock()
	if hook != nil {
		hook()
	}
	for _, id := range seatIDs {
		if err := t.acquire(ctx, fmt.Sprintf("seat:%d", id)); err != nil {
			return err
		}
	}
	return nil
}

func (t *fakeTx) BookedAmong(_ context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error) {
	out := []uint64{}
	for _, b := range t.view() {
		if b.EventID == eventID && slices.Contains(seatIDs, b.SeatID) {
			out = append(out, b.SeatID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t *fakeTx) CountByEvent(_ context.Context, eventID uint64) (int, error) {
	n := 0
	for _, b := range t.view() {
		if b.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) CountByEventAndUser(_ context.Context, eventID, userID uint64) (int, error) {
	n := 0
	for _, b := range t.view() {
		if b.EventID == eventID && b.OwnedBy(userID) {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) CodeInUse(_ context.Context, code string) (bool, error) {
	for _, b := range t.view() {
		if b.BookingCode != nil && *b.BookingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) Insert(_ context.Context, b *model.Booking) error {
	if t.s.failInsert != nil {
		if err := t.s.failInsert(b); err != nil {
			return err
		}
	}
	for _, existing := range t.view() {
		if existing.EventID == b.EventID && existing.SeatID == b.SeatID {
			return repository.ErrDuplicateKey
		}
	}
	t.s.mu.Lock()
	t.s.nextID++
	b.ID = t.s.nextID
	t.s.mu.Unlock()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	t.inserts = append(t.inserts, *b)
	return nil
}

func (t *fakeTx) LockBooking(ctx context.Context, bookingID uint64) (*model.LockedBooking, error) {
	if err := t.acquire(ctx, fmt.Sprintf("booking:%d", bookingID)); err != nil {
		return nil, err
	}
	for _, b := range t.view() {
		if b.ID == bookingID {
			ev, err := t.s.GetByID(ctx, b.EventID)
			if err != nil {
				return nil, err
			}
			return &model.LockedBooking{Booking: b, ReservationEndsAt: ev.ReservationEndsAt}, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (t *fakeTx) modify(bookingID uint64, change func(b *model.Booking)) error {
	for _, b := range t.view() {
		if b.ID == bookingID {
			change(&b)
			t.updated[bookingID] = b
			return nil
		}
	}
	return repository.ErrBookingNotFound
}

func (t *fakeTx) UpdateDetails(_ context.Context, bookingID uint64, name string, comment *string) error {
	return t.modify(bookingID, func(b *model.Booking) { b.Name, b.Comment = name, comment })
}

func (t *fakeTx) SetPickedUp(_ context.Context, bookingID uint64, at *time.Time) error {
	return t.modify(bookingID, func(b *model.Booking) { b.PickedUpAt = at })
}

func (t *fakeTx) Delete(_ context.Context, bookingID uint64) error {
	for _, b := range t.view() {
		if b.ID == bookingID {
			t.deleted[bookingID] = true
			return nil
		}
	}
	return repository.ErrBookingNotFound
}

// recordingNotifier collects post-commit signals.
type recordingNotifier struct {
	mu        sync.Mutex
	batches   []BatchCommitted
	exhausted []CapacityExhausted
	err       error
}

func (n *recordingNotifier) BatchCommitted(_ context.Context, b BatchCommitted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, b)
	return n.err
}

func (n *recordingNotifier) CapacityExhausted(_ context.Context, e CapacityExhausted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exhausted = append(n.exhausted, e)
	return n.err
}

func (n *recordingNotifier) exhaustedEvents() []CapacityExhausted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.exhausted)
}
