package service

import (
	"context"
	"math"

	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/repository"
)

// Unbounded is the allowance of an admin principal.
const Unbounded = math.MaxInt

// QuotaPolicy sizes how many seats a principal may still take for an
// event.  It holds no per-request state; every answer is computed from the
// event and principal passed in.
type QuotaPolicy struct {
	perUser int
	seats   repository.SeatReader
	ledger  repository.BookingLedger
}

// NewQuotaPolicy returns a policy granting ordinary users perUser seats per
// event.
func NewQuotaPolicy(perUser int, seats repository.SeatReader, ledger repository.BookingLedger) *QuotaPolicy {
	return &QuotaPolicy{perUser: perUser, seats: seats, ledger: ledger}
}

// Allowance is the maximum number of seats p may hold for one event.
func (q *QuotaPolicy) Allowance(p model.Principal) int {
	if p.IsAdmin {
		return Unbounded
	}
	return q.perUser
}

// EffectiveCapacity resolves max_tickets, then tickets, then the number of
// physical seats in the event's room.
func (q *QuotaPolicy) EffectiveCapacity(ctx context.Context, ev *model.Event) (int, error) {
	if limit, ok := ev.ConfiguredLimit(); ok {
		return limit, nil
	}
	n, err := q.seats.CountByRoom(ctx, ev.RoomID)
	if err != nil {
		return 0, persistence("count room seats", err)
	}
	return n, nil
}

// RemainingCapacity is the number of seats the event can still issue,
// never below zero.
func (q *QuotaPolicy) RemainingCapacity(ctx context.Context, ev *model.Event) (int, error) {
	capacity, err := q.EffectiveCapacity(ctx, ev)
	if err != nil {
		return 0, err
	}
	booked, err := q.ledger.CountByEvent(ctx, ev.ID)
	if err != nil {
		return 0, persistence("count event bookings", err)
	}
	return remaining(capacity, booked), nil
}

// RemainingForPrincipal is the number of further seats p may book for the
// event.
func (q *QuotaPolicy) RemainingForPrincipal(ctx context.Context, p model.Principal, ev *model.Event) (int, error) {
	allowance := q.Allowance(p)
	if allowance == Unbounded {
		return Unbounded, nil
	}
	held, err := q.ledger.CountByEventAndUser(ctx, ev.ID, p.ID)
	if err != nil {
		return 0, persistence("count user bookings", err)
	}
	return remaining(allowance, held), nil
}

// Admit checks a request for k seats against both remaining values.  The
// capacity limit is reported first since it affects every principal.
func Admit(k, remainingCapacity, remainingForPrincipal int) error {
	if k > remainingCapacity {
		return &QuotaError{Limit: LimitCapacity, Requested: k, Remaining: remainingCapacity}
	}
	if k > remainingForPrincipal {
		return &QuotaError{Limit: LimitPerUser, Requested: k, Remaining: remainingForPrincipal}
	}
	return nil
}

func remaining(limit, used int) int {
	if limit == Unbounded {
		return Unbounded
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
