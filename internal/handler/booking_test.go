package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-seat-booking/internal/middleware"
	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/service"
	"github.com/iliyamo/event-seat-booking/internal/utils"
)

const secret = "handler-secret"

// stubReservations records calls and answers with err when set.
type stubReservations struct {
	err        error
	selections []service.SeatSelection
	manual     []uint64
	entry      model.EntryType
	amendment  service.Amendment
	pickedUp   *bool
	code       string
	cancelled  *model.Booking
}

func (s *stubReservations) Reserve(_ context.Context, _ model.Principal, eventID uint64, sel []service.SeatSelection) (*service.BookingBatch, error) {
	s.selections = sel
	if s.err != nil {
		return nil, s.err
	}
	code := "AB1"
	return &service.BookingBatch{EventID: eventID, BookingCode: &code}, nil
}

func (s *stubReservations) ManualReserve(_ context.Context, _ model.Principal, eventID uint64, seatIDs []uint64, _ string, _ *string, entry model.EntryType) (*service.BookingBatch, error) {
	s.manual = seatIDs
	s.entry = entry
	if s.err != nil {
		return nil, s.err
	}
	return &service.BookingBatch{EventID: eventID}, nil
}

func (s *stubReservations) Amend(_ context.Context, _ model.Principal, _ uint64, a service.Amendment) error {
	s.amendment = a
	return s.err
}

func (s *stubReservations) Cancel(_ context.Context, _ model.Principal, id uint64) (*model.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cancelled, nil
}

func (s *stubReservations) SetPickup(_ context.Context, _ model.Principal, id uint64, pickedUp bool) (*model.Booking, error) {
	s.pickedUp = &pickedUp
	if s.err != nil {
		return nil, s.err
	}
	return &model.Booking{ID: id}, nil
}

func (s *stubReservations) BookingsForPrincipal(context.Context, model.Principal, uint64) ([]model.Booking, error) {
	return []model.Booking{{ID: 1}}, s.err
}

func (s *stubReservations) EventBookings(context.Context, model.Principal, uint64) ([]model.Booking, error) {
	return []model.Booking{{ID: 1}, {ID: 2}}, s.err
}

func (s *stubReservations) BatchByCode(_ context.Context, _ model.Principal, eventID uint64, code string) (*service.BookingBatch, error) {
	s.code = code
	if s.err != nil {
		return nil, s.err
	}
	return &service.BookingBatch{EventID: eventID, BookingCode: &code}, nil
}

func (s *stubReservations) LookupCode(_ context.Context, _ model.Principal, code string) (*service.BookingBatch, error) {
	s.code = code
	if s.err != nil {
		return nil, s.err
	}
	return &service.BookingBatch{EventID: 1, BookingCode: &code}, nil
}

func (s *stubReservations) Availability(_ context.Context, eventID uint64) (*service.Availability, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.Availability{EventID: eventID, Capacity: 10, Remaining: 9, BookedSeatIDs: []uint64{3}}, nil
}

func (s *stubReservations) Layout(context.Context, uint64) ([]service.LayoutBlock, error) {
	return nil, s.err
}

type recordingCache struct{ paths []string }

func (r *recordingCache) Invalidate(_ context.Context, path string) { r.paths = append(r.paths, path) }

func newServer(h *BookingHandler) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	auth := e.Group("/v1", middleware.JWTAuth(secret))
	auth.POST("/events/:id/bookings", h.Reserve)
	auth.GET("/events/:id/bookings/mine", h.Mine)
	auth.GET("/events/:id/bookings/confirmed/:code", h.Confirmed)
	auth.PATCH("/bookings/:id", h.Amend)
	auth.DELETE("/bookings/:id", h.Cancel)
	auth.POST("/admin/events/:id/bookings", h.ManualReserve)
	auth.GET("/admin/events/:id/bookings", h.EventBookings)
	auth.GET("/admin/bookings/lookup", h.Lookup)
	auth.PUT("/admin/bookings/:id/pickup", h.Pickup)
	e.GET("/v1/events/:id/availability", h.Availability)
	e.GET("/v1/events/:id/layout", h.Layout)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string, role string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		tok, err := utils.NewAccessToken(secret, 1, role, 5)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestReserveCreatesBatchAndDropsLayoutCache(t *testing.T) {
	stub := &stubReservations{}
	cache := &recordingCache{}
	e := newServer(NewBookingHandler(stub, cache))

	rec := do(t, e, http.MethodPost, "/v1/events/7/bookings",
		`{"seats":[{"seat_id":3,"name":"Ann"},{"seat_id":4,"name":"Bo","comment":"aisle"}]}`, model.RoleUser)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"booking_code":"AB1"`)
	require.Len(t, stub.selections, 2)
	assert.Equal(t, uint64(4), stub.selections[1].SeatID)
	assert.Equal(t, "aisle", *stub.selections[1].Comment)
	assert.Nil(t, stub.selections[0].Comment)
	assert.Equal(t, []string{"/v1/events/7/layout"}, cache.paths)
}

func TestReserveRejectsBadInput(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	cases := map[string]struct{ path, body string }{
		"empty seats":   {"/v1/events/7/bookings", `{"seats":[]}`},
		"missing name":  {"/v1/events/7/bookings", `{"seats":[{"seat_id":3}]}`},
		"zero seat":     {"/v1/events/7/bookings", `{"seats":[{"seat_id":0,"name":"A"}]}`},
		"long name":     {"/v1/events/7/bookings", `{"seats":[{"seat_id":3,"name":"` + strings.Repeat("x", 256) + `"}]}`},
		"not json":      {"/v1/events/7/bookings", `{`},
		"bad event id":  {"/v1/events/x/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`},
		"zero event id": {"/v1/events/0/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, tc.path, tc.body, model.RoleUser)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Nil(t, stub.selections)
}

func TestReserveRequiresToken(t *testing.T) {
	e := newServer(NewBookingHandler(&stubReservations{}, nil))
	rec := do(t, e, http.MethodPost, "/v1/events/7/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{&service.SeatError{Kind: service.ErrSeatAlreadyBooked, SeatIDs: []uint64{3, 4}}, http.StatusConflict, `"seat_ids":[3,4]`},
		{&service.SeatError{Kind: service.ErrUnknownSeat, SeatIDs: []uint64{99}}, http.StatusUnprocessableEntity, `"seat_ids":[99]`},
		{&service.SeatError{Kind: service.ErrSeatNotInRoom, SeatIDs: []uint64{20}}, http.StatusUnprocessableEntity, `"error":"seat not in event room"`},
		{&service.QuotaError{Limit: service.LimitPerUser, Requested: 3, Remaining: 2}, http.StatusConflict, `"limit":"per_user"`},
		{fmt.Errorf("%w: empty", service.ErrInvalidRequest), http.StatusBadRequest, `invalid request`},
		{service.ErrReservationClosed, http.StatusConflict, `window closed`},
		{service.ErrAlreadyPickedUp, http.StatusConflict, `picked up`},
		{service.ErrLockTimeout, http.StatusServiceUnavailable, `lock timeout`},
		{service.ErrForbidden, http.StatusForbidden, `forbidden`},
		{service.ErrEventNotFound, http.StatusNotFound, `event not found`},
		{service.ErrBookingNotFound, http.StatusNotFound, `booking not found`},
		{service.ErrCodeGenerationExhausted, http.StatusInternalServerError, `internal error`},
		{fmt.Errorf("%w: insert: boom", service.ErrPersistence), http.StatusInternalServerError, `internal error`},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			e := newServer(NewBookingHandler(&stubReservations{err: tc.err}, nil))
			rec := do(t, e, http.MethodPost, "/v1/events/7/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`, model.RoleUser)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestLockTimeoutSetsRetryAfter(t *testing.T) {
	e := newServer(NewBookingHandler(&stubReservations{err: service.ErrLockTimeout}, nil))
	rec := do(t, e, http.MethodPost, "/v1/events/7/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`, model.RoleUser)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestFailedReserveKeepsCache(t *testing.T) {
	cache := &recordingCache{}
	e := newServer(NewBookingHandler(&stubReservations{err: service.ErrReservationClosed}, cache))
	do(t, e, http.MethodPost, "/v1/events/7/bookings", `{"seats":[{"seat_id":3,"name":"A"}]}`, model.RoleUser)
	assert.Empty(t, cache.paths)
}

func TestCancelDropsCacheOfBookedEvent(t *testing.T) {
	stub := &stubReservations{cancelled: &model.Booking{ID: 5, EventID: 12}}
	cache := &recordingCache{}
	e := newServer(NewBookingHandler(stub, cache))

	rec := do(t, e, http.MethodDelete, "/v1/bookings/5", "", model.RoleUser)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"/v1/events/12/layout"}, cache.paths)
}

func TestAmendPassesOnlyGivenFields(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	rec := do(t, e, http.MethodPatch, "/v1/bookings/5", `{"comment":""}`, model.RoleUser)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, stub.amendment.Name)
	require.NotNil(t, stub.amendment.Comment)
	assert.Equal(t, "", *stub.amendment.Comment)
}

func TestConfirmedPassesCode(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	rec := do(t, e, http.MethodGet, "/v1/events/7/bookings/confirmed/xy1", "", model.RoleUser)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xy1", stub.code)
}

func TestMineAndEventBookings(t *testing.T) {
	e := newServer(NewBookingHandler(&stubReservations{}, nil))

	rec := do(t, e, http.MethodGet, "/v1/events/7/bookings/mine", "", model.RoleUser)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bookings":[`)

	rec = do(t, e, http.MethodGet, "/v1/admin/events/7/bookings", "", model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualReserve(t *testing.T) {
	stub := &stubReservations{}
	cache := &recordingCache{}
	e := newServer(NewBookingHandler(stub, cache))

	rec := do(t, e, http.MethodPost, "/v1/admin/events/7/bookings", `{"seat_ids":[1,2],"name":"Guest"}`, model.RoleAdmin)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []uint64{1, 2}, stub.manual)
	assert.Empty(t, stub.entry)
	assert.Equal(t, []string{"/v1/events/7/layout"}, cache.paths)

	rec = do(t, e, http.MethodPost, "/v1/admin/events/7/bookings", `{"seat_ids":[],"name":"Guest"}`, model.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualReservePassesEntryType(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	rec := do(t, e, http.MethodPost, "/v1/admin/events/7/bookings", `{"seat_ids":[3],"name":"Guest","type":"manual"}`, model.RoleAdmin)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, model.EntryManual, stub.entry)

	stub.entry = ""
	rec = do(t, e, http.MethodPost, "/v1/admin/events/7/bookings", `{"seat_ids":[3],"name":"Guest","type":"online"}`, model.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.entry)
}

func TestPickupRequiresFlag(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	rec := do(t, e, http.MethodPut, "/v1/admin/bookings/5/pickup", `{}`, model.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, stub.pickedUp)

	rec = do(t, e, http.MethodPut, "/v1/admin/bookings/5/pickup", `{"picked_up":false}`, model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.pickedUp)
	assert.False(t, *stub.pickedUp)
}

func TestLookupRequiresCode(t *testing.T) {
	stub := &stubReservations{}
	e := newServer(NewBookingHandler(stub, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/v1/admin/bookings/lookup", "", model.RoleAdmin).Code)

	rec := do(t, e, http.MethodGet, "/v1/admin/bookings/lookup?code=ab1", "", model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ab1", stub.code)
}

func TestPublicReadsNeedNoToken(t *testing.T) {
	e := newServer(NewBookingHandler(&stubReservations{}, nil))

	rec := do(t, e, http.MethodGet, "/v1/events/7/availability", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"event_id":7,"capacity":10,"remaining":9,"booked_seat_ids":[3]}`, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/v1/events/7/layout", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newServer(NewBookingHandler(&stubReservations{err: service.ErrEventNotFound}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/v1/events/7/availability", "", "").Code)
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/ok", Health(failingPinger{}))
	e.GET("/down", Health(failingPinger{err: errors.New("refused")}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
