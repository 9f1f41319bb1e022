package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-seat-booking/internal/config"
	"github.com/iliyamo/event-seat-booking/internal/handler"
	"github.com/iliyamo/event-seat-booking/internal/middleware"
	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/utils"
)

const secret = "router-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = handler.NewValidator()
	bookings := handler.NewBookingHandler(nil, nil)
	RegisterRoutes(e, nil)
	RegisterPublic(e, bookings, middleware.NewResponseCache(config.CacheConfig{}, nil))
	RegisterBookings(e, bookings, secret, middleware.NewTokenBucket(config.RateLimitConfig{}, nil))
	RegisterAdmin(e, bookings, secret)
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, role string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		tok, err := utils.NewAccessToken(secret, 1, role, 5)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestOperationalRoutes(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/metrics", ""))
}

func TestBookingRoutesNeedToken(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodPost, "/v1/events/1/bookings", ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodDelete, "/v1/bookings/1", ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodGet, "/v1/admin/bookings/lookup", ""))
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodGet, "/v1/admin/events/1/bookings", model.RoleUser))
	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodPut, "/v1/admin/bookings/1/pickup", model.RoleUser))
	// reaches the handler, which rejects the missing code before touching storage
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/admin/bookings/lookup", model.RoleAdmin))
}
