package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/app/dto"
	"divineconnect/internal/domain/slots"
	"divineconnect/internal/infra/config"
	ginserver "divineconnect/internal/infra/http/gin"
	"divineconnect/internal/infra/obs"
)

func newMemoryApp(t *testing.T) *gin.Engine {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("CATALOG_FIXTURES", "../../data/catalog.json")
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	logger := obs.Discard()
	ctx, cancel := context.WithCancel(context.Background())
	app, err := buildApplication(ctx, cfg, logger)
	require.NoError(t, err)
	app.start(ctx)
	t.Cleanup(func() {
		cancel()
		app.wait()
		app.close()
	})
	return ginserver.NewRouter(cfg, obs.Middleware{Logger: logger}, app.health, app.handlers)
}

func call(t *testing.T, router http.Handler, method, path, user string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMemoryApplicationBooksAndConfirms(t *testing.T) {
	router := newMemoryApp(t)
	date := time.Now().In(slots.DefaultLocation).AddDate(0, 0, 7).Format(slots.DateLayout)
	body := map[string]any{
		"service_id":        "pooja-ganesh",
		"mode":              "at-temple",
		"temple_id":         "kashi-vishwanath",
		"date":              date,
		"slot":              "6:00 AM",
		"participant_count": 1,
		"materials":         "provider",
	}
	idem := map[string]string{"Idempotency-Key": "first-booking"}

	rec := call(t, router, http.MethodPost, "/api/v1/bookings", "dev-1", idem, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created dto.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PENDING", created.Status)
	assert.NotEmpty(t, created.ProviderID)
	assert.Equal(t, int64(1534), created.Price.Total.Amount)

	rec = call(t, router, http.MethodPost, "/api/v1/bookings", "dev-1", idem, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var replayed dto.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replayed))
	assert.Equal(t, created.ID, replayed.ID)

	capture := map[string]any{
		"event":       "payment_captured",
		"payment_ref": "pi_1",
		"amount":      1534,
	}
	rec = call(t, router, http.MethodPost, "/api/v1/bookings/"+created.ID+"/transitions", "dev-1", nil, capture)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = call(t, router, http.MethodPost, "/api/v1/bookings/"+created.ID+"/transitions", "ops-1", map[string]string{"X-User-Role": "admin"}, capture)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed dto.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, "CONFIRMED", confirmed.Status)
	assert.Equal(t, "ESCROWED", confirmed.PaymentStatus)

	rec = call(t, router, http.MethodGet, "/api/v1/me/bookings", "dev-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mine dto.BookingCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine.Items, 1)

	rec = call(t, router, http.MethodGet, "/api/v1/bookings/"+created.ID, "dev-2", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMemoryApplicationHealth(t *testing.T) {
	router := newMemoryApp(t)

	rec := call(t, router, http.MethodGet, "/livez", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, router, http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
