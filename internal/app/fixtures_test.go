package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"availability-scheduler/internal/schedule"
	"availability-scheduler/internal/store/memory"
)

const agentID int64 = 7

var (
	// 2026-10-12 is a Monday.
	monday  = schedule.Date{Year: 2026, Month: time.October, Day: 12}
	tuesday = monday.AddDays(1)
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestApp(t *testing.T, now time.Time, configure ...func(*App)) (*gin.Engine, *testClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New(agentID)
	clock := &testClock{now: now}
	a := &App{
		Service: schedule.NewService(store, store, schedule.Options{
			SlotDuration: 30 * time.Minute,
			TxTimeout:    time.Second,
			Location:     time.UTC,
			Clock:        clock.Now,
		}),
	}
	for _, fn := range configure {
		fn(a)
	}
	return NewRouter(a), clock
}

func at(d schedule.Date, clock string) time.Time {
	return d.At(schedule.MustTimeOfDay(clock), time.UTC)
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func requireKind(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	require.Equal(t, kind, body.Kind)
	require.NotEmpty(t, body.Error)
}

// putWeekdays opens Monday to Friday 09:00-17:00 with a 12:00-13:00 lunch.
func putWeekdays(t *testing.T, router http.Handler) {
	t.Helper()
	var days []map[string]any
	for _, d := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"} {
		days = append(days, map[string]any{
			"day": d, "available": true,
			"start_time": "09:00", "end_time": "17:00",
			"lunch_start": "12:00", "lunch_end": "13:00",
		})
	}
	w := do(t, router, http.MethodPut, "/api/agents/7/schedule", map[string]any{"days": days})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
