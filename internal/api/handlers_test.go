package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence/memory"
)

type testServer struct {
	t      *testing.T
	now    time.Time
	ledger domain.Ledger
	router http.Handler
}

func newTestServer(t *testing.T, ledger domain.Ledger) *testServer {
	t.Helper()
	if ledger == nil {
		ledger = memory.NewLedger()
	}
	ts := &testServer{
		t:      t,
		now:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		ledger: ledger,
	}
	types := catalog.Default()
	handler := NewHandler(domain.NewLifecycle(ledger, types), ledger, types,
		WithClock(func() time.Time { return ts.now }))
	ts.router = handler.Routes()
	return ts
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestStartCompleteAndStats(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodPost, "/v1/chats/42/activities", StartActivityRequest{
		UserID: 7, UserFullName: "Alice", ChatTitle: "ops", ActivityType: "toilet",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	started := decode[OngoingView](t, rr)
	require.Equal(t, "toilet", started.ActivityType)
	require.NotEmpty(t, started.ActivityID)

	ts.now = ts.now.Add(time.Minute)
	rr = ts.do(http.MethodPost, "/v1/chats/42/activities", StartActivityRequest{UserID: 7, ActivityType: "smoking"})
	require.Equal(t, http.StatusConflict, rr.Code)
	conflict := decode[ErrorResponse](t, rr)
	require.Equal(t, "conflict", conflict.Type)
	require.NotNil(t, conflict.Ongoing)
	require.Equal(t, int64(60), conflict.Ongoing.ElapsedSeconds)
	require.Equal(t, "toilet", conflict.Ongoing.ActivityType)

	rr = ts.do(http.MethodGet, "/v1/chats/42/users/7/ongoing", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(60), decode[OngoingView](t, rr).ElapsedSeconds)

	ts.now = time.Date(2024, 3, 1, 9, 6, 40, 0, time.UTC)
	rr = ts.do(http.MethodPost, "/v1/chats/42/activities/complete", CompleteActivityRequest{UserID: 7})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	completed := decode[CompletedView](t, rr)
	require.Equal(t, int64(400), completed.DurationSeconds)
	require.Equal(t, int64(40), completed.OvertimeSeconds)
	require.Equal(t, "overtime", completed.Status)

	rr = ts.do(http.MethodGet, "/v1/chats/42/stats?preset=today&hourly=1&daily=true", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[StatsResponse](t, rr)
	require.Equal(t, "today", resp.Preset)
	require.Equal(t, "UTC", resp.Timezone)
	require.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(resp.Window.Start))
	require.Equal(t, 1, resp.Result.Summary.TotalActivities)
	require.Equal(t, int64(40), resp.Result.Summary.TotalOvertimeSeconds)
	require.Equal(t, 0, resp.Result.Summary.Efficiency)
	require.Contains(t, resp.Result.ByUser, "Alice")
	require.NotNil(t, resp.Result.Hourly)
	require.Equal(t, 1, resp.Result.Hourly[9])
	require.Equal(t, []string{"2024-03-01"}, resp.Result.DayOrder)

	rr = ts.do(http.MethodGet, "/v1/chats/43/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	other := decode[StatsResponse](t, rr)
	require.Zero(t, other.Result.Summary.TotalActivities)
	require.Equal(t, 100, other.Result.Summary.Efficiency)
	require.Nil(t, other.Result.Hourly)
}

func TestStatsUsesRequestTimezone(t *testing.T) {
	ts := newTestServer(t, nil)
	// 17:30 UTC on 1 March is already 2 March in Shanghai.
	ts.now = time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC)

	rr := ts.do(http.MethodPost, "/v1/chats/1/activities", StartActivityRequest{UserID: 2, ActivityType: "rest"})
	require.Equal(t, http.StatusCreated, rr.Code)
	ts.now = ts.now.Add(10 * time.Minute)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/chats/1/activities/complete", CompleteActivityRequest{UserID: 2}).Code)

	rr = ts.do(http.MethodGet, "/v1/chats/1/stats?preset=today&tz=Asia/Shanghai&hourly=1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[StatsResponse](t, rr)
	require.Equal(t, "Asia/Shanghai", resp.Timezone)
	require.True(t, time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC).Equal(resp.Window.Start))
	require.Equal(t, 1, resp.Result.Summary.TotalActivities)
	require.Equal(t, 1, resp.Result.Hourly[1])
	require.Contains(t, resp.Result.ByUser, "user 2")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"unknown type", http.MethodPost, "/v1/chats/1/activities", StartActivityRequest{UserID: 1, ActivityType: "nap"}, http.StatusBadRequest, "validation_failed"},
		{"missing user", http.MethodPost, "/v1/chats/1/activities", StartActivityRequest{ActivityType: "toilet"}, http.StatusBadRequest, "validation_failed"},
		{"bad chat id", http.MethodPost, "/v1/chats/abc/activities", StartActivityRequest{UserID: 1, ActivityType: "toilet"}, http.StatusBadRequest, "validation_failed"},
		{"complete without start", http.MethodPost, "/v1/chats/1/activities/complete", CompleteActivityRequest{UserID: 1}, http.StatusNotFound, "not_found"},
		{"complete missing user", http.MethodPost, "/v1/chats/1/activities/complete", CompleteActivityRequest{}, http.StatusBadRequest, "validation_failed"},
		{"no ongoing", http.MethodGet, "/v1/chats/1/users/1/ongoing", nil, http.StatusNotFound, "not_found"},
		{"unknown preset", http.MethodGet, "/v1/chats/1/stats?preset=fortnight", nil, http.StatusBadRequest, "validation_failed"},
		{"unknown timezone", http.MethodGet, "/v1/chats/1/stats?tz=Mars/Base", nil, http.StatusBadRequest, "validation_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			require.Equal(t, tc.kind, decode[ErrorResponse](t, rr).Type)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chats/1/activities", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decode[ErrorResponse](t, rr).Type)
}

func TestListActivityTypesInCatalogOrder(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(http.MethodGet, "/v1/activity-types", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[ListActivityTypesResponse](t, rr)
	codes := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		codes = append(codes, item.Code)
	}
	require.Equal(t, catalog.Default().Codes(), codes)
	require.Equal(t, int64(360), resp.Items[0].MaxDurationSeconds)
}

type brokenLedger struct {
	*memory.Ledger
}

func (brokenLedger) FindOngoing(context.Context, int64, int64) (*domain.OngoingActivity, error) {
	return nil, errors.New("disk on fire")
}

func (brokenLedger) QueryCompleted(context.Context, int64, domain.TimeWindow) ([]domain.CompletedActivity, error) {
	return nil, errors.New("disk on fire")
}

func TestInfrastructureErrorsAreOpaque(t *testing.T) {
	ts := newTestServer(t, brokenLedger{Ledger: memory.NewLedger()})

	rr := ts.do(http.MethodPost, "/v1/chats/1/activities", StartActivityRequest{UserID: 1, ActivityType: "toilet"})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode[ErrorResponse](t, rr)
	require.Equal(t, "server_error", resp.Type)
	require.NotContains(t, resp.Detail, "disk on fire")

	rr = ts.do(http.MethodGet, "/v1/chats/1/stats", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
