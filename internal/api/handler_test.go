package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/timing-notes-sync/internal/cache"
	"github.com/charlie0129/timing-notes-sync/internal/config"
	"github.com/charlie0129/timing-notes-sync/internal/database"
	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/sync"
	"github.com/charlie0129/timing-notes-sync/internal/timing"
	"github.com/charlie0129/timing-notes-sync/internal/transform"
	"github.com/charlie0129/timing-notes-sync/internal/vault"
)

var now = time.Date(2024, 1, 17, 15, 0, 0, 0, time.UTC)

// fetcher returns two entries for every day except those listed in fail.
type fetcher struct {
	fail map[string]error
}

func (f *fetcher) Fetch(_ context.Context, day time.Time) (*models.DailyTimeData, error) {
	date := day.Format("2006-01-02")
	if err, ok := f.fail[date]; ok {
		return nil, err
	}
	entries := []models.TimeEntry{
		{StartTime: "09:00:00", EndTime: "10:00:00", Duration: 3600, Application: "Xcode", Category: "Development"},
		{StartTime: "10:00:00", EndTime: "10:30:00", Duration: 1800, Application: "Zoom", Category: "Meetings"},
	}
	return &models.DailyTimeData{Date: date, Entries: entries, Summary: transform.Summarize(entries)}, nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *fetcher) {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	cfg.Timezone = "UTC"
	cfg.APIToken = token

	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := cache.New[*models.DailyTimeData](db, 10, time.Hour)
	require.NoError(t, err)

	f := &fetcher{fail: map[string]error{}}
	s, err := sync.NewSyncer(cfg, f, db, vault.New(filepath.Join(dir, "vault")), c,
		sync.WithClock(func() time.Time { return now }),
		sync.WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	h := NewHandler(cfg, db, s)
	h.now = func() time.Time { return now }
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, f
}

func do(t *testing.T, method, url string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	code, body := do(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncThenQueryDay(t *testing.T) {
	srv, _ := newTestServer(t, "")

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/days/2024-01-16", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["error"])

	code, body = do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-16", nil)
	require.Equal(t, http.StatusOK, code, body)
	res := body["data"].(map[string]any)
	assert.Equal(t, "Daily/2024-01-16", res["note_id"])
	assert.Equal(t, true, res["changed"])

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/days/2024-01-16", nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "2024-01-16", data["date"])
	summary := data["summary"].(map[string]any)
	assert.Equal(t, float64(5400), summary["totalTime"])
}

func TestGetDay_InvalidDate(t *testing.T) {
	srv, _ := newTestServer(t, "")
	for _, d := range []string{"2024-1-5", "2024-02-30", "today"} {
		code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/days/"+d, nil)
		assert.Equal(t, http.StatusBadRequest, code, d)
	}
}

func TestSyncWeekThenQueryWeek(t *testing.T) {
	srv, _ := newTestServer(t, "")

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/sync/week?date=2024-01-17", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Weekly/2024-W03", body["data"].(map[string]any)["note_id"])

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/weeks/2024-01-19", nil)
	require.Equal(t, http.StatusOK, code)
	week := body["data"].(map[string]any)
	assert.Equal(t, "2024-01-15", week["startDate"])
	assert.Equal(t, float64(3), week["summary"].(map[string]any)["daysTracked"])
}

func TestSync_FetchFailure(t *testing.T) {
	srv, f := newTestServer(t, "")
	f.fail["2024-01-16"] = &timing.FetchError{Kind: timing.KindPermissionDenied}

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-16", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "PermissionDenied")

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "error", body["state"])
	assert.Equal(t, "failed", body["last_synced"].(map[string]any)["status"])
}

func TestSync_Token(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-16", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-16&api_key=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-16&api_key=secret", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/sync/week?date=2024-01-16",
		http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, code)

	// Reads stay open.
	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSync_InvalidDays(t *testing.T) {
	srv, _ := newTestServer(t, "")
	for _, q := range []string{"days=0", "days=abc", "days=1000", "date=2024-13-01"} {
		code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sync?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, "")
	for _, d := range []string{"2024-01-15", "2024-01-16"} {
		code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sync?date="+d, nil)
		require.Equal(t, http.StatusOK, code)
	}

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/stats/daily?start=2024-01-14&end=2024-01-16", nil)
	require.Equal(t, http.StatusOK, code)
	days := body["data"].([]any)
	require.Len(t, days, 3)
	assert.Equal(t, float64(0), days[0].(map[string]any)["total_seconds"])
	assert.Equal(t, "0m", days[0].(map[string]any)["text"])
	assert.Equal(t, float64(5400), days[1].(map[string]any)["total_seconds"])
	assert.Equal(t, "1h 30m", days[1].(map[string]any)["text"])
	assert.Equal(t, "1:30", days[2].(map[string]any)["digital"])

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/stats/range?start=2024-01-15&end=2024-01-16", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(10800), body["total_seconds"])
	apps := body["applications"].([]any)
	require.Len(t, apps, 2)
	assert.Equal(t, "Xcode", apps[0].(map[string]any)["name"])
	assert.Equal(t, float64(67), apps[0].(map[string]any)["percent"])

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/stats/range?start=2024-01-16&end=2024-01-15", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSyncStatus(t *testing.T) {
	srv, _ := newTestServer(t, "")

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", body["state"])
	assert.Nil(t, body["last_synced"])

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/sync?date=2024-01-17", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "now", body["last_success_text"])
	assert.Equal(t, "success", body["last_synced"].(map[string]any)["status"])
}
