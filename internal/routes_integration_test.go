package internal

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/analytics"
	"storepulse/internal/config"
	"storepulse/internal/testsupport"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

func newTestApp(t *testing.T, configure ...func(*config.Config)) *Application {
	t.Helper()

	cfg := testsupport.TestConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CleanAllTables(dbManager.GetConnection())

	app, err := NewAppWithDB(cfg, dbManager, logger)
	require.NoError(t, err)
	t.Cleanup(app.Hub.Close)
	return app
}

func doRequest(t *testing.T, app *Application, method, target, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("User-Agent", browserUA)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Fiber.Test(req, 30000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestTrackRouteRateLimited(t *testing.T) {
	app := newTestApp(t)
	routes := app.Fiber.GetRoutes(true)

	var trackRoute *fiber.Route
	for idx := range routes {
		route := routes[idx]
		if route.Method == fiber.MethodPost && route.Path == "/visitors/track" {
			trackRoute = &routes[idx]
			break
		}
	}

	require.NotNil(t, trackRoute, "expected track route to be registered")

	// The rate limiter is wrapped in a conditional function that only applies
	// in production. Check for the wrapper defined in MountAppRoutes.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range trackRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
			hasRateLimiter = true
			break
		}
	}

	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for track route, handlers: %v", handlerNames)
}

func TestDashboardRoutesRegistered(t *testing.T) {
	app := newTestApp(t)

	registered := make(map[string]bool)
	for _, route := range app.Fiber.GetRoutes(true) {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /visitors/overview",
		"GET /visitors/timeline",
		"GET /visitors/devices",
		"GET /visitors/geographic",
		"GET /visitors/referrers",
		"GET /visitors/pages",
		"GET /visitors/ecommerce",
		"GET /visitors/bots",
		"GET /visitors/interactions",
		"GET /visitors/change",
		"GET /visitors/activity",
		"GET /visitors/stream",
		"GET /visitors/dashboard",
		"GET /visitors/settings/excluded-ips",
		"PUT /visitors/settings/excluded-ips",
		"POST /visitors/track",
		"OPTIONS /visitors/track",
		"GET /_health",
		"GET /metrics",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "expected %s to be registered", route)
	}
}

func TestAdminAPIKey(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		cfg.AdminAPIKey = "dashboard-secret"
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dashboard-secret", http.StatusUnauthorized},
		{"wrong key", "Bearer dashboard-secreT", http.StatusUnauthorized},
		{"valid key", "Bearer dashboard-secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			resp, body := doRequest(t, app, http.MethodGet, "/visitors/overview?timeRange=today", "", headers)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, string(body), `"code":"UNAUTHORIZED"`)
			}
		})
	}

	t.Run("tracking stays public", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/visitors/track", `{"path":"/"}`, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	})
}

func TestInvalidTimeRange(t *testing.T) {
	app := newTestApp(t)

	for _, target := range []string{
		"/visitors/overview?timeRange=fortnight",
		"/visitors/pages?timeRange=yesterday-ish",
		"/visitors/dashboard?timeRange=forever",
	} {
		resp, body := doRequest(t, app, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Contains(t, string(body), `"code":"INVALID_TIME_RANGE"`, target)
	}
}

func TestTrackThenQuery(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 3; i++ {
		body := `{"path":"/","visitorId":"v-` + string(rune('a'+i)) + `"}`
		if i == 0 {
			body = `{"path":"/","visitorId":"v-a","referrer":"https://www.google.com/search?q=x"}`
		}
		resp, raw := doRequest(t, app, http.MethodPost, "/visitors/track", body, map[string]string{
			"X-Forwarded-For": "198.51.100.20",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	}

	resp, raw := doRequest(t, app, http.MethodGet, "/visitors/overview?timeRange=today", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var overview map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &overview))
	assert.Equal(t, float64(3), overview["totalPageViews"])

	resp, raw = doRequest(t, app, http.MethodGet, "/visitors/referrers", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), "Organic Search")
}

func TestBotBeaconNeverReachesActivity(t *testing.T) {
	app := newTestApp(t)

	resp, raw := doRequest(t, app, http.MethodPost, "/visitors/track", `{"path":"/pricing"}`, map[string]string{
		"User-Agent": "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tracked map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &tracked))
	assert.Equal(t, true, tracked["skipped"])

	resp, raw = doRequest(t, app, http.MethodGet, "/visitors/activity", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feed []analytics.ActivityEvent
	require.NoError(t, json.Unmarshal(raw, &feed))
	assert.Empty(t, feed)
}

func TestDashboardBundle(t *testing.T) {
	app := newTestApp(t)

	resp, raw := doRequest(t, app, http.MethodPost, "/visitors/track",
		`{"path":"/products/mug","eventType":"product_view","eventData":{"productId":"mug","productName":"Mug"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	t.Run("selected widgets", func(t *testing.T) {
		resp, raw := doRequest(t, app, http.MethodGet, "/visitors/dashboard?timeRange=today&widgets=overview,ecommerce", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

		var bundle struct {
			TimeRange string                     `json:"timeRange"`
			Widgets   map[string]json.RawMessage `json:"widgets"`
			Errors    map[string]string          `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(raw, &bundle))
		assert.Equal(t, "today", bundle.TimeRange)
		assert.Len(t, bundle.Widgets, 2)
		assert.Contains(t, bundle.Widgets, "overview")
		assert.Contains(t, string(bundle.Widgets["ecommerce"]), `"productViews":1`)
		assert.Empty(t, bundle.Errors)
	})

	t.Run("all widgets", func(t *testing.T) {
		resp, raw := doRequest(t, app, http.MethodGet, "/visitors/dashboard", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

		var bundle struct {
			Widgets map[string]json.RawMessage `json:"widgets"`
		}
		require.NoError(t, json.Unmarshal(raw, &bundle))
		assert.Len(t, bundle.Widgets, 10)
	})

	t.Run("unknown widget", func(t *testing.T) {
		resp, raw := doRequest(t, app, http.MethodGet, "/visitors/dashboard?widgets=overview,weather", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(raw), `"code":"INVALID_WIDGET"`)
	})
}

func TestExcludedIPsSettings(t *testing.T) {
	app := newTestApp(t)

	resp, raw := doRequest(t, app, http.MethodPut, "/visitors/settings/excluded-ips",
		`{"ips":["203.0.113.0/24"," 192.0.2.10 "]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"ips":["203.0.113.0/24","192.0.2.10"]}`, string(raw))

	resp, raw = doRequest(t, app, http.MethodGet, "/visitors/settings/excluded-ips", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ips":["203.0.113.0/24","192.0.2.10"]}`, string(raw))

	resp, raw = doRequest(t, app, http.MethodPost, "/visitors/track", `{"path":"/"}`, map[string]string{
		"X-Forwarded-For": "203.0.113.99",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"skipped":true,"reason":"excluded"}`, string(raw))

	resp, raw = doRequest(t, app, http.MethodPut, "/visitors/settings/excluded-ips", `{"ips":["not-an-ip"]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), `"code":"INVALID_IP"`)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	resp, raw := doRequest(t, app, http.MethodGet, "/_health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])

	resp, raw = doRequest(t, app, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "storepulse_live_subscribers")
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses an event stream into events until the body closes.
func readEvents(body io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		var current sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if current.name != "" {
					out <- current
				}
				current = sseEvent{}
			case strings.HasPrefix(line, "event: "):
				current.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan sseEvent, timeout time.Duration) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(timeout):
		t.Fatalf("no stream event within %s", timeout)
		return sseEvent{}
	}
}

func TestLiveStream(t *testing.T) {
	app := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Fiber.Listener(ln)
	t.Cleanup(func() {
		// Closing the hub ends open streams so shutdown does not wait on them.
		app.Hub.Close()
		_ = app.Fiber.ShutdownWithTimeout(5 * time.Second)
	})

	baseURL := "http://" + ln.Addr().String()
	client := &http.Client{}

	connect := func() (<-chan sseEvent, func()) {
		resp, err := client.Get(baseURL + "/visitors/stream")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		return readEvents(resp.Body), func() { resp.Body.Close() }
	}

	first, closeFirst := connect()
	defer closeFirst()

	snapshot := nextEvent(t, first, 5*time.Second)
	assert.Equal(t, "snapshot", snapshot.name)
	assert.JSONEq(t, `{"count":0,"visitors":[]}`, snapshot.data)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/visitors/track",
		strings.NewReader(`{"path":"/checkout","visitorId":"live-1"}`))
	require.NoError(t, err)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	changed := nextEvent(t, first, 2*time.Second)
	assert.Equal(t, "visitors-changed", changed.name)
	assert.JSONEq(t, `{"type":"new_event"}`, changed.data)

	select {
	case ev := <-first:
		t.Fatalf("expected exactly one signal, got another: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	second, closeSecond := connect()
	defer closeSecond()

	latest := nextEvent(t, second, 5*time.Second)
	require.Equal(t, "snapshot", latest.name)

	var state analytics.Snapshot
	require.NoError(t, json.Unmarshal([]byte(latest.data), &state))
	assert.Equal(t, int64(1), state.Count)
	require.Len(t, state.Visitors, 1)
	assert.Equal(t, "/checkout", state.Visitors[0].Path)
}
