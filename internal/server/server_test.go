package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintline/internal/config"
	"maintline/internal/daterange"
	"maintline/internal/db"
	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/migrate"
	"maintline/internal/telemetry"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn, daterange.Calendar{Location: time.UTC, WeekStart: time.Sunday})
	cfg := Config{Engine: e, BasePath: "/v1", Log: zerolog.Nop()}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type envelope struct {
	Error apiErrorBody `json:"error"`
}

func seedMachine(t *testing.T, srv *testServer) (domain.Machine, domain.Activity) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/machines", map[string]any{"name": "Press 1"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	m := decode[domain.Machine](t, data)
	res, data = doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v1/machines/%d/activities", srv.URL, m.Code), map[string]any{
		"name":            "Lubrication",
		"type":            "PLANNED_PREVENTIVE",
		"frequency_hours": 168,
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return m, decode[domain.Activity](t, data)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", decode[struct {
		Status string `json:"status"`
	}](t, data).Status)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestWorkOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()
	m, a := seedMachine(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{
		"machine_code":  m.Code,
		"activity_code": a.Code,
	}, map[string]string{"X-Actor-Id": "alice"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	w := decode[domain.WorkOrder](t, data)
	assert.Equal(t, domain.StatePlanned, w.State)
	assert.Equal(t, domain.PriorityNormal, w.Priority)
	require.NotNil(t, w.NextState)
	assert.Equal(t, domain.StateValidated, *w.NextState)
	url := fmt.Sprintf("%s/v1/work-orders/%d", srv.URL, w.Code)

	res, data = doJSON(t, client, http.MethodPatch, url, map[string]any{"state": "DONE"}, nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode, string(data))
	env := decode[envelope](t, data)
	assert.Equal(t, "policy", env.Error.Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.Error.Status)

	res, data = doJSON(t, client, http.MethodPatch, url, map[string]any{"state": "VALIDATED"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPatch, url, map[string]any{"state": "DOING"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation", decode[envelope](t, data).Error.Code)

	res, data = doJSON(t, client, http.MethodPatch, url, map[string]any{
		"state":                 "DOING",
		"security_measures":     []map[string]any{{"description": "lockout"}},
		"protection_equipments": []string{"gloves"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPatch, url, map[string]any{
		"state":        "DONE",
		"observations": "greased",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	done := decode[domain.WorkOrder](t, data)
	assert.Equal(t, domain.StateDone, done.State)
	assert.Nil(t, done.NextState)
	require.NotNil(t, done.TotalHours)

	res, data = doJSON(t, client, http.MethodDelete, url, nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/drafts?date="+time.Now().UTC().Add(168*time.Hour).Format("2006-01-02"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	drafts := decode[DraftList](t, data)
	require.Len(t, drafts.Items, 1)
	assert.Equal(t, w.Code, drafts.Items[0].WorkOrderCode)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?entity_kind=work_order", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts := decode[EventList](t, data)
	require.NotEmpty(t, evts.Items)
	last := evts.Items[len(evts.Items)-1]
	assert.Equal(t, "workorder.created", last.Type)
	assert.Equal(t, "alice", last.ActorID)
}

func TestPathCodesAndMissingEntities(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/work-orders/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/work-orders/42", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	env := decode[envelope](t, data)
	assert.Equal(t, "not_found", env.Error.Code)
	assert.Equal(t, http.StatusNotFound, env.Error.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{"machine_code": 9}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/work-orders?range=DAILY", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/drafts/7", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestStoresAndCount(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()
	m, _ := seedMachine(t, srv)

	body := map[string]any{"machine_code": m.Code, "name": "grease", "unit": "kg", "amount": 10, "minimum_amount": 2}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/stores", body, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	store := decode[domain.Store](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/stores", body, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/stores?machine_code=%d", srv.URL, m.Code), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[StoreList](t, data).Items, 1)

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v1/stores/%d", srv.URL, store.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stores", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[StoreList](t, data).Items)

	for i := 0; i < 2; i++ {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{"machine_code": m.Code, "priority": "URGENT"}, nil)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/work-orders/count", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	count := decode[domain.WorkOrderCount](t, data)
	assert.EqualValues(t, 2, count.Current)
	require.Len(t, count.Machines, 1)
	assert.Len(t, count.Machines[0].Activities, 1)
}

func TestScheduleUpdateOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()
	m, _ := seedMachine(t, srv)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{"machine_code": m.Code}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	w := decode[domain.WorkOrder](t, data)
	url := fmt.Sprintf("%s/v1/work-orders/%d/schedule", srv.URL, w.Code)

	res, data = doJSON(t, client, http.MethodPut, url, map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decode[envelope](t, data)
	assert.Equal(t, "validation", env.Error.Code)
	assert.Equal(t, map[string]any{"day_schedule": "required_without"}, env.Error.Details["fields"])

	res, data = doJSON(t, client, http.MethodPut, url, map[string]any{"day_schedule": "someday"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	day := time.Now().UTC().Format("2006-01-02")
	res, data = doJSON(t, client, http.MethodPut, url, map[string]any{"day_schedule": day}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	scheduled := decode[domain.WorkOrder](t, data)
	require.NotNil(t, scheduled.DaySchedule)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedule?strict=true&date="+day, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decode[WorkOrderList](t, data)
	require.Len(t, list.Items, 1)
	assert.Equal(t, w.Code, list.Items[0].Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/indicators?date="+day, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestActivityCheckItemsMustNotBeEmpty(t *testing.T) {
	srv := newTestServer(t, nil)
	m, _ := seedMachine(t, srv)
	url := fmt.Sprintf("%s/v1/machines/%d/activities", srv.URL, m.Code)
	res, data := doJSON(t, srv.Client(), http.MethodPost, url,
		map[string]any{"name": "walkround", "type": "INSPECTION", "check_items": []string{"oil level", ""}}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decode[envelope](t, data)
	assert.Equal(t, map[string]any{"check_items[1]": "required"}, env.Error.Details["fields"])

	res, data = doJSON(t, srv.Client(), http.MethodPost, url,
		map[string]any{"name": "walkround", "type": "INSPECTION", "check_items": []string{"oil level"}}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestBearerRequiredWhenSecretConfigured(t *testing.T) {
	const secret = "s3cret"
	srv := newTestServer(t, func(c *Config) { c.Auth = AuthConfig{JWTSecret: secret} })
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/machines", map[string]any{"name": "Lathe"}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "unauthorized", decode[envelope](t, data).Error.Code)

	bad := map[string]string{"Authorization": "Bearer " + signToken(t, "other", "bob")}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/machines", map[string]any{"name": "Lathe"}, bad)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	good := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "bob")}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/machines", map[string]any{"name": "Lathe"}, good)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	m := decode[domain.Machine](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{"machine_code": m.Code}, good)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=workorder.created", nil, good)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts := decode[EventList](t, data)
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "bob", evts.Items[0].ActorID)
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()
	m, _ := seedMachine(t, srv)
	for i := 0; i < 5; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/work-orders", map[string]any{"machine_code": m.Code}, nil)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	seen := map[int64]bool{}
	cursor := ""
	for page := 0; page < 3; page++ {
		url := srv.URL + "/v1/events?limit=2"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		res, data := doJSON(t, client, http.MethodGet, url, nil, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		list := decode[EventList](t, data)
		for _, evt := range list.Items {
			assert.False(t, seen[evt.ID], "event %d returned twice", evt.ID)
			seen[evt.ID] = true
		}
		cursor = list.NextCursor
		if cursor == "" {
			break
		}
	}
	assert.Len(t, seen, 5)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?cursor=x", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := telemetry.NewMetrics("maintline")
	srv := newTestServer(t, func(c *Config) {
		c.Metrics = metrics
		c.Engine.Metrics = metrics
	})
	client := srv.Client()
	seedMachine(t, srv)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body := string(data)
	assert.Contains(t, body, "maintline_http_requests_total")
	assert.Contains(t, body, `route="/v1/machines"`)
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, p := range []string{"/v1/work-orders", "/v1/work-orders/{id}", "/v1/schedule", "/v1/drafts/{id}/promote"} {
		assert.Contains(t, doc.Paths, p)
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv := newTestServer(t, nil)
	m, _ := seedMachine(t, srv)

	var (
		mu       sync.Mutex
		received []webhookEvent
		sigs     []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		sigs = append(sigs, r.Header.Get("X-Maintline-Signature"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"workorder.*"},
		Secret: "k",
	}}, zerolog.Nop())
	ctx := context.Background()
	d.DispatchAll(ctx)

	_, err := srv.Engine.CreateStore(ctx, engine.CreateStoreOptions{MachineCode: m.Code, Name: "oil", Unit: "l", Amount: 1})
	require.NoError(t, err)
	_, err = srv.Engine.CreateWorkOrder(ctx, engine.CreateWorkOrderOptions{MachineCode: m.Code})
	require.NoError(t, err)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "workorder.created", received[0].Type)
	assert.True(t, strings.HasPrefix(sigs[0], "sha256="))
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"store.saved", "workorder.*"})
	assert.True(t, f.match("store.saved"))
	assert.True(t, f.match("workorder.deleted"))
	assert.False(t, f.match("store.deleted"))
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{"*"}).match("draft.created"))
}
