package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/auth"
	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/observ"
	"github.com/lalith-99/chatlog/internal/reconcile"
	"github.com/lalith-99/chatlog/internal/repository/memory"
	"github.com/lalith-99/chatlog/internal/search"
	"github.com/lalith-99/chatlog/internal/service"
	"github.com/lalith-99/chatlog/internal/stream"
	"github.com/lalith-99/chatlog/internal/tasks"
)

const adminSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	svc    *service.Service
	store  *memory.Store
	exec   *tasks.MemoryExecutor
}

// newTestEnv runs the full stack in memory, with real workers draining the
// task queue in the background.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observ.NewMetrics(reg)

	store := memory.New()
	counters := counter.NewMemoryStore()
	broker := stream.NewMemoryBroker()
	exec := tasks.NewMemoryExecutor(256, 4, tasks.Policy{MaxAttempts: 3, Backoff: time.Millisecond}, logger, metrics)

	svc := service.New(service.Deps{
		Applications: store.Applications(),
		Chats:        store.Chats(),
		Messages:     store.Messages(),
		Counters:     counters,
		Tasks:        exec,
		Index:        search.NewMemoryIndex(),
		Events:       broker,
		Metrics:      metrics,
		Logger:       logger,
	})
	sweeper := reconcile.NewSweeper(store.Applications(), store.Chats(), store.Messages(),
		counters, reconcile.NewLocalLocker(), reconcile.Options{}, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Start(ctx, svc)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = exec.Close()
	})

	router := NewRouter(RouterDeps{
		Service:        svc,
		Tasks:          exec,
		Reconciler:     sweeper,
		Broker:         broker,
		AdminJWTSecret: adminSecret,
		Metrics:        metrics,
		Gatherer:       reg,
		Logger:         logger,
	})
	return &testEnv{router: router, svc: svc, store: store, exec: exec}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createApp(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/applications", `{"name":"support"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]any](t, w)["token"].(string)
}

// createChats allocates n chats and waits until all are persisted.
func (e *testEnv) createChats(t *testing.T, token string, n int) {
	t.Helper()
	for range n {
		w := e.do(t, http.MethodPost, "/api/v1/applications/"+token+"/chats", "")
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	require.Eventually(t, func() bool {
		w := e.do(t, http.MethodGet, "/api/v1/applications/"+token+"/chats?per_page=100", "")
		return w.Code == http.StatusOK && decode[service.ChatPage](t, w).Pagination.TotalChats == int64(n)
	}, time.Second, 5*time.Millisecond)
}

func TestUp(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/up", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestApplicationLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/applications", `{"application":{"name":"wrapped"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	app := decode[map[string]any](t, w)
	token := app["token"].(string)
	assert.Equal(t, "wrapped", app["name"])
	assert.EqualValues(t, 0, app["chats_count"])
	assert.NotContains(t, app, "id")

	w = e.do(t, http.MethodPatch, "/api/v1/applications/"+token, `{"name":"renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", decode[map[string]any](t, w)["name"])

	w = e.do(t, http.MethodPut, "/api/v1/applications/"+token, `{"name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":["Name can't be blank"]}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/applications/"+token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", decode[map[string]any](t, w)["name"])

	w = e.do(t, http.MethodGet, "/api/v1/applications/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Application not found"}`, w.Body.String())
}

func TestCreateApplicationErrors(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/applications", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":["Name can't be blank"]}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/v1/applications", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatsAndMessages(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	base := "/api/v1/applications/" + token

	w := e.do(t, http.MethodPost, base+"/chats", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"number":1}`, w.Body.String())

	require.Eventually(t, func() bool {
		return e.do(t, http.MethodGet, base+"/chats/1", "").Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	chat := decode[map[string]any](t, e.do(t, http.MethodGet, base+"/chats/1", ""))
	assert.EqualValues(t, 1, chat["number"])
	assert.Contains(t, chat, "messages_count")
	assert.NotContains(t, chat, "id")

	w = e.do(t, http.MethodPost, base+"/chats/1/messages", `{"body":"hello world"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"message_number":1}`, w.Body.String())

	// Form-encoded bodies are accepted too.
	req := httptest.NewRequest(http.MethodPost, base+"/chats/1/messages", strings.NewReader(url.Values{"body": {"second"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"message_number":2}`, w.Body.String())

	require.Eventually(t, func() bool {
		w := e.do(t, http.MethodGet, base+"/chats/1/messages", "")
		return w.Code == http.StatusOK && len(decode[[]map[string]any](t, w)) == 2
	}, time.Second, 5*time.Millisecond)

	msgs := decode[[]map[string]any](t, e.do(t, http.MethodGet, base+"/chats/1/messages", ""))
	assert.Equal(t, "hello world", msgs[0]["body"])
	assert.EqualValues(t, 1, msgs[0]["number"])
	assert.Equal(t, "second", msgs[1]["body"])

	w = e.do(t, http.MethodGet, base+"/chats/1/messages/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "second", decode[map[string]any](t, w)["body"])

	w = e.do(t, http.MethodGet, base+"/chats/1/messages/9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Message not found"}`, w.Body.String())
}

func TestMessageErrors(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	e.createChats(t, token, 1)
	base := "/api/v1/applications/" + token

	w := e.do(t, http.MethodPost, base+"/chats/1/messages", `{"body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Body parameter is required"}`, w.Body.String())

	w = e.do(t, http.MethodPost, base+"/chats/1/messages", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, base+"/chats/42/messages", `{"body":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, w.Body.String())

	w = e.do(t, http.MethodGet, base+"/chats/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/applications/nope/chats/abc", "")
	assert.JSONEq(t, `{"error":"Application not found"}`, w.Body.String())

	// The rejected body did not consume a number.
	w = e.do(t, http.MethodPost, base+"/chats/1/messages", `{"body":"first"}`)
	assert.JSONEq(t, `{"message_number":1}`, w.Body.String())
}

func TestListChatsPagination(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	e.createChats(t, token, 10)

	w := e.do(t, http.MethodGet, "/api/v1/applications/"+token+"/chats?page=3&per_page=20", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"chats": [],
		"pagination": {
			"current_page": 3,
			"per_page": 20,
			"total_pages": 1,
			"total_chats": 10,
			"next_page": null,
			"prev_page": 2
		}
	}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/applications/"+token+"/chats?page=x&per_page=4", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[service.ChatPage](t, w)
	assert.Len(t, page.Chats, 4)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	require.NotNil(t, page.Pagination.NextPage)
	assert.Equal(t, 2, *page.Pagination.NextPage)
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	e.createChats(t, token, 2)
	base := "/api/v1/applications/" + token

	for _, m := range []struct{ chat, body string }{
		{"1", "the build is green"},
		{"1", "lunch at noon"},
		{"2", "the build is red"},
	} {
		w := e.do(t, http.MethodPost, base+"/chats/"+m.chat+"/messages", `{"body":"`+m.body+`"}`)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := e.do(t, http.MethodGet, base+"/chats/1/messages/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Search query parameter 'q' is required"}`, w.Body.String())

	require.Eventually(t, func() bool {
		w := e.do(t, http.MethodGet, base+"/chats/1/messages/search?q=build", "")
		if w.Code != http.StatusOK {
			return false
		}
		hits := decode[[]map[string]any](t, w)
		return len(hits) == 1 && hits[0]["body"] == "the build is green"
	}, time.Second, 5*time.Millisecond)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	e.createChats(t, token, 3)

	adminToken, err := auth.GenerateToken("ops", adminSecret, time.Hour)
	require.NoError(t, err)
	bearer := []string{"Authorization", "Bearer " + adminToken}

	w := e.do(t, http.MethodGet, "/admin/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/admin/tasks", "", bearer...)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[tasks.Stats](t, w)
	assert.Equal(t, "memory", stats.Driver)
	assert.Equal(t, 3, stats.MaxAttempts)

	w = e.do(t, http.MethodPost, "/admin/reconcile", "", bearer...)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/applications/"+token, "")
	assert.EqualValues(t, 3, decode[map[string]any](t, w)["chats_count"])

	w = e.do(t, http.MethodDelete, "/admin/applications/"+token, "", bearer...)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/applications/"+token+"/chats/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Application not found"}`, w.Body.String())

	w = e.do(t, http.MethodDelete, "/admin/applications/"+token, "", bearer...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/up", "")

	w := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatlog_http_requests_total")
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)
	e.createChats(t, token, 1)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/applications/" + token + "/chats/1/messages/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler time to subscribe before the message is persisted.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/applications/"+token+"/chats/1/messages", "application/json", strings.NewReader(`{"body":"live"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "live", got["body"])
	assert.EqualValues(t, 1, got["number"])
}

func TestStreamUnknownChat(t *testing.T) {
	e := newTestEnv(t)
	token := e.createApp(t)

	w := e.do(t, http.MethodGet, "/api/v1/applications/"+token+"/chats/5/messages/stream", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, w.Body.String())
}
