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

	"github.com/prometheus/client_golang/prometheus"

	"humantask/internal/config"
	"humantask/internal/db"
	"humantask/internal/engine"
	"humantask/internal/events"
	"humantask/internal/metrics"
	"humantask/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	if mutate != nil {
		mutate(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := prometheus.NewRegistry()
	e := engine.New(conn, cfg)
	e.Metrics = metrics.New(reg)
	handler, err := New(Config{
		Engine:      e,
		BasePath:    "/v1",
		Auth:        AuthConfig{JWTSecret: testSecret, AllowHeaderActor: true},
		Gatherer:    reg,
		DevTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(user string, groups ...string) map[string]string {
	h := map[string]string{"X-Actor-Id": user}
	if len(groups) > 0 {
		h["X-Group-Ids"] = strings.Join(groups, ",")
	}
	return h
}

func createTask(t *testing.T, srv *testServer, body map[string]any) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", body, as("Administrator"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func operate(t *testing.T, srv *testServer, id int64, op, user string, body any) (*http.Response, []byte) {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	return doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v1/tasks/%d/%s", srv.URL, id, op), body, as(user))
}

func sharedTaskBody() map[string]any {
	return map[string]any{
		"priority":                55,
		"names":                   []map[string]string{{"language": "en-UK", "text": "This is my task name"}},
		"potential_owners":        []string{"user:Bobba Fet", "user:Darth Vader"},
		"business_administrators": []string{"user:Administrator"},
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	body := sharedTaskBody()
	body["input"] = map[string]any{"type": "text/plain", "data": []byte("content!")}
	task := createTask(t, srv, body)
	if task.Status != "Ready" || task.Document == nil {
		t.Fatalf("unexpected created task %+v", task)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v1/contents/%d", srv.URL, task.Document.ContentID), nil, as("Bobba Fet"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get content status %d: %s", res.StatusCode, string(data))
	}
	var content ContentResponse
	if err := json.Unmarshal(data, &content); err != nil || string(content.Data) != "content!" {
		t.Fatalf("content = %q, %v", content.Data, err)
	}

	for _, op := range []string{"claim", "start"} {
		if res, data := operate(t, srv, task.ID, op, "Bobba Fet", nil); res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", op, res.StatusCode, string(data))
		}
	}
	res, data = operate(t, srv, task.ID, "complete", "Bobba Fet", map[string]any{
		"output": map[string]any{"type": "text/plain", "data": []byte("done")},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done TaskResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if done.Status != "Completed" || done.Output == nil || *done.ActualOwner != "Bobba Fet" {
		t.Fatalf("unexpected completed task %+v", done)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/events?terminal=true", nil, as("Administrator"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts paginatedEvents
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts.Items) != 1 || evts.Items[0].Type != events.TaskCompleted || evts.Items[0].Payload["actual_owner"] != "Bobba Fet" {
		t.Fatalf("unexpected terminal events %+v", evts.Items)
	}
}

func TestOperationErrorsMapToStatus(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	task := createTask(t, srv, sharedTaskBody())

	cases := []struct {
		name   string
		op     string
		user   string
		body   any
		status int
		code   string
	}{
		{"exit by potential owner", "exit", "Darth Vader", nil, http.StatusForbidden, "permission_denied"},
		{"stop a ready task", "stop", "Administrator", nil, http.StatusConflict, "status_precondition"},
		{"remove absent recipient", "remove", "Luke Cage", nil, http.StatusUnprocessableEntity, "not_applicable"},
		{"delegate without target", "delegate", "Bobba Fet", nil, http.StatusUnprocessableEntity, "not_applicable"},
		{"bad target", "forward", "Bobba Fet", map[string]any{"target": "robot:r2"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := operate(t, srv, task.ID, tc.op, tc.user, tc.body)
			if res.StatusCode != tc.status {
				t.Fatalf("status %d: %s", res.StatusCode, string(data))
			}
			var body struct {
				Error apiErrorBody `json:"error"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q (%s)", body.Error.Code, tc.code, body.Error.Message)
			}
		})
	}

	res, data := operate(t, srv, task.ID, "exit", "Darth Vader", nil)
	if res.StatusCode != http.StatusForbidden || !strings.Contains(string(data), "Darth Vader") {
		t.Fatalf("permission denied body should name the user: %s", string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/9999", nil, as("Bobba Fet"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task status %d", res.StatusCode)
	}
}

func TestListAssignedTasks(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	createTask(t, srv, sharedTaskBody())
	group := sharedTaskBody()
	group["potential_owners"] = []string{"group:Crusaders"}
	group["recipients"] = []string{"Luke Cage"}
	createTask(t, srv, group)

	list := func(headers map[string]string, query string) []TaskSummaryResponse {
		t.Helper()
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks"+query, nil, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list status %d: %s", res.StatusCode, string(data))
		}
		var out taskSummaries
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out.Items
	}
	if got := list(as("Bobba Fet"), "?locale=en-UK"); len(got) != 1 || got[0].Name != "This is my task name" {
		t.Fatalf("bobba sees %+v", got)
	}
	if got := list(as("Tony Stark", "Crusaders"), ""); len(got) != 1 {
		t.Fatalf("crusader sees %+v", got)
	}
	if got := list(as("Luke Cage"), "?role=recipient"); len(got) != 1 {
		t.Fatalf("recipient sees %+v", got)
	}
	if got := list(as("Bobba Fet"), "?status=Completed"); len(got) != 0 {
		t.Fatalf("status filter ignored: %+v", got)
	}
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks?status=Bogus", nil, as("Bobba Fet"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus status accepted: %d", res.StatusCode)
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/token", map[string]any{
		"user_id":   "Tony Stark",
		"group_ids": []string{"Crusaders"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev token status %d: %s", res.StatusCode, string(data))
	}
	var tok DevTokenResponse
	if err := json.Unmarshal(data, &tok); err != nil || tok.Token == "" {
		t.Fatalf("token: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %v", res.StatusCode, err)
	}
	if who.UserID != "Tony Stark" || len(who.GroupIDs) != 1 || who.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", who)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d", res.StatusCode)
	}

	plain, _, err := srv.Engine.CreateAPIKey(context.Background(), "Bobba Fet", []string{"Crusaders"}, "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": plain})
	if err := json.Unmarshal(data, &who); err != nil || res.StatusCode != http.StatusOK || who.UserID != "Bobba Fet" || who.Source != "api_key" {
		t.Fatalf("api key principal %+v (%d)", who, res.StatusCode)
	}
}

func TestMetricsAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	task := createTask(t, srv, sharedTaskBody())
	operate(t, srv, task.ID, "claim", "Bobba Fet", nil)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "humantask_operations_total") {
		t.Fatalf("metrics status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v1/tasks/{id}/{operation}") {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
}

func TestWebhookDeliversTerminalEvents(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var headers []http.Header
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.WebhookConfig{{URL: receiver.URL, Secret: "s3"}}
	})
	defer cleanup()
	d := NewWebhookDispatcher(srv.Engine, nil)
	ctx := context.Background()
	d.DispatchAll(ctx)

	task := createTask(t, srv, sharedTaskBody())
	operate(t, srv, task.ID, "start", "Bobba Fet", nil)
	operate(t, srv, task.ID, "complete", "Bobba Fet", nil)
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Type != events.TaskCompleted || got[0].TaskID != task.ID {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
	if headers[0].Get("X-Humantask-Event") != events.TaskCompleted || headers[0].Get("X-Humantask-Delivery") == "" || headers[0].Get("X-Humantask-Secret") != "s3" {
		t.Fatalf("unexpected headers %v", headers[0])
	}
}
