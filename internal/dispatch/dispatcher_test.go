package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"jira-mcp-server/internal/auth"
	"jira-mcp-server/internal/catalog"
	"jira-mcp-server/internal/common"
)

// newTestDispatcher wires a dispatcher to an httptest backend with retry
// sleeps disabled. Shared by the walker and poller tests.
func newTestDispatcher(srvURL string, reg *catalog.Registry, cfg common.DispatchConfig) *Dispatcher {
	logger := common.NewSilentLogger()
	e := NewExecutor(srvURL, auth.NewBasicProvider("test@example.com", "token"), logger, cfg)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return New(reg, e, logger, cfg)
}

func countingServer(t *testing.T, calls *atomic.Int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatcher_Invoke(t *testing.T) {
	reg := catalog.NewRegistry([]*catalog.Descriptor{{
		Name:   "get_issue",
		Method: "GET",
		Path:   "/rest/api/3/issue/{issueIdOrKey}",
		Params: []catalog.Param{
			{Name: "issueIdOrKey", In: catalog.InPath, Type: catalog.TypeString, Required: true},
			{Name: "fields", In: catalog.InQuery, Type: catalog.TypeString},
		},
	}})

	var calls atomic.Int32
	srv := countingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/issue/ABC-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "summary" {
			t.Errorf("expected fields=summary, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"ABC-1"}`))
	})

	d := newTestDispatcher(srv.URL, reg, common.DispatchConfig{MaxRetries: 1})
	env, err := d.Invoke(context.Background(), "get_issue", map[string]any{
		"issueIdOrKey": "ABC-1",
		"fields":       "summary",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := env.Field("key"); v != "ABC-1" {
		t.Errorf("expected key ABC-1, got %v", v)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one call, got %d", calls.Load())
	}
}

func TestDispatcher_Invoke_UnknownTool(t *testing.T) {
	var calls atomic.Int32
	srv := countingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})

	d := newTestDispatcher(srv.URL, catalog.NewRegistry(nil), common.DispatchConfig{})
	_, err := d.Invoke(context.Background(), "no_such_tool", nil)
	f := wantFailure(t, err, KindNotFound)
	if f.Retryable {
		t.Error("unknown tool must not be retryable")
	}
	if calls.Load() != 0 {
		t.Errorf("registry miss must not reach the network, got %d calls", calls.Load())
	}
}

func TestDispatcher_Invoke_ValidationSkipsNetwork(t *testing.T) {
	reg := catalog.NewRegistry([]*catalog.Descriptor{{
		Name:   "get_issue",
		Method: "GET",
		Path:   "/rest/api/3/issue/{issueIdOrKey}",
		Params: []catalog.Param{
			{Name: "issueIdOrKey", In: catalog.InPath, Type: catalog.TypeString, Required: true},
		},
	}})

	var calls atomic.Int32
	srv := countingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})

	d := newTestDispatcher(srv.URL, reg, common.DispatchConfig{})
	_, err := d.Invoke(context.Background(), "get_issue", map[string]any{})
	wantFailure(t, err, KindValidation)
	if calls.Load() != 0 {
		t.Errorf("binding failure must not reach the network, got %d calls", calls.Load())
	}
}

func asyncRegistry() *catalog.Registry {
	return catalog.NewRegistry([]*catalog.Descriptor{
		{
			Name:   "bulk_delete_issues",
			Method: "POST",
			Path:   "/rest/api/3/bulk/issues/delete",
			Body:   &catalog.Body{ArgName: "body", Required: true},
			Async: &catalog.Async{
				StatusTool:  "get_task",
				TaskIDField: "taskId",
				TaskIDParam: "taskId",
				StatusField: "status",
				StatusMap: map[string]string{
					"ENQUEUED": "pending",
					"RUNNING":  "running",
					"COMPLETE": "succeeded",
					"FAILED":   "failed",
				},
			},
		},
		{
			Name:   "get_task",
			Method: "GET",
			Path:   "/rest/api/3/task/{taskId}",
			Params: []catalog.Param{
				{Name: "taskId", In: catalog.InPath, Type: catalog.TypeString, Required: true},
			},
		},
	})
}

func TestDispatcher_InvokeAsync_FullFlow(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/api/3/bulk/issues/delete":
			w.Write([]byte(`{"taskId":"10500"}`))
		case "/rest/api/3/task/10500":
			if polls.Add(1) < 2 {
				w.Write([]byte(`{"status":"RUNNING"}`))
			} else {
				w.Write([]byte(`{"status":"COMPLETE","result":"done"}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, asyncRegistry(), common.DispatchConfig{})
	env, err := d.InvokeAsync(context.Background(), "bulk_delete_issues",
		map[string]any{"body": `{"selectedIssueIdsOrKeys":["ABC-1"]}`},
		5*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := env.Field("status"); v != "COMPLETE" {
		t.Errorf("expected terminal status envelope, got %v", v)
	}
	if polls.Load() != 2 {
		t.Errorf("expected 2 status polls, got %d", polls.Load())
	}
}

func TestDispatcher_InvokeAsync_NonAsyncFallsBack(t *testing.T) {
	reg := catalog.NewRegistry([]*catalog.Descriptor{{
		Name:   "get_myself",
		Method: "GET",
		Path:   "/rest/api/3/myself",
	}})

	var calls atomic.Int32
	srv := countingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accountId":"abc"}`))
	})

	d := newTestDispatcher(srv.URL, reg, common.DispatchConfig{})
	env, err := d.InvokeAsync(context.Background(), "get_myself", nil, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := env.Field("accountId"); v != "abc" {
		t.Errorf("expected plain invocation result, got %v", v)
	}
	if calls.Load() != 1 {
		t.Errorf("expected single call with no polling, got %d", calls.Load())
	}
}
