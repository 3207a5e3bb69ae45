package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openwake/openwake/internal/action"
	"github.com/openwake/openwake/internal/compute"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/pkg/types"
)

// stubGateway serves one instance and fails every poll fast so workflows
// terminate without timers.
type stubGateway struct {
	instance *compute.Instance
}

func (g *stubGateway) FindByName(_ context.Context, name string) (*compute.Instance, error) {
	if g.instance == nil || g.instance.Name != name {
		return nil, nil
	}
	inst := *g.instance
	return &inst, nil
}

func (g *stubGateway) Get(context.Context, string) (*compute.Instance, error) {
	inst := *g.instance
	inst.Status = compute.StatusError
	return &inst, nil
}

func (g *stubGateway) Unshelve(context.Context, string) error { return nil }
func (g *stubGateway) Shelve(context.Context, string) error   { return nil }

func testServer(t *testing.T, gw compute.Gateway) (*Server, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		App: config.App{ControlToken: "secret"},
		Targets: []config.Target{
			{ID: "chatbox", Label: "Chatbox", InstanceName: "chatbox-vm", Description: "LLM playground"},
		},
		Events: config.Events{LocalPath: filepath.Join(t.TempDir(), "events.jsonl")},
	}
	mgr := action.NewManager(gw, nil, cfg.App, cfg.Targets)
	t.Cleanup(mgr.Close)
	return NewServer(mgr, cfg), cfg
}

func doRequest(s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, &stubGateway{})
	rec := doRequest(s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestListTargets(t *testing.T) {
	s, _ := testServer(t, &stubGateway{})
	rec := doRequest(s, http.MethodGet, "/targets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var views []types.TargetStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].ID != "chatbox" || views[0].Label != "Chatbox" {
		t.Errorf("unexpected views: %+v", views)
	}
	if views[0].Status.State != types.StateIdle {
		t.Errorf("expected idle status, got %s", views[0].Status.State)
	}
}

func TestGetTargetRefreshesStatus(t *testing.T) {
	gw := &stubGateway{instance: &compute.Instance{ID: "vm-1", Name: "chatbox-vm", Status: compute.StatusShelvedOffloaded}}
	s, _ := testServer(t, gw)

	rec := doRequest(s, http.MethodGet, "/targets/chatbox", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view types.TargetStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status.Message != "Instance status: Shelved Offloaded" {
		t.Errorf("unexpected message %q", view.Status.Message)
	}
}

func TestGetTargetNotFound(t *testing.T) {
	s, _ := testServer(t, &stubGateway{})
	rec := doRequest(s, http.MethodGet, "/targets/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUnshelveTarget(t *testing.T) {
	gw := &stubGateway{instance: &compute.Instance{ID: "vm-1", Name: "chatbox-vm", Status: compute.StatusShelved}}
	s, _ := testServer(t, gw)

	rec := doRequest(s, http.MethodPost, "/targets/chatbox/unshelve", map[string]string{"X-Forwarded-User": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var status types.StatusRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != types.StateUnshelving || !status.Running {
		t.Errorf("unexpected snapshot: %+v", status)
	}

	if rec := doRequest(s, http.MethodPost, "/targets/ghost/unshelve", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown target, got %d", rec.Code)
	}
}

type recordingAuditor struct {
	mu     sync.Mutex
	actors []string
}

func (a *recordingAuditor) Record(_ context.Context, _, actor, _ string, _ *string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actors = append(a.actors, actor)
}

func TestUnshelveActorFromBody(t *testing.T) {
	gw := &stubGateway{instance: &compute.Instance{ID: "vm-1", Name: "chatbox-vm", Status: compute.StatusShelved}}
	cfg := &config.Config{
		App: config.App{ControlToken: "secret"},
		Targets: []config.Target{
			{ID: "chatbox", Label: "Chatbox", InstanceName: "chatbox-vm"},
		},
		Events: config.Events{LocalPath: filepath.Join(t.TempDir(), "events.jsonl")},
	}
	auditor := &recordingAuditor{}
	mgr := action.NewManager(gw, auditor, cfg.App, cfg.Targets)
	t.Cleanup(mgr.Close)
	s := NewServer(mgr, cfg)

	body := strings.NewReader(`{"actor": "scheduler", "reason": "warm-up"}`)
	req := httptest.NewRequest(http.MethodPost, "/targets/chatbox/unshelve", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		auditor.mu.Lock()
		n := len(auditor.actors)
		auditor.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for audit record")
		}
		time.Sleep(10 * time.Millisecond)
	}

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	if auditor.actors[0] != "scheduler" {
		t.Errorf("expected body actor to win over header, got %s", auditor.actors[0])
	}
}

func TestShelveRequiresControlToken(t *testing.T) {
	gw := &stubGateway{instance: &compute.Instance{ID: "vm-1", Name: "chatbox-vm", Status: compute.StatusShelvedOffloaded}}
	s, _ := testServer(t, gw)

	if rec := doRequest(s, http.MethodPost, "/targets/chatbox/shelve", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec := doRequest(s, http.MethodPost, "/targets/chatbox/shelve", map[string]string{"X-Control-Token": "secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListEvents(t *testing.T) {
	s, cfg := testServer(t, &stubGateway{})

	var lines []string
	for _, ev := range []types.Event{
		{ID: "1", Timestamp: time.Now().UTC(), Action: types.EventUnshelveRequested, Actor: "alice", InstanceName: "chatbox-vm"},
		{ID: "2", Timestamp: time.Now().UTC(), Action: types.EventUnshelveComplete, Actor: "alice", InstanceName: "chatbox-vm"},
	} {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		lines = append(lines, string(data))
	}
	if err := os.WriteFile(cfg.Events.LocalPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write event log: %v", err)
	}

	if rec := doRequest(s, http.MethodGet, "/events", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec := doRequest(s, http.MethodGet, "/events?limit=1", map[string]string{"X-Control-Token": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var events []types.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].ID != "2" {
		t.Errorf("expected only the newest event, got %+v", events)
	}
}

func TestListEventsMissingFile(t *testing.T) {
	s, _ := testServer(t, &stubGateway{})
	rec := doRequest(s, http.MethodGet, "/events", map[string]string{"X-Control-Token": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for missing log, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}
}
