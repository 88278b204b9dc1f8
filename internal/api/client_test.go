package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lectern/internal/api"
	"lectern/internal/services"
)

func newClient(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func TestNewClientEmptyBind(t *testing.T) {
	client, err := api.NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	if _, err := client.Status(context.Background()); !api.IsUnavailable(err) {
		t.Fatalf("expected unavailable error from nil client, got %v", err)
	}
}

func TestClientSendsTokenAndDecodesQueue(t *testing.T) {
	var gotAuth string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/queue" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.QueueListResponse{Items: []api.Job{{ID: "a", Status: "processing"}}})
	}))

	items, err := client.Queue(context.Background())
	if err != nil {
		t.Fatalf("Queue error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("unexpected items %+v", items)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestClientMapsErrorStatuses(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/papers/missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "paper not found"})
		case "/api/queue/busy":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job is running"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	ctx := context.Background()

	if _, err := client.Paper(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := client.Remove(ctx, "busy"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.Status(ctx); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for 401, got %v", err)
	}
}

func TestClientUploadFileSendsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "My Paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	var gotName, gotBody, gotForce string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName = header.Filename
		gotBody = string(data)
		gotForce = r.FormValue("force")
		_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{ID: "My_Paper", Status: "pending"}})
	}))

	job, err := client.UploadFile(context.Background(), path, true)
	if err != nil {
		t.Fatalf("UploadFile error: %v", err)
	}
	if job.ID != "My_Paper" {
		t.Fatalf("unexpected job %+v", job)
	}
	if gotName != "My Paper.pdf" || gotBody != "%PDF-1.4 test" || gotForce != "true" {
		t.Fatalf("unexpected upload name=%q body=%q force=%q", gotName, gotBody, gotForce)
	}
}

func TestClientLogsBuildsQuery(t *testing.T) {
	var gotQuery url.Values
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{
			Events: []api.LogEvent{{Timestamp: time.Now().UTC(), Level: "INFO", Message: "hello"}},
			Next:   42,
		})
	}))

	resp, err := client.Logs(context.Background(), api.LogQuery{
		Since:     3,
		Limit:     50,
		Follow:    true,
		Tail:      true,
		Component: "workflow",
		JobID:     "paper",
	})
	if err != nil {
		t.Fatalf("Logs error: %v", err)
	}
	if len(resp.Events) != 1 || resp.Next != 42 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	for key, want := range map[string]string{
		"since":     "3",
		"limit":     "50",
		"follow":    "1",
		"tail":      "1",
		"component": "workflow",
		"job":       "paper",
	} {
		if got := gotQuery.Get(key); got != want {
			t.Fatalf("query[%s]: expected %q, got %q", key, want, got)
		}
	}
}

func TestClientMatchPostsBody(t *testing.T) {
	var got api.MatchRequest
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/papers/p 1/match" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(api.MatchResponse{Found: true, Text: "Intro", Kind: "title"})
	}))

	resp, err := client.Match(context.Background(), "p 1", api.MatchRequest{Fragment: "引言", Kind: "title", Lang: "zh"})
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if !resp.Found || resp.Text != "Intro" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Fragment != "引言" || got.Lang != "zh" {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestClientEventsReadsWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(api.Event{Type: "job_started", Job: &api.Job{ID: "a"}})
		_ = conn.WriteJSON(api.Event{Type: "job_completed", Job: &api.Job{ID: "a"}})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := client.Events(ctx)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	var types []string
	for evt := range events {
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != "job_started" || types[1] != "job_completed" {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestIsUnavailable(t *testing.T) {
	if !api.IsUnavailable(api.ErrUnavailable) {
		t.Fatal("expected ErrUnavailable to be unavailable")
	}
	if api.IsUnavailable(errors.New("other")) {
		t.Fatal("did not expect generic error to be unavailable")
	}
}
