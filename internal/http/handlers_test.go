package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"handleprobe/internal/fetch"
	"handleprobe/internal/model"
	"handleprobe/internal/probe"
	"handleprobe/internal/registry"
	"handleprobe/internal/service"
	"handleprobe/internal/store"
)

const sitesJSON = `{
  "categories": ["coding", "social"],
  "sites": [
    {"name": "GitHub", "uri_check": "https://github.test/{account}", "e_code": 200, "m_code": 404, "cat": "coding"},
    {"name": "Reddit", "uri_check": "https://reddit.test/user/{account}", "uri_pretty": "https://reddit.test/u/{account}", "e_code": 200, "m_code": 404, "cat": "social"},
    {"name": "Flaky", "uri_check": "https://flaky.test/{account}", "e_code": 200, "m_code": 404, "cat": "social"}
  ]
}`

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (fetch.Response, error) {
	switch {
	case strings.HasPrefix(url, "https://flaky.test/"):
		return fetch.Response{}, &fetch.Error{Kind: fetch.KindTimeout, URL: url}
	case strings.HasSuffix(url, "/slow"):
		<-ctx.Done()
		return fetch.Response{}, &fetch.Error{Kind: fetch.KindCanceled, URL: url, Err: ctx.Err()}
	case strings.HasSuffix(url, "/alice"):
		return fetch.Response{Status: 200, Body: "<title>alice</title>", LatencyMS: 4}, nil
	default:
		return fetch.Response{Status: 404, LatencyMS: 4}, nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg, err := registry.Load(strings.NewReader(sitesJSON))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	opts := probe.DefaultOptions()
	opts.Delay = 0
	opts.PriorityDelay = 0
	svc := service.NewProbeService(
		store.NewSessionStore[*probe.Session](),
		service.NewSiteIndex(reg),
		probe.Deps{Fetcher: fakeFetcher{}},
		opts,
	)
	return NewServer(svc, log.New(io.Discard, "", 0))
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil || out.ID == "" {
		t.Fatalf("decode session: %v %+v", err, out)
	}
	return out.ID
}

// waitDone polls the session until its search reports done.
func waitDone(t *testing.T, s *Server, id string) model.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/sessions/"+id+"?sort=found", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get session: %d %s", rec.Code, rec.Body)
		}
		var snap model.Snapshot
		if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.Done {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("search did not finish")
	return model.Snapshot{}
}

func TestSearchFlow(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	rec := do(t, s, http.MethodPost, "/sessions/"+id+"/search", `{"handle":"alice"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("search: %d %s", rec.Code, rec.Body)
	}
	var started map[string]any
	json.NewDecoder(rec.Body).Decode(&started)
	if started["search_id"] == "" || started["sites"] != float64(3) {
		t.Fatalf("search response = %v", started)
	}

	snap := waitDone(t, s, id)
	if snap.Stats.Found != 2 || snap.Stats.Errors != 1 || snap.Stats.Pending != 0 {
		t.Fatalf("stats = %+v", snap.Stats)
	}
	if snap.Results[0].State != model.StateFound {
		t.Fatalf("sort=found should put found first: %+v", snap.Results)
	}

	rec = do(t, s, http.MethodGet, "/sessions/"+id+"/events", "")
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if body := rec.Body.String(); !strings.HasPrefix(body, "event: done\ndata: {") {
		t.Fatalf("events body = %q", body)
	}

	rec = do(t, s, http.MethodGet, "/sessions/"+id+"/export?format=csv", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("export: %d %s", rec.Code, rec.Header())
	}
	if !strings.Contains(rec.Body.String(), "Reddit,social,https://reddit.test/u/alice,found") {
		t.Fatalf("export body = %q", rec.Body)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "handleprobe-alice-") {
		t.Fatalf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	rec = do(t, s, http.MethodPost, "/sessions/"+id+"/retry/Flaky", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("retry without backup: %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestSearchValidation(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad json", "/sessions/" + id + "/search", `{`, http.StatusBadRequest},
		{"empty handle", "/sessions/" + id + "/search", `{"handle":"  "}`, http.StatusBadRequest},
		{"unknown site", "/sessions/" + id + "/search", `{"handle":"bob","sites":["Nope"]}`, http.StatusBadRequest},
		{"empty category", "/sessions/" + id + "/search", `{"handle":"bob","category":"music"}`, http.StatusBadRequest},
		{"unknown session", "/sessions/nope/search", `{"handle":"bob"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, tc.path, tc.body); rec.Code != tc.want {
				t.Fatalf("got %d want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}

	if rec := do(t, s, http.MethodGet, "/sessions/"+id+"/export", ""); rec.Code != http.StatusConflict {
		t.Fatalf("export before search: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/sessions/"+id+"/export?format=pdf", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("export pdf: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/sessions/"+id, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put session: %d", rec.Code)
	}
}

func TestSitesAndCategories(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/sites?category=social", "")
	var sites []model.SiteRule
	if err := json.NewDecoder(rec.Body).Decode(&sites); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sites) != 2 || sites[0].Name != "Reddit" {
		t.Fatalf("sites = %+v", sites)
	}

	rec = do(t, s, http.MethodGet, "/sites?q=git", "")
	sites = nil
	json.NewDecoder(rec.Body).Decode(&sites)
	if len(sites) != 1 || sites[0].Name != "GitHub" {
		t.Fatalf("query sites = %+v", sites)
	}

	rec = do(t, s, http.MethodGet, "/categories", "")
	var categories []string
	json.NewDecoder(rec.Body).Decode(&categories)
	if strings.Join(categories, ",") != "coding,social" {
		t.Fatalf("categories = %v", categories)
	}
}

func TestCheck(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/check?site=github&handle=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rec.Code, rec.Body)
	}
	var result model.CheckResult
	json.NewDecoder(rec.Body).Decode(&result)
	if result.State != model.StateFound || result.Title != "alice" {
		t.Fatalf("result = %+v", result)
	}

	rec = do(t, s, http.MethodGet, "/check?site=flaky&handle=alice", "")
	json.NewDecoder(rec.Body).Decode(&result)
	if result.State != model.StateError || result.ErrorDetail != "request timeout" {
		t.Fatalf("flaky result = %+v", result)
	}

	if rec := do(t, s, http.MethodGet, "/check?site=github", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing handle: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/check?site=nope&handle=alice", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown site: %d", rec.Code)
	}
}

func TestEventsStreamUntilDone(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	events, err := http.Get(ts.URL + "/sessions/" + created.ID + "/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer events.Body.Close()

	resp, err = http.Post(ts.URL+"/sessions/"+created.ID+"/search", "application/json", bytes.NewBufferString(`{"handle":"alice"}`))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	resp.Body.Close()

	body, err := io.ReadAll(events.Body)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	text := string(body)
	if !strings.HasPrefix(text, "event: snapshot\n") {
		t.Fatalf("stream should open with a snapshot: %q", text)
	}
	if !strings.Contains(text, "event: done\n") {
		t.Fatalf("stream should end with done: %q", text)
	}
}

func TestEventsStreamEndsWhenSessionDeleted(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	events, err := http.Get(ts.URL + "/sessions/" + created.ID + "/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer events.Body.Close()

	resp, err = http.Post(ts.URL+"/sessions/"+created.ID+"/search", "application/json", bytes.NewBufferString(`{"handle":"slow"}`))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	resp.Body.Close()

	read := make(chan string, 1)
	go func() {
		body, _ := io.ReadAll(events.Body)
		read <- string(body)
	}()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	select {
	case text := <-read:
		if strings.Contains(text, "event: done\n") {
			t.Fatalf("deleted session should not report done: %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events stream still open after the session was deleted")
	}
}
