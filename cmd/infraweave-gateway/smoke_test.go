package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/davidahmann/infraweave-panel/internal/config"
)

const smokeSHA = "89abcdef0123456789abcdef0123456789abcdef"

// fakeHost plays the catalog host, its context feed, Infraweave and GitHub.
func fakeHost(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /feed", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"type":"context","data":{"apiBaseUrl":"` + srv.URL + `/catalog-api","tag":"infraweave"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("GET /catalog-api/catalog/infraweave-plugin-config/custom-data", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "0" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"key":"infraweaveBaseUrl","value":"` + srv.URL + `/iw"},
			{"key":"githubBaseUrl","value":"` + srv.URL + `/gh"}
		]`))
	})
	mux.HandleFunc("GET /iw/projects", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"project_id":"p1","name":"Platform","description":"","regions":["eu-west-1"]}]`))
	})
	mux.HandleFunc("GET /gh/repos/org/repo/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":{"sha":"` + smokeSHA + `"}}`))
	})
	mux.HandleFunc("POST /gh/repos/org/repo/git/refs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("PUT /gh/repos/org/repo/contents/deployments/bucket.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /gh/repos/org/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"html_url":"https://github.example.com/org/repo/pull/9"}`))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func smokeRequest(t *testing.T, baseURL, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, raw
}

func TestSmoke(t *testing.T) {
	host := fakeHost(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Config{
		Host: config.HostConfig{
			ContextFeedURL: "ws" + strings.TrimPrefix(host.URL, "http") + "/feed",
		},
		Journal: config.JournalConfig{
			Driver: "sqlite",
			DSN:    "file:" + filepath.Join(t.TempDir(), "journal.db"),
		},
		Auth: config.AuthConfig{Token: "test-token"},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	server, cleanup, err := newServer(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()
	gw := httptest.NewServer(server.Handler)
	defer gw.Close()

	// auth gate sanity check
	res, err := http.Get(gw.URL + "/v1/config")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	waitReady(t, gw.URL)

	status, body := smokeRequest(t, gw.URL, http.MethodGet, "/v1/infraweave/projects", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"project_id":"p1"`) {
		t.Fatalf("projects: %d %s", status, body)
	}

	status, body = smokeRequest(t, gw.URL, http.MethodPost, "/v1/github/pull-requests", `{
		"repository_path": "org/repo",
		"source_branch": "infraweave/add-bucket",
		"target_branch": "main",
		"title": "Add bucket",
		"file_path": "deployments/bucket.yaml",
		"file_content": "kind: S3Bucket\n",
		"commit_message": "Add bucket deployment"
	}`)
	if status != http.StatusCreated {
		t.Fatalf("pull request: %d %s", status, body)
	}
	var mr struct {
		WebURL string `json:"web_url"`
		RunID  string `json:"run_id"`
	}
	if err := json.Unmarshal(body, &mr); err != nil {
		t.Fatalf("decode pull request: %v", err)
	}
	if mr.WebURL != "https://github.example.com/org/repo/pull/9" || mr.RunID == "" {
		t.Fatalf("unexpected pull request: %+v", mr)
	}

	status, body = smokeRequest(t, gw.URL, http.MethodGet, "/v1/journal/"+mr.RunID, "")
	if status != http.StatusOK {
		t.Fatalf("journal: %d %s", status, body)
	}
	var run struct {
		Status       string   `json:"status"`
		AppliedSteps []string `json:"applied_steps"`
		WebURL       string   `json:"web_url"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != "succeeded" || len(run.AppliedSteps) != 3 || run.WebURL != mr.WebURL {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func waitReady(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, body := smokeRequest(t, baseURL, http.MethodGet, "/v1/config", "")
		if status == http.StatusOK && strings.Contains(string(body), `"state":"ready"`) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("backend config never became ready")
}
