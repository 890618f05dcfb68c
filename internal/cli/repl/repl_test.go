package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mathtutor/internal/cli/command"
	httpclient "mathtutor/internal/cli/http"
	"mathtutor/internal/cli/state"
)

func newTestSession(t *testing.T, handler http.HandlerFunc, input string) (*Session, *bytes.Buffer, *state.TokenState, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &state.TokenState{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	client := httpclient.New(srv.URL, time.Second, func() string { return tokens.AccessToken })
	out := &bytes.Buffer{}
	return New(client, command.Registry(), tokens, statePath, true, strings.NewReader(input), out), out, tokens, statePath
}

func TestLoginStoresToken(t *testing.T) {
	var gotAuth string
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["username"] != "ana" || body["password"] != "pw secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"userid":5,"username":"ana","rating":1500,"access_token":"tok-123"}`))
		case "/users/5/submissions":
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
	session, _, tokens, statePath := newTestSession(t, handler, "")
	ctx := context.Background()

	if err := session.Exec(ctx, `auth login username=ana "password=pw secret"`); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if tokens.AccessToken != "tok-123" || tokens.UserID != 5 {
		t.Fatalf("token not captured: %+v", tokens)
	}
	saved, err := state.Load(statePath)
	if err != nil || saved.AccessToken != "tok-123" {
		t.Fatalf("token not persisted: %+v %v", saved, err)
	}

	if err := session.Exec(ctx, "user submissions id=5"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestErrorEnvelopeRendering(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":3001,"message":"Problem not found","trace_id":"t-1"}`))
	}
	session, out, _, _ := newTestSession(t, handler, "")
	if err := session.Exec(context.Background(), "problem get id=99"); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if !strings.Contains(out.String(), "error 3001: Problem not found (trace t-1)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunPromptsForMissingFields(t *testing.T) {
	var gotPath string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"id":3}`))
	}
	session, out, _, _ := newTestSession(t, handler, "problem get\n3\nbogus cmd\nexit\n")
	session.Run(context.Background())

	if gotPath != "/problems/3" {
		t.Fatalf("expected prompted id in path, got %q", gotPath)
	}
	text := out.String()
	if !strings.Contains(text, "problem_id:") || !strings.Contains(text, "unknown command: bogus cmd") || !strings.Contains(text, "bye") {
		t.Fatalf("unexpected transcript %q", text)
	}
}
