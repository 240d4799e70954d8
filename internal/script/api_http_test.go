package script_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/script"
)

func TestRun_HTTPGet_ReturnsResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `
		var resp = jarvis.http.get("`+srv.URL+`");
		resp.ok === true && resp.status === 200 && resp.body === "pong";
	`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "ping", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxStandard,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: HTTP GET response shape did not match expectations")
	}
}

func TestRun_HTTPPostJSON_SendsEncodedBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q; want application/json", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `
		var resp = jarvis.http.post_json("`+srv.URL+`", {name: "timer"});
		resp.ok === true && resp.status === 201;
	`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "create", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxStandard,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: HTTP POST JSON response shape did not match expectations")
	}
	if received["name"] != "timer" {
		t.Errorf("received body = %v; want name=timer", received)
	}
}

func TestRun_HTTPUnavailableAtMinimalTier(t *testing.T) {
	dir := t.TempDir()
	name := writeScript(t, dir, "main.js", `typeof jarvis.http === "undefined"`)
	h := script.New()
	cmd := &catalog.Command{
		ID: "no_http", Kind: catalog.KindScript, Dir: dir, ScriptPath: name,
		SandboxLevel: catalog.SandboxMinimal,
	}

	chain, err := h.Run(context.Background(), cmd, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !chain {
		t.Error("Run: expected jarvis.http to be undefined at minimal tier")
	}
}
