package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aimatrx/matrx/internal/engine"
)

func TestRefreshCommandConnects(t *testing.T) {
	isolateHome(t)
	fe := newCLIEngine(t, "1.4.0", map[string]http.HandlerFunc{
		"/tools/list": func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"tools": []string{"screenshot"}})
		},
		"/system/info": func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(engine.SystemInfo{Platform: "Linux", OSVersion: "6.8", Architecture: "x86_64"})
		},
	})

	output := captureStdout(t, func() {
		cmd := newRefreshCommand()
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Errorf("refresh failed: %v", err)
		}
	})

	if !strings.Contains(output, "Status: connected") {
		t.Errorf("missing connected status, got:\n%s", output)
	}
	if !strings.Contains(output, "Endpoint: "+fe.srv.URL) {
		t.Errorf("missing endpoint, got:\n%s", output)
	}
	if !strings.Contains(output, "Engine version: 1.4.0") {
		t.Errorf("missing version, got:\n%s", output)
	}
	if !strings.Contains(output, "Tools: 1") {
		t.Errorf("missing tool count, got:\n%s", output)
	}
	if !strings.Contains(output, "System: Linux 6.8 (x86_64)") {
		t.Errorf("missing system line, got:\n%s", output)
	}
}

func TestRefreshCommandJSONSnapshot(t *testing.T) {
	isolateHome(t)
	fe := newCLIEngine(t, "1.4.0", nil)

	output := captureStdout(t, func() {
		root := newTestRoot(newRefreshCommand(), "refresh", "--json")
		if err := root.Execute(); err != nil {
			t.Errorf("refresh failed: %v", err)
		}
	})

	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &snap); err != nil {
		t.Fatalf("JSON output is not a snapshot: %v\nOutput:\n%s", err, output)
	}
	if snap.Status != engine.StatusConnected {
		t.Errorf("status = %s, want connected", snap.Status)
	}
	if snap.Endpoint != fe.srv.URL {
		t.Errorf("endpoint = %s, want %s", snap.Endpoint, fe.srv.URL)
	}
	if snap.Version != "1.4.0" {
		t.Errorf("version = %s, want 1.4.0", snap.Version)
	}
}

func TestRefreshCommandFailsWhenEngineMissing(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newRefreshCommand()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected refresh to fail without an engine")
	}
	if !strings.Contains(err.Error(), "Connection sequence failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}
