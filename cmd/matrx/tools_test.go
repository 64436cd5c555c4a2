package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aimatrx/matrx/internal/engine"
)

func TestToolsListCommand(t *testing.T) {
	isolateHome(t)

	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/tools/list": func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"tools": []string{"screenshot", "scrape_page"}})
		},
	})

	output := captureStdout(t, func() {
		cmd := newToolsCommand()
		cmd.SetArgs([]string{"list"})
		if err := cmd.Execute(); err != nil {
			t.Errorf("tools list failed: %v", err)
		}
	})

	if !strings.Contains(output, "screenshot") || !strings.Contains(output, "scrape_page") {
		t.Errorf("missing tools, got:\n%s", output)
	}
}

func TestToolsInvokePassesInputAndPrintsOutput(t *testing.T) {
	isolateHome(t)

	var gotPayload map[string]any
	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/tools/invoke": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
				t.Errorf("decode invoke payload: %v", err)
			}
			json.NewEncoder(w).Encode(engine.ToolResult{Type: "success", Output: "operational"})
		},
	})

	cmd := newToolsCommand()
	output := captureStdout(t, func() {
		cmd.SetArgs([]string{"invoke", "system_check", "--input", `{"verbose":true}`})
		if err := cmd.Execute(); err != nil {
			t.Errorf("tools invoke failed: %v", err)
		}
	})

	if !strings.Contains(output, "operational") {
		t.Errorf("missing tool output, got:\n%s", output)
	}
	if gotPayload["tool"] != "system_check" {
		t.Errorf("tool = %v, want system_check", gotPayload["tool"])
	}
	input, _ := gotPayload["input"].(map[string]any)
	if input["verbose"] != true {
		t.Errorf("input not forwarded, payload: %v", gotPayload)
	}
}

func TestToolsInvokeSavesImage(t *testing.T) {
	isolateHome(t)

	imageBytes := []byte{0x89, 'P', 'N', 'G'}
	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/tools/invoke": func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(engine.ToolResult{
				Type:   "success",
				Output: "captured",
				Image: map[string]any{
					"media_type":  "image/png",
					"base64_data": base64.StdEncoding.EncodeToString(imageBytes),
				},
			})
		},
	})

	target := filepath.Join(t.TempDir(), "shot.png")
	cmd := newToolsCommand()
	output := captureStdout(t, func() {
		cmd.SetArgs([]string{"invoke", "screenshot", "--save-image", target})
		if err := cmd.Execute(); err != nil {
			t.Errorf("tools invoke failed: %v", err)
		}
	})

	if !strings.Contains(output, "Image written to "+target) {
		t.Errorf("missing save confirmation, got:\n%s", output)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read saved image: %v", err)
	}
	if string(data) != string(imageBytes) {
		t.Fatalf("saved image bytes mismatch: %v", data)
	}
}

func TestToolsInvokeInvalidInput(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newToolsCommand()
	cmd.SetArgs([]string{"invoke", "screenshot", "--input", "{broken"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid input JSON")
	}
}

func TestToolsInvokeErrorResult(t *testing.T) {
	isolateHome(t)

	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/tools/invoke": func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(engine.ToolResult{Type: "error", Output: "tool exploded"})
		},
	})

	cmd := newToolsCommand()
	cmd.SetArgs([]string{"invoke", "screenshot"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "returned an error") {
		t.Fatalf("expected error result to fail the command, got %v", err)
	}
}
