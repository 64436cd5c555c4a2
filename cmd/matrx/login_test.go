package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/engine"
)

func TestLoginStoresCredentials(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newLoginCommand()
	mustSetFlag(t, cmd, "token", "jwt-abc")
	mustSetFlag(t, cmd, "user-id", "user_1")
	mustSetFlag(t, cmd, "email", "dev@example.com")

	output := captureStdout(t, func() {
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Errorf("login failed: %v", err)
		}
	})

	if !strings.Contains(output, "Cloud session stored") {
		t.Errorf("missing success message, got:\n%s", output)
	}

	creds, err := credentials.Load()
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds == nil || creds.Token != "jwt-abc" || creds.UserID != "user_1" {
		t.Fatalf("unexpected stored credentials: %+v", creds)
	}
	if creds.Email != "dev@example.com" {
		t.Errorf("email = %q, want dev@example.com", creds.Email)
	}
}

func TestLoginRegistersWithRunningEngine(t *testing.T) {
	isolateHome(t)

	configured := false
	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/cloud/configure": func(w http.ResponseWriter, r *http.Request) {
			configured = true
			json.NewEncoder(w).Encode(engine.ConfigureResult{Configured: true, InstanceID: "inst_1"})
		},
	})

	cmd := newLoginCommand()
	mustSetFlag(t, cmd, "token", "jwt-abc")
	mustSetFlag(t, cmd, "user-id", "user_1")

	captureStdout(t, func() {
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Errorf("login failed: %v", err)
		}
	})

	if !configured {
		t.Error("expected login to register the session with the running engine")
	}
}

func TestLoginShowMasksToken(t *testing.T) {
	isolateHome(t)

	if err := credentials.Save(&credentials.Credentials{Token: "secret-jwt", UserID: "user_9"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	cmd := newLoginCommand()
	mustSetFlag(t, cmd, "show", "true")

	output := captureStdout(t, func() {
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Errorf("login --show failed: %v", err)
		}
	})

	if strings.Contains(output, "secret-jwt") {
		t.Errorf("token leaked into output:\n%s", output)
	}
	if !strings.Contains(output, "user_9") {
		t.Errorf("missing user id, got:\n%s", output)
	}
	if !strings.Contains(output, "token_configured") {
		t.Errorf("missing token_configured field, got:\n%s", output)
	}
}

func TestLoginShowRejectsOtherFlags(t *testing.T) {
	isolateHome(t)

	cmd := newLoginCommand()
	mustSetFlag(t, cmd, "show", "true")
	mustSetFlag(t, cmd, "token", "jwt")

	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected --show with --token to fail")
	}
}

func TestLogoutClearsCredentials(t *testing.T) {
	isolateHome(t)

	if err := credentials.Save(&credentials.Credentials{Token: "jwt", UserID: "user_1"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	cmd := newLogoutCommand()
	captureStdout(t, func() {
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Errorf("logout failed: %v", err)
		}
	})

	creds, err := credentials.Load()
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds != nil {
		t.Fatalf("expected cleared credentials, got %+v", creds)
	}
}
