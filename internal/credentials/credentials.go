// Package credentials persists the cloud session credential so CLI
// invocations and the monitor share one login without re-prompting.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aimatrx/matrx/internal/config"
)

// EnvToken supplies a bearer token without a login, for scripted or
// containerized runs where no credentials file exists.
const EnvToken = "MATRX_TOKEN"

// Credentials stores the cloud session details obtained at login.
type Credentials struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Path returns the absolute filesystem location of the credentials file.
func Path() (string, error) {
	return resolvePath()
}

func resolvePath() (string, error) {
	p := config.GetPaths().Credentials
	if p == "" {
		return "", errors.New("credentials: resolve home directory")
	}
	return p, nil
}

// Load returns the stored credentials. If the file does not exist,
// (nil, nil) is returned so callers can treat "not logged in" as a
// normal state rather than an error.
func Load() (*Credentials, error) {
	p, err := resolvePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("credentials: read file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("credentials: decode file: %w", err)
	}

	return &creds, nil
}

// Save persists the given credentials to disk, creating intermediate
// directories as needed. The file is written mode 0600 since it holds
// a bearer token.
func Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("credentials: credentials are nil")
	}

	p, err := resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("credentials: create directory: %w", err)
	}

	creds.UpdatedAt = time.Now().UTC()

	encoded, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode credentials: %w", err)
	}

	if err := os.WriteFile(p, encoded, 0o600); err != nil {
		return fmt.Errorf("credentials: write file: %w", err)
	}

	return nil
}

// Clear deletes the stored credentials. It is not considered an error
// when the file does not exist.
func Clear() error {
	p, err := resolvePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credentials: remove file: %w", err)
	}
	return nil
}

// Token returns the bearer token for engine calls: the MATRX_TOKEN
// override when set, otherwise the stored credential, otherwise "".
// It satisfies the token source contract used by the transport client.
func Token() string {
	if tok := os.Getenv(EnvToken); tok != "" {
		return tok
	}
	creds, err := Load()
	if err != nil || creds == nil {
		return ""
	}
	return creds.Token
}
