package config

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvHome overrides the default home location (~/.matrx).
const EnvHome = "MATRX_HOME"

// Paths contains all on-disk locations used by the manager.
type Paths struct {
	Home        string // Matrx home directory
	SettingsDB  string // SQLite settings store path
	Credentials string // Cloud credentials file path
	EngineLock  string // Engine lock file path (pid of a managed engine)
	Logs        string // Logs directory
	EngineLog   string // Captured stdout/stderr of a managed engine
	Autostart   string // Autostart marker file
	TempDir     string // Temporary files directory
}

// GetPaths returns the on-disk layout rooted at the Matrx home.
func GetPaths() Paths {
	home := GetMatrxHome()

	return Paths{
		Home:        home,
		SettingsDB:  filepath.Join(home, "settings.db"),
		Credentials: filepath.Join(home, "credentials.json"),
		EngineLock:  filepath.Join(home, "engine.lock"),
		Logs:        filepath.Join(home, "logs"),
		EngineLog:   filepath.Join(home, "logs", "engine.log"),
		Autostart:   filepath.Join(home, "autostart"),
		TempDir:     filepath.Join(home, "tmp"),
	}
}

// GetMatrxHome returns the Matrx home directory: MATRX_HOME when set,
// otherwise ~/.matrx.
func GetMatrxHome() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return ExpandPath(dir)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".matrx")
}

// ExpandPath resolves a leading "~" to the user's home directory. Anything
// else, including "~user" forms, comes back unchanged.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// EnsureDirs creates the home directory tree, returning the resolved layout.
func EnsureDirs() (Paths, error) {
	paths := GetPaths()
	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
