package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
)

// ConfigForTests loads the .env.test file at the project root, when there is
// one, and returns the resulting configuration. Integration tests are
// skipped in -short mode and when no SurrealDB endpoint is configured.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	if root, ok := projectRoot(); ok {
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			for key, value := range env {
				t.Setenv(key, value)
			}
		}
	}

	if os.Getenv("SURREAL_URL") == "" {
		t.Skip("SURREAL_URL not set, skipping integration test")
	}
	setDefault(t, "SURREAL_NS", "test")
	setDefault(t, "SURREAL_DB", "roomchat_test")
	setDefault(t, "JWT_SECRET", "test-secret")

	logging.New()

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("invalid test configuration: %v", err)
	}
	return cfg
}

func setDefault(t *testing.T, key, value string) {
	if os.Getenv(key) == "" {
		t.Setenv(key, value)
	}
}

// projectRoot walks up from the working directory to the directory holding go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
