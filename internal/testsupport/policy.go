package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"autoposter/internal/config"
)

// WriteClientPolicy writes a client policy file named name (client.yaml or
// client.json) under the configured clients directory and returns its path.
func WriteClientPolicy(t testing.TB, cfg *config.Config, client, name, body string) string {
	t.Helper()

	dir := filepath.Join(cfg.Paths.ClientsDir, client)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir client dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write client policy: %v", err)
	}
	return path
}
