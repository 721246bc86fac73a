//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func indexOf(s, sub string) int { return strings.Index(s, sub) }

// writeConfig drops a sqlite-backed config into a temp dir and returns
// its path. Each test gets its own database file.
func writeConfig(t *testing.T, startingCash float64) string {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "league.db")
	cfgPath := filepath.Join(dir, "league.yaml")

	cfg := fmt.Sprintf(`engine:
  starting_cash: %v
  commission: 0
  lock_timeout: 2s
ledger:
  driver: sqlite
  path: %s
score:
  milestones: []
  refresh_interval: 30s
`, startingCash, dbPath)

	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}
