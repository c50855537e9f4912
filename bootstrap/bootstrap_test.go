package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

// A single construction test: the collector registers on the global
// Prometheus registry, so building two Apps in one process would
// collide.
func TestNew_WiresEverything(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ledger.yaml")
	dbPath := filepath.Join(dir, "ledger.db")

	cfg := `
server:
  port: 0
database:
  dsn: ` + dbPath + `
logging:
  level: error
plans:
  - id: free
    name: Free
    default: true
    limits:
      scout: 10
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	app, err := New(cfgPath)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if app.Gate == nil || app.Credits == nil || app.Tokens == nil || app.Webhooks == nil {
		t.Error("services not wired")
	}
	if app.Holder.Get().Plans[0].ID != "free" {
		t.Errorf("plans = %+v", app.Holder.Get().Plans)
	}

	if err := app.Shutdown(); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
