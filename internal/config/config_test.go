package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTemp(t, "web:\n  listen: \":9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Receivers) != 2 {
		t.Fatalf("receivers=%d want 2 defaults", len(cfg.Receivers))
	}
	if cfg.Receivers[0].Addr != "192.168.1.1:2000" {
		t.Fatalf("receiver[0].addr=%q want 192.168.1.1:2000", cfg.Receivers[0].Addr)
	}
	if cfg.Receivers[0].Priority <= cfg.Receivers[1].Priority {
		t.Fatalf("primary receiver must outrank secondary")
	}
	if cfg.Traffic.HeartbeatTimeout != 5*time.Second {
		t.Fatalf("heartbeat_timeout=%s want 5s", cfg.Traffic.HeartbeatTimeout)
	}
	if cfg.Traffic.WarningExpiry != 3*time.Second {
		t.Fatalf("warning_expiry=%s want 3s", cfg.Traffic.WarningExpiry)
	}
	if cfg.Web.Listen != ":9090" {
		t.Fatalf("web.listen=%q want :9090", cfg.Web.Listen)
	}
	if cfg.Weather.METARExpiry != 95*time.Minute {
		t.Fatalf("metar_expiry=%s want 95m", cfg.Weather.METARExpiry)
	}
}

func TestLoad_ExplicitReceivers(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
receivers:
  - id: flarm
    addr: 10.0.0.5:2000
    priority: 7
traffic:
  heartbeat_timeout: 12s
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Receivers) != 1 || cfg.Receivers[0].ID != "flarm" || cfg.Receivers[0].Priority != 7 {
		t.Fatalf("receivers=%+v", cfg.Receivers)
	}
	if cfg.Traffic.HeartbeatTimeout != 12*time.Second {
		t.Fatalf("heartbeat_timeout=%s want 12s", cfg.Traffic.HeartbeatTimeout)
	}
}

func TestDefaultAndValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "receivers:\n  - addr: 1.2.3.4:2000\n"},
		{"missing addr", "receivers:\n  - id: a\n"},
		{"duplicate id", "receivers:\n  - id: a\n    addr: 1.2.3.4:2000\n  - id: a\n    addr: 5.6.7.8:2000\n"},
		{"backoff max below base", "traffic:\n  reconnect_delay: 10s\n  reconnect_delay_max: 1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Fatalf("no error for %s", tt.name)
			}
		})
	}
}
