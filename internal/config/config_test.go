package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "analysis:\n  stub: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Alerting.MinScore != 7.0 {
		t.Errorf("min_score = %v, want 7.0", cfg.Alerting.MinScore)
	}
	if cfg.Alerting.MinLiquidityUSD != 10000.0 {
		t.Errorf("min_liquidity_usd = %v, want 10000", cfg.Alerting.MinLiquidityUSD)
	}
	if cfg.Alerting.Cooldown != 60*time.Minute {
		t.Errorf("cooldown = %v, want 60m", cfg.Alerting.Cooldown)
	}
	if cfg.Alerting.HourlyLimit != 20 {
		t.Errorf("hourly_limit = %d, want 20", cfg.Alerting.HourlyLimit)
	}
	if cfg.Dedup.Window != 24*time.Hour {
		t.Errorf("dedup.window = %v, want 24h", cfg.Dedup.Window)
	}
	if cfg.Analysis.MaxConcurrent != 5 {
		t.Errorf("max_concurrent = %d, want 5", cfg.Analysis.MaxConcurrent)
	}
	if cfg.Analysis.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.Analysis.Model)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
analysis:
  stub: true
  cost_ceiling: 50000
  cost_window: 30m
alerting:
  min_score: 8.5
  cooldown: 2h
sources:
  market:
    poll_interval: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.CostCeiling != 50000 {
		t.Errorf("cost_ceiling = %d", cfg.Analysis.CostCeiling)
	}
	if cfg.Analysis.CostWindow != 30*time.Minute {
		t.Errorf("cost_window = %v", cfg.Analysis.CostWindow)
	}
	if cfg.Alerting.MinScore != 8.5 {
		t.Errorf("min_score = %v", cfg.Alerting.MinScore)
	}
	if cfg.Alerting.Cooldown != 2*time.Hour {
		t.Errorf("cooldown = %v", cfg.Alerting.Cooldown)
	}
	if cfg.Sources.Market.PollInterval != 10*time.Second {
		t.Errorf("poll_interval = %v", cfg.Sources.Market.PollInterval)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing api key": "analysis:\n  stub: false\n",
		"bad min score":   "analysis:\n  stub: true\nalerting:\n  min_score: 11\n",
		"zero cooldown":   "analysis:\n  stub: true\nalerting:\n  cooldown: 0s\n",
		"telegram without token": `
analysis:
  stub: true
alerting:
  telegram:
    enabled: true
    chat_id: "123"
`,
		"chain without endpoint": `
analysis:
  stub: true
sources:
  chain:
    enabled: true
`,
	}

	for name, body := range cases {
		path := writeConfig(t, body)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SENTINEL_ALERTING_MIN_SCORE", "9")
	path := writeConfig(t, "analysis:\n  stub: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Alerting.MinScore != 9 {
		t.Errorf("min_score = %v, want 9 from env", cfg.Alerting.MinScore)
	}
}
