package config

import "testing"

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("LIVE_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without LIVE_API_KEY")
	}
}

func TestPanelPortForms(t *testing.T) {
	t.Setenv("LIVE_API_KEY", "k")

	t.Setenv("PANEL_PORT", "9100")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Panel.Addr != ":9100" {
		t.Fatalf("bare port should gain a colon, got %q", cfg.Panel.Addr)
	}

	t.Setenv("PANEL_PORT", "127.0.0.1:9200")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Panel.Addr != "127.0.0.1:9200" {
		t.Fatalf("full addr should pass through, got %q", cfg.Panel.Addr)
	}
}

func TestToolsEnabledNeedsModelAndKey(t *testing.T) {
	cases := []struct {
		name string
		cfg  ToolsConfig
		want bool
	}{
		{"empty", ToolsConfig{}, false},
		{"model only", ToolsConfig{Model: "m"}, false},
		{"api key", ToolsConfig{Model: "m", APIKey: "k"}, true},
		{"ak/sk", ToolsConfig{Model: "m", AccessKey: "a", SecretKey: "s"}, true},
		{"ak without sk", ToolsConfig{Model: "m", AccessKey: "a"}, false},
	}
	for _, tc := range cases {
		if got := tc.cfg.Enabled(); got != tc.want {
			t.Errorf("%s: Enabled() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
