package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/tonenotes/internal/config"
	"github.com/samsaffron/tonenotes/internal/tone"
	"gopkg.in/yaml.v3"
)

func TestSetAndGetYAMLValue(t *testing.T) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte("provider: anthropic\nrewrite:\n  debounce: 1s\n"), &root); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if err := setYAMLValue(&root, []string{"rewrite", "debounce"}, "250ms"); err != nil {
		t.Fatalf("set existing: %v", err)
	}
	if err := setYAMLValue(&root, []string{"tones", "top", "title"}, "Pirate"); err != nil {
		t.Fatalf("set new path: %v", err)
	}

	for path, want := range map[string]string{
		"provider":         "anthropic",
		"rewrite.debounce": "250ms",
		"tones.top.title":  "Pirate",
	} {
		got, err := getYAMLValue(&root, strings.Split(path, "."))
		if err != nil || got != want {
			t.Errorf("get %s = %q, %v, want %q", path, got, err, want)
		}
	}

	if _, err := getYAMLValue(&root, []string{"rewrite"}); err == nil {
		t.Error("expected error reading a mapping as a scalar")
	}
	if _, err := getYAMLValue(&root, []string{"serve", "port"}); err == nil {
		t.Error("expected error for missing key")
	}

	data, err := yaml.Marshal(&root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	cfg, err := loadConfigBytes(data)
	if err != nil {
		t.Fatalf("loadConfigBytes: %v", err)
	}
	if cfg.Rewrite.Debounce != 250*time.Millisecond || cfg.Tones.Top.Title != "Pirate" {
		t.Fatalf("loaded config = %+v", cfg)
	}
}

func TestWriteConfigYAMLHidesSecrets(t *testing.T) {
	cfg := &config.Config{Provider: "anthropic", Tones: tone.Defaults()}
	cfg.Anthropic.APIKey = "sk-ant-very-secret"

	var buf bytes.Buffer
	if err := writeConfigYAML(&buf, cfg); err != nil {
		t.Fatalf("writeConfigYAML: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "very-secret") {
		t.Fatalf("config output leaks the API key:\n%s", out)
	}
	if !strings.Contains(out, "[set]") {
		t.Fatalf("missing credential status:\n%s", out)
	}
	if !strings.Contains(out, "[NOT SET - export OPENAI_API_KEY]") {
		t.Fatalf("missing unset credential hint:\n%s", out)
	}
}

func TestCredentialStatus(t *testing.T) {
	tests := []struct {
		key, env, want string
	}{
		{"abc", "X_KEY", "[set]"},
		{"", "", "[not set]"},
		{"", "X_KEY", "[NOT SET - export X_KEY]"},
	}
	for _, tt := range tests {
		if got := credentialStatus(tt.key, tt.env); got != tt.want {
			t.Errorf("credentialStatus(%q, %q) = %q, want %q", tt.key, tt.env, got, tt.want)
		}
	}
}
