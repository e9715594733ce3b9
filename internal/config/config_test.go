package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	t.Setenv("TRIAGE_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Analysis.PreferLocal || cfg.Analysis.BatchSize != 50 || cfg.Analysis.StalenessDays != 30 {
		t.Errorf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.CachePath() != filepath.Join(dir, "cache.db") {
		t.Errorf("CachePath = %q", cfg.CachePath())
	}
}

func TestLoadJSONWithComments(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{
  // two inboxes
  "accounts": [
    {"name": "work", "token_file": "/tmp/work.json"},
    {"name": "home", "token_file": "/tmp/home.json"},
  ],
  "analysis": {"prefer_local": false, "batch_size": 25},
  "tracker": {"list": "Inbox Tasks"},
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []AccountConfig{{Name: "work", TokenFile: "/tmp/work.json"}, {Name: "home", TokenFile: "/tmp/home.json"}}
	if diff := cmp.Diff(want, cfg.Accounts); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}
	if cfg.Analysis.PreferLocal || cfg.Analysis.BatchSize != 25 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Analysis.CLI.Command != "claude" || cfg.Tracker.Command != "reminders" {
		t.Errorf("defaults lost: cli=%q tracker=%q", cfg.Analysis.CLI.Command, cfg.Tracker.Command)
	}
	if cfg.Tracker.List != "Inbox Tasks" {
		t.Errorf("Tracker.List = %q", cfg.Tracker.List)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"accounts": [`), 0o600)

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestEnvKeysFillOnlyEmpty(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("CLAUDE_API_KEY", "from-env")
	t.Setenv("GOOGLE_API_KEY", "g-env")

	cfg := DefaultConfig()
	cfg.Models.OpenAI.APIKey = "from-file"
	t.Setenv("OPENAI_API_KEY", "ignored")
	cfg.AutoPopulateFromEnv()

	if cfg.Models.Claude.APIKey != "from-env" {
		t.Errorf("Claude key = %q", cfg.Models.Claude.APIKey)
	}
	if cfg.Models.OpenAI.APIKey != "from-file" {
		t.Errorf("configured key must win, got %q", cfg.Models.OpenAI.APIKey)
	}
	if cfg.Models.Gemini.APIKey != "g-env" {
		t.Errorf("Gemini key = %q", cfg.Models.Gemini.APIKey)
	}
	if diff := cmp.Diff([]string{"claude"}, cfg.GetEnabledModels()); diff != "" {
		t.Errorf("enabled models mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeysFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.sh")
	os.WriteFile(path, []byte("export ANTHROPIC_API_KEY=sk-ant\nOPENAI_API_KEY=\"sk-oa\"\n"), 0o600)

	cfg := DefaultConfig()
	if err := cfg.LoadKeysFromFile(path); err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Claude.APIKey != "sk-ant" || cfg.Models.OpenAI.APIKey != "sk-oa" {
		t.Errorf("keys = %q / %q", cfg.Models.Claude.APIKey, cfg.Models.OpenAI.APIKey)
	}
}

func TestLoadReadsKeysFile(t *testing.T) {
	clearKeyEnv(t)
	dir := t.TempDir()
	keys := filepath.Join(dir, "keys.sh")
	os.WriteFile(keys, []byte("export GEMINI_API_KEY=g-key\nANTHROPIC_API_KEY=from-file\n"), 0o600)
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{
		"keys_file": "`+keys+`",
		"models": {"claude": {"api_key": "from-config"}},
	}`), 0o600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Gemini.APIKey != "g-key" {
		t.Errorf("gemini key = %q, want g-key", cfg.Models.Gemini.APIKey)
	}
	if cfg.Models.Claude.APIKey != "from-config" {
		t.Errorf("config key must win over keys file, got %q", cfg.Models.Claude.APIKey)
	}

	os.WriteFile(path, []byte(`{"keys_file": "`+filepath.Join(dir, "missing.sh")+`"}`), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("missing keys file should fail Load")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Dir(path)
	cfg.Accounts = []AccountConfig{{Name: "work", TokenFile: "/tmp/t.json"}}
	cfg.Models.Claude.APIKey = "secret"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestStaleness(t *testing.T) {
	if got := (AnalysisConfig{StalenessDays: 30}).Staleness().Hours(); got != 720 {
		t.Errorf("Staleness = %vh, want 720h", got)
	}
	if got := (AnalysisConfig{}).Staleness(); got != 0 {
		t.Errorf("zero days should mean default, got %v", got)
	}
}
