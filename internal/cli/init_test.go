package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/postcurator/internal/config"
)

func TestInitAction_CreatesThenSkips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".postcurator")
	useConfigDir(t, dir)

	out, err := captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("initAction: %v", err)
	}
	if !strings.Contains(out, "with 2 config files") {
		t.Errorf("unexpected output:\n%s", out)
	}
	for _, name := range []string{config.DefaultConfigFile, ".env.example"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	out, err = captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("second initAction: %v", err)
	}
	if !strings.Contains(out, "already initialized") {
		t.Errorf("second init should skip, got:\n%s", out)
	}
}

func TestInitAction_KeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	path := filepath.Join(dir, config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := captureStdout(t, func() error { return initAction(nil, nil) }); err != nil {
		t.Fatalf("initAction: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "custom: true\n" {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.DefaultConfigFile), []byte(exampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if !cfg.Sources.NewsAPI.Enabled() {
		t.Error("example should enable the News API source")
	}
	if cfg.Run.BatchSize != config.DefaultBatchSize || cfg.Compose.MaxPostLength != config.DefaultMaxPostLength {
		t.Errorf("example diverges from defaults: batch %d, max %d", cfg.Run.BatchSize, cfg.Compose.MaxPostLength)
	}
	if cfg.Cache.TTL.Duration != config.DefaultCacheTTL {
		t.Errorf("ttl = %v", cfg.Cache.TTL.Duration)
	}
}
