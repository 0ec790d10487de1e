package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStageCode(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	files := map[string]string{
		"flake.nix":        "{ }",
		"Cargo.toml":       "[package]\nname = \"app\"\n",
		"src/main.rs":      "fn main() {}",
		".git/HEAD":        "ref: refs/heads/main",
		"target/debug/app": "binary",
		".direnv/rc":       "cached",
	}
	for name, content := range files {
		path := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Typical dangling build output link.
	if err := os.Symlink("/nix/store/nonexistent", filepath.Join(src, "result")); err != nil {
		t.Fatal(err)
	}

	if err := stageCode(discardLogger(), src, dst); err != nil {
		t.Fatalf("stageCode: %v", err)
	}

	for _, kept := range []string{"flake.nix", "Cargo.toml", "src/main.rs", ".git/HEAD"} {
		if _, err := os.Stat(filepath.Join(dst, kept)); err != nil {
			t.Errorf("expected %s to be staged: %v", kept, err)
		}
	}
	for _, skipped := range []string{"target", ".direnv", "result"} {
		if _, err := os.Stat(filepath.Join(dst, skipped)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be skipped, stat err: %v", skipped, err)
		}
	}
}

func TestReadReport(t *testing.T) {
	t.Run("round trips step results", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ReportFileName)
		data := `[{"step":"build","passed":true,"duration":1000000,"output":"ok"},{"step":"run","passed":false}]`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}

		results, err := readReport(path)
		if err != nil {
			t.Fatalf("readReport: %v", err)
		}

		expected := []StepResult{
			{Step: "build", Passed: true, Duration: 1000000, Output: "ok"},
			{Step: "run", Passed: false},
		}
		if diff := cmp.Diff(expected, results); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("missing report is an error", func(t *testing.T) {
		if _, err := readReport(filepath.Join(t.TempDir(), ReportFileName)); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("malformed report is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ReportFileName)
		if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := readReport(path); err == nil {
			t.Error("expected error")
		}
	})
}
