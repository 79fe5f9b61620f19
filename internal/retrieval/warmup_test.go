package retrieval

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadQueries_ParsesYAMLList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warmup.yaml")
	content := "queries:\n  - \"deploy a canary release\"\n  - \"\"\n  - \"summarize open incidents\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := readQueries(path)
	if err != nil {
		t.Fatalf("readQueries: %v", err)
	}
	want := []string{"deploy a canary release", "summarize open incidents"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("query %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadQueries_MissingFile(t *testing.T) {
	if _, err := readQueries(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWarmup_EmptyPathNoop(t *testing.T) {
	// Must not panic or block when no warmup path is configured.
	Warmup(nil, nil, "")
}
