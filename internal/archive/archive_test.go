package archive

import (
	"context"
	"strings"
	"testing"

	"taskmesh/internal/objectstore"
)

func TestArchive_PutTranscriptAndGet(t *testing.T) {
	ctx := context.Background()
	a := New(objectstore.NewMemoryStore())

	content := []byte(`{"steps":["plan","execute","verify"]}`)
	key, err := a.PutTranscript(ctx, "corr-123", content)
	if err != nil {
		t.Fatalf("PutTranscript: %v", err)
	}
	if !strings.HasPrefix(key, "verbose_steps/corr-123") {
		t.Fatalf("unexpected key %q", key)
	}

	got, err := a.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestArchive_PutBoardRationaleAndGet(t *testing.T) {
	ctx := context.Background()
	a := New(objectstore.NewMemoryStore())

	rationale := []byte("escalated because confidence fell below threshold twice in a row")
	key, err := a.PutBoardRationale(ctx, "decision-42", rationale)
	if err != nil {
		t.Fatalf("PutBoardRationale: %v", err)
	}
	if !strings.HasPrefix(key, "board_rationale/decision-42") {
		t.Fatalf("unexpected key %q", key)
	}

	got, err := a.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(rationale) {
		t.Fatalf("got %q, want %q", got, rationale)
	}
}

func TestArchive_GetMissingKeyErrors(t *testing.T) {
	ctx := context.Background()
	a := New(objectstore.NewMemoryStore())

	if _, err := a.Get(ctx, "verbose_steps/missing.json"); err == nil {
		t.Fatal("expected error for missing archived blob")
	}
}

func TestNeedsArchive(t *testing.T) {
	short := strings.Repeat("x", InlineMaxChars)
	long := strings.Repeat("x", InlineMaxChars+1)

	if NeedsArchive(short) {
		t.Fatal("content at the budget should not need archiving")
	}
	if !NeedsArchive(long) {
		t.Fatal("content past the budget should need archiving")
	}
}
