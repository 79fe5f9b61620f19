// Package archive offloads oversized verbose-step transcripts and board
// escalation rationale to object storage instead of the Postgres JSONB
// columns that hold everything else, so a single pathological task
// output never bloats the hot-path tables. Grounded on
// internal/objectstore/s3.go, wired onto this spec's Conductor/Executor
// artifacts.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"taskmesh/internal/objectstore"
)

// InlineMaxChars is the cutoff past which a blob is archived to object
// storage instead of kept inline in a Postgres column, matching the
// character budget model.MaxContentChars already enforces on knowledge
// content.
const InlineMaxChars = 8000

// Archive stores oversized transcripts (verbose step logs, board
// rationale) keyed by correlation id, and retrieves them back for the
// verbose_steps / board-consult surfaces.
type Archive struct {
	store objectstore.ObjectStore
}

func New(store objectstore.ObjectStore) *Archive {
	return &Archive{store: store}
}

// NeedsArchive reports whether content exceeds the inline budget.
func NeedsArchive(content string) bool {
	return len(content) > InlineMaxChars
}

// PutTranscript archives a correlation's verbose-step transcript and
// returns the key to store inline in its place.
func (a *Archive) PutTranscript(ctx context.Context, correlationID string, content []byte) (string, error) {
	key := fmt.Sprintf("verbose_steps/%s.json", correlationID)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(content), objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	return key, nil
}

// PutBoardRationale archives an oversized board decision's rationale.
func (a *Archive) PutBoardRationale(ctx context.Context, decisionID string, rationale []byte) (string, error) {
	key := fmt.Sprintf("board_rationale/%s.txt", decisionID)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(rationale), objectstore.PutOptions{ContentType: "text/plain"}); err != nil {
		return "", fmt.Errorf("archive board rationale: %w", err)
	}
	return key, nil
}

// Get fetches a previously archived blob by key.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	r, _, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch archived blob: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
