package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/transcript"
)

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.ArchiveConfig{Ephemeral: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendTranscript(ctx, "m1", "en-US", transcript.Event{UserID: "u1", Text: "hi"}); err != nil {
		t.Fatalf("append should be a no-op: %v", err)
	}
	entries, err := s.ListMeetingTranscripts(ctx, "m1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries != nil {
		t.Fatalf("ephemeral store returned entries: %v", entries)
	}
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := config.ArchiveConfig{Path: filepath.Join(t.TempDir(), "transcripts.db")}
	s, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.StartMeeting(ctx, "meeting-1"); err != nil {
		t.Fatalf("start meeting: %v", err)
	}
	if err := s.StartMeeting(ctx, "meeting-1"); err != nil {
		t.Fatalf("start meeting twice: %v", err)
	}

	conf := 0.92
	ev := transcript.Event{
		UserID:     "u1",
		Text:       "hello there",
		Confidence: &conf,
		Start:      1.0,
		End:        2.5,
		Final:      true,
	}
	if err := s.AppendTranscript(ctx, "meeting-1", "en-US", ev); err != nil {
		t.Fatalf("append transcript: %v", err)
	}
	if err := s.AppendTranscript(ctx, "meeting-1", "en-US", transcript.Event{UserID: "u2", Text: "second"}); err != nil {
		t.Fatalf("append transcript: %v", err)
	}

	entries, err := s.ListMeetingTranscripts(ctx, "meeting-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	got := entries[0]
	if got.Text != "hello there" || got.Locale != "en-US" || got.UserID != "u1" {
		t.Fatalf("entry = %+v", got)
	}
	if got.Confidence == nil || *got.Confidence != 0.92 {
		t.Fatalf("confidence = %v", got.Confidence)
	}
	if got.Start != 1.0 || got.End != 2.5 {
		t.Fatalf("start/end = %v/%v", got.Start, got.End)
	}
	if entries[1].Confidence != nil {
		t.Fatalf("expected nil confidence, got %v", *entries[1].Confidence)
	}
}

func TestPruneByRetentionDays(t *testing.T) {
	ctx := context.Background()
	cfg := config.ArchiveConfig{Path: filepath.Join(t.TempDir(), "transcripts.db"), RetentionDays: 1}
	s, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.StartMeeting(ctx, "old-meeting"); err != nil {
		t.Fatalf("start meeting: %v", err)
	}
	if err := s.AppendTranscript(ctx, "old-meeting", "en-US", transcript.Event{UserID: "u1", Text: "stale"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := s.ListMeetingTranscripts(ctx, "old-meeting", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected old meeting pruned, got %d entries", len(entries))
	}
}
