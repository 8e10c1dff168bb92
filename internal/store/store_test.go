package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/proctorhub/backend/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev := event.Event{
		Type:        event.KindObjectDetected,
		Detail:      "cell phone",
		Ts:          ts,
		SessionID:   "exam-42",
		CandidateID: "c-9",
	}
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.QueryBySession(ctx, "exam-42")
	if err != nil {
		t.Fatalf("QueryBySession: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != ev.Type || got[0].Detail != ev.Detail || got[0].CandidateID != ev.CandidateID {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if !got[0].Ts.Equal(ts) {
		t.Errorf("ts = %v, want %v", got[0].Ts, ts)
	}
}

func TestQueryOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of timestamp order; same-timestamp rows keep arrival order.
	inserts := []event.Event{
		{Type: "E2", SessionID: "exam-42", Ts: base.Add(2 * time.Second)},
		{Type: "E0a", SessionID: "exam-42", Ts: base},
		{Type: "E0b", SessionID: "exam-42", Ts: base},
		{Type: "E1", SessionID: "exam-42", Ts: base.Add(time.Second)},
	}
	for _, ev := range inserts {
		if err := s.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.Type, err)
		}
	}

	got, err := s.QueryBySession(ctx, "exam-42")
	if err != nil {
		t.Fatalf("QueryBySession: %v", err)
	}

	want := []event.Kind{"E0a", "E0b", "E1", "E2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, kind := range want {
		if got[i].Type != kind {
			t.Errorf("got[%d].Type = %q, want %q", i, got[i].Type, kind)
		}
	}
}

func TestQuerySessionIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	if err := s.Append(ctx, event.Event{Type: "A", SessionID: "exam-42", Ts: ts}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, event.Event{Type: "B", SessionID: "exam-7", Ts: ts}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.QueryBySession(ctx, "exam-7")
	if err != nil {
		t.Fatalf("QueryBySession: %v", err)
	}
	if len(got) != 1 || got[0].Type != "B" {
		t.Errorf("exam-7 events = %+v, want just B", got)
	}
}

func TestQueryUnknownSessionEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.QueryBySession(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("QueryBySession: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Append(ctx, event.Event{Type: "A", Ts: time.Now()})
	if !errors.Is(err, event.ErrMissingSession) {
		t.Errorf("missing session: err = %v, want ErrMissingSession", err)
	}

	if err := s.Append(ctx, event.Event{Type: "A", SessionID: "exam-42"}); err == nil {
		t.Error("zero timestamp accepted, want error")
	}
}

func TestDuplicatesKeptDistinct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ev := event.Event{Type: event.KindNoFace, SessionID: "exam-42", Ts: time.Now().UTC()}

	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.QueryBySession(ctx, "exam-42")
	if err != nil {
		t.Fatalf("QueryBySession: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 rows for duplicate events, got %d", len(got))
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("expected error for empty path")
	}
}
