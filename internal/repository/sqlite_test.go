package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/agentflow/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreRunsAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	run := &domain.Run{
		RunID:     "r1",
		RunKey:    "APP-2001",
		Mode:      domain.ModeSimulated,
		Status:    domain.ControllerRunning,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	errPayload := json.RawMessage(`{"error":"boom"}`)
	if err := store.UpdateRunCompleted(ctx, "r1", domain.ControllerFailed, errPayload); err != nil {
		t.Fatalf("UpdateRunCompleted failed: %v", err)
	}

	gotRun, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if gotRun == nil || gotRun.Status != domain.ControllerFailed {
		t.Fatalf("unexpected run: %+v", gotRun)
	}
	if gotRun.EndedAt == nil {
		t.Fatalf("expected ended_at to be set")
	}
	if string(gotRun.Error) != `{"error":"boom"}` {
		t.Fatalf("unexpected error payload: %s", gotRun.Error)
	}

	base := time.Now().UnixMilli()
	events := []domain.Event{
		{EventID: "e1", RunID: "r1", Ts: base, Type: domain.EventTypeRunStarted, Payload: json.RawMessage(`{"run_key":"APP-2001"}`)},
		{EventID: "e2", RunID: "r1", Ts: base, Type: domain.EventTypeStageStarted},
		{EventID: "e3", RunID: "r1", Ts: base + 5, Type: domain.EventTypeStageCompleted},
	}
	for i := range events {
		if err := store.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "r1", 0, nil, 10)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, id := range []string{"e1", "e2", "e3"} {
		if got[i].EventID != id {
			t.Fatalf("event %d: expected %s, got %s", i, id, got[i].EventID)
		}
	}
	if got[1].Payload != nil {
		t.Fatalf("expected empty payload, got %s", got[1].Payload)
	}

	got, err = store.GetEvents(ctx, "r1", base, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents after ts failed: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "e3" {
		t.Fatalf("unexpected events after ts: %+v", got)
	}

	got, err = store.GetEvents(ctx, "r1", 0, []string{string(domain.EventTypeStageStarted), string(domain.EventTypeStageCompleted)}, 1)
	if err != nil {
		t.Fatalf("GetEvents by type failed: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "e2" {
		t.Fatalf("unexpected filtered events: %+v", got)
	}
}

func TestSQLiteStoreGetRunMissing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	run, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %+v", run)
	}
}

func TestSQLiteStoreEventRequiresRun(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.CreateEvent(context.Background(), &domain.Event{EventID: "e1", RunID: "ghost", Ts: 1, Type: domain.EventTypeRunStarted})
	if err == nil {
		t.Fatalf("expected foreign key error")
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Now().Add(-time.Minute)
	for i, id := range []string{"r1", "r2", "r3"} {
		run := &domain.Run{
			RunID:     id,
			RunKey:    "CASE-1001",
			Mode:      domain.ModeSimulated,
			Status:    domain.ControllerRunning,
			StartedAt: start.Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}
	other := &domain.Run{RunID: "x1", RunKey: "OTHER", Mode: domain.ModeStream, Status: domain.ControllerRunning, StartedAt: time.Now()}
	if err := store.CreateRun(ctx, other); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	runs, err := store.ListRuns(ctx, "CASE-1001", 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "r3" || runs[1].RunID != "r2" {
		t.Fatalf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
	}
}
