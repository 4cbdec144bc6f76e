package journal

import (
	"testing"
	"time"
)

func TestAppendAndReadSegment(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev1, err := NewEvent("task-1", ts, KindStateTransition, map[string]string{"from": "CHATTING", "to": "READY"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	ev2, err := NewEvent("task-1", ts.Add(time.Minute), KindSubmitOutcome, map[string]string{"result": "ok"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	if err := j.Append(ev1); err != nil {
		t.Fatalf("Append ev1: %v", err)
	}
	if err := j.Append(ev2); err != nil {
		t.Fatalf("Append ev2: %v", err)
	}

	events, err := j.ReadSegment("2026-03-01")
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != ev1.ID || events[1].ID != ev2.ID {
		t.Errorf("events out of order or mismatched ids")
	}

	tail, ok, err := j.Tail()
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !ok {
		t.Fatalf("expected Tail to find an event")
	}
	if tail.ID != ev2.ID {
		t.Errorf("expected tail to be ev2, got %s", tail.ID)
	}
}

func TestDayPartitioning(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	ev1, _ := NewEvent("t", day1, KindSpawn, nil)
	ev2, _ := NewEvent("t", day2, KindSpawn, nil)
	if err := j.Append(ev1); err != nil {
		t.Fatalf("Append day1: %v", err)
	}
	if err := j.Append(ev2); err != nil {
		t.Fatalf("Append day2: %v", err)
	}

	segments, err := j.AllSegments()
	if err != nil {
		t.Fatalf("AllSegments: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %v", segments)
	}
	if segments[0] != "2026-03-01" || segments[1] != "2026-03-02" {
		t.Errorf("unexpected segment names: %v", segments)
	}
}
