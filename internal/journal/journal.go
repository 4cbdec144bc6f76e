// Package journal implements the append-only, day-partitioned event log of
// spec section 4.6. Writes are appended and fsynced, never rewritten,
// grounded on the temp-file+fsync+rename atomic-write pattern the rest of
// this repository uses for whole-file writes (internal/util), adapted here
// to append-mode durability since a journal segment is never replaced.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the event kinds carried in the journal (spec section 3).
type Kind string

const (
	KindStateTransition Kind = "state_transition"
	KindSpawn           Kind = "spawn"
	KindExit            Kind = "exit"
	KindVerifyOutcome   Kind = "verify_outcome"
	KindSubmitOutcome   Kind = "submit_outcome"
	KindMergeDetected   Kind = "merge_detected"
	KindClassification  Kind = "classification"
	KindEscalation      Kind = "escalation"
	KindReview          Kind = "review"
)

// Event is one append-only journal record.
type Event struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Ts        time.Time       `json:"ts"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload_json"`
}

// NewEvent constructs an Event with a fresh id, marshaling payload to JSON.
func NewEvent(taskID string, ts time.Time, kind Kind, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal journal payload: %w", err)
	}
	return Event{
		ID:      uuid.NewString(),
		TaskID:  taskID,
		Ts:      ts,
		Kind:    kind,
		Payload: raw,
	}, nil
}

// Journal appends events to day-partitioned files under root/events.
type Journal struct {
	root string

	mu      sync.Mutex
	day     string
	file    *os.File
	writer  *bufio.Writer
}

// Open prepares a Journal rooted at root/events. The directory is created
// if missing; no file is opened until the first Append picks the day.
func Open(root string) (*Journal, error) {
	dir := filepath.Join(root, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event journal dir: %w", err)
	}
	return &Journal{root: root}, nil
}

func (j *Journal) segmentPath(day string) string {
	return filepath.Join(j.root, "events", day+".jsonl")
}

// Append writes ev to the segment for ev.Ts's UTC date, fsyncing before
// returning. This is the journal half of the store's apply(event) ->
// snapshot' primitive (internal/store); callers must call this before
// updating the snapshot, never after (design note, spec section 9).
func (j *Journal) Append(ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := ev.Ts.UTC().Format("2006-01-02")
	if err := j.ensureSegment(day); err != nil {
		return err
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}
	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("write journal event: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write journal newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal writer: %w", err)
	}
	return j.file.Sync()
}

func (j *Journal) ensureSegment(day string) error {
	if j.day == day && j.file != nil {
		return nil
	}
	if j.file != nil {
		_ = j.writer.Flush()
		_ = j.file.Close()
	}
	f, err := os.OpenFile(j.segmentPath(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal segment %s: %w", day, err)
	}
	j.file = f
	j.writer = bufio.NewWriter(f)
	j.day = day
	return nil
}

// Close flushes and closes the currently open segment, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Tail returns the last event recorded across all segments in
// chronological order (by filename, then in-file order), or ok=false if
// the journal is empty. Used at boot for snapshot reconciliation.
func (j *Journal) Tail() (ev Event, ok bool, err error) {
	entries, err := os.ReadDir(filepath.Join(j.root, "events"))
	if err != nil {
		if os.IsNotExist(err) {
			return Event{}, false, nil
		}
		return Event{}, false, fmt.Errorf("list journal segments: %w", err)
	}

	var segments []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
			segments = append(segments, e.Name())
		}
	}
	if len(segments) == 0 {
		return Event{}, false, nil
	}
	sortStrings(segments)

	last := segments[len(segments)-1]
	events, err := j.ReadSegment(trimExt(last))
	if err != nil {
		return Event{}, false, err
	}
	if len(events) == 0 {
		return Event{}, false, nil
	}
	return events[len(events)-1], true, nil
}

// ReadSegment loads every event from the segment named day
// ("2006-01-02"), in file order. Used for full replay (law L1).
func (j *Journal) ReadSegment(day string) ([]Event, error) {
	f, err := os.Open(j.segmentPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal segment %s: %w", day, err)
	}
	defer f.Close()

	var events []Event
	scanner := newLineScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode journal line in %s: %w", day, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal segment %s: %w", day, err)
	}
	return events, nil
}

// EventsForTask scans every segment in order and returns the events
// belonging to taskID, oldest first. Used to assemble a task's deep
// recovery context (spec section 4.4) from its spawn/exit/classification
// history.
func (j *Journal) EventsForTask(taskID string) ([]Event, error) {
	days, err := j.AllSegments()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, day := range days {
		events, err := j.ReadSegment(day)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.TaskID == taskID {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// AllSegments lists every day-partition name present, oldest first.
func (j *Journal) AllSegments() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(j.root, "events"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list journal segments: %w", err)
	}
	var days []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
			days = append(days, trimExt(e.Name()))
		}
	}
	sortStrings(days)
	return days, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
