package state

import (
	"fmt"
	"testing"
	"time"
)

func TestEventLogSeeded(t *testing.T) {
	l := NewEventLog(time.Now().UTC())
	if l.Len() != 2 {
		t.Fatalf("seeded log has %d entries, want 2", l.Len())
	}
	entries := l.Entries()
	if entries[0].RecordID != 1 || entries[1].RecordID != 2 {
		t.Fatalf("unexpected record IDs: %d, %d", entries[0].RecordID, entries[1].RecordID)
	}
}

func TestEventLogEviction(t *testing.T) {
	l := NewEventLog(time.Now().UTC())
	for i := 0; i < MaxEventEntries+10; i++ {
		l.Append(SeverityOK, fmt.Sprintf("event %d", i), "test", time.Now().UTC())
	}
	if l.Len() != MaxEventEntries {
		t.Fatalf("log holds %d entries, want %d", l.Len(), MaxEventEntries)
	}
	entries := l.Entries()
	// Oldest entries were evicted; record IDs keep increasing.
	if entries[0].RecordID <= 2 {
		t.Fatalf("oldest entry %d should have been evicted", entries[0].RecordID)
	}
	if last := entries[len(entries)-1]; last.RecordID < entries[0].RecordID {
		t.Fatalf("entries out of order: first %d last %d", entries[0].RecordID, last.RecordID)
	}
}

func TestEventLogClear(t *testing.T) {
	l := NewEventLog(time.Now().UTC())
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("log not empty after clear: %d", l.Len())
	}
	// IDs continue after a clear rather than restarting.
	id := l.Append(SeverityWarning, "post-clear", "test", time.Now().UTC())
	if id != 3 {
		t.Fatalf("record ID after clear = %d, want 3", id)
	}
}

func TestEventLogLookup(t *testing.T) {
	l := NewEventLog(time.Now().UTC())
	if _, ok := l.Entry(1); !ok {
		t.Fatal("entry 1 should exist")
	}
	if _, ok := l.Entry(999); ok {
		t.Fatal("entry 999 should not exist")
	}
}

func TestEventStorePerVM(t *testing.T) {
	s := NewEventStore([]string{"a", "b"}, time.Now().UTC())
	s.Log("a").Append(SeverityCritical, "only on a", "test", time.Now().UTC())

	if s.Log("a").Len() == s.Log("b").Len() {
		t.Fatal("appending to a must not affect b")
	}
	if s.Log("missing") != nil {
		t.Fatal("unknown VM log should be nil")
	}
}
