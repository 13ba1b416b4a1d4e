package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fastEngine() EngineOptions {
	return EngineOptions{
		Tick:       2 * time.Millisecond,
		StartDelay: time.Millisecond,
		RunDelay:   time.Millisecond,
		Retention:  time.Hour,
	}
}

func waitForTerminal(t *testing.T, r *TaskRegistry, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := r.Get(id)
		if !ok {
			t.Fatalf("task %s disappeared", id)
		}
		if snap.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return Snapshot{}
}

func TestRegistryPrePopulatedHistory(t *testing.T) {
	r := NewTaskRegistry(fastEngine())
	tasks := r.List()
	if len(tasks) != 2 {
		t.Fatalf("historical task count = %d, want 2", len(tasks))
	}
	for _, snap := range tasks {
		if snap.State != TaskCompleted || snap.Status != TaskOK || snap.Percent != 100 {
			t.Fatalf("historical task not completed OK: %+v", snap)
		}
	}
}

func TestTaskProgressesToCompleted(t *testing.T) {
	r := NewTaskRegistry(fastEngine())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ran := false
	snap := r.Create(TaskOptions{
		Name: "Firmware Update Task",
		Rate: RateFirmware,
		Action: func(context.Context) error {
			ran = true
			return nil
		},
	})
	if snap.State != TaskNew || snap.Percent != 0 {
		t.Fatalf("fresh task = %+v", snap)
	}

	final := waitForTerminal(t, r, snap.ID)
	if final.State != TaskCompleted || final.Status != TaskOK || final.Percent != 100 {
		t.Fatalf("final = %+v, want Completed/OK/100", final)
	}
	if final.End.IsZero() {
		t.Fatal("terminal task must carry an end time")
	}
	if !ran {
		t.Fatal("task action never ran")
	}
}

func TestTaskPercentMonotonic(t *testing.T) {
	r := NewTaskRegistry(fastEngine())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	snap := r.Create(TaskOptions{Name: "RAID Configuration Task", Rate: RateRAID})

	last := -1
	for {
		cur, ok := r.Get(snap.ID)
		if !ok {
			t.Fatal("task disappeared mid-flight")
		}
		if cur.Percent < last {
			t.Fatalf("percent went backwards: %d -> %d", last, cur.Percent)
		}
		last = cur.Percent
		if cur.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTaskActionFailureStillCompletesOK(t *testing.T) {
	r := NewTaskRegistry(fastEngine())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	snap := r.Create(TaskOptions{
		Name: "Reset Task",
		Action: func(context.Context) error {
			return errors.New("vcenter unavailable")
		},
	})

	final := waitForTerminal(t, r, snap.ID)
	if final.State != TaskCompleted {
		t.Fatalf("state = %v, want Completed", final.State)
	}
	if final.Status != TaskWarning {
		t.Fatalf("status = %v, want Warning", final.Status)
	}
	found := false
	for _, m := range final.Messages {
		if m.Message == "Upstream unavailable; operation deferred." {
			found = true
		}
	}
	if !found {
		t.Fatalf("warning message missing: %+v", final.Messages)
	}
}

func TestTaskOnCompleteFires(t *testing.T) {
	r := NewTaskRegistry(fastEngine())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	done := make(chan struct{})
	snap := r.Create(TaskOptions{
		Name:       "Volume Creation Task",
		Rate:       RateVolume,
		OnComplete: func() { close(done) },
	})

	waitForTerminal(t, r, snap.ID)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnComplete never fired")
	}
}

func TestTaskTransitionHook(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	opts := fastEngine()
	opts.OnTransition = func(from, to TaskState) {
		mu.Lock()
		transitions = append(transitions, string(from)+">"+string(to))
		mu.Unlock()
	}
	r := NewTaskRegistry(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	snap := r.Create(TaskOptions{Name: "Hooked Task", Rate: RateGeneric})
	waitForTerminal(t, r, snap.ID)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"New>Starting", "Starting>Running", "Running>Completed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Fatalf("transition %d = %q, want %q", i, transitions[i], tr)
		}
	}
}

func TestTerminalTaskEvicted(t *testing.T) {
	opts := fastEngine()
	opts.Retention = 5 * time.Millisecond
	r := NewTaskRegistry(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	snap := r.Create(TaskOptions{Name: "Short Lived", Rate: 100})
	waitForTerminal(t, r, snap.ID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(snap.ID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("terminal task was never evicted")
}
