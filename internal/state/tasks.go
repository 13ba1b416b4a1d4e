package state

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// TaskState is the Redfish task lifecycle state.
type TaskState string

const (
	TaskNew       TaskState = "New"
	TaskStarting  TaskState = "Starting"
	TaskRunning   TaskState = "Running"
	TaskCompleted TaskState = "Completed"
	TaskException TaskState = "Exception"
	TaskCancelled TaskState = "Cancelled"
)

// TaskStatus is the Redfish task health.
type TaskStatus string

const (
	TaskOK       TaskStatus = "OK"
	TaskWarning  TaskStatus = "Warning"
	TaskCritical TaskStatus = "Critical"
)

// TaskMessage is one entry in a task's ordered message list.
type TaskMessage struct {
	Severity  TaskStatus
	Message   string
	Timestamp time.Time
}

// Task is one asynchronous operation. Tasks never report failure: the
// orchestrator treats a failed task as a hard inspection error, so a task
// whose action cannot be performed completes OK with a Warning message.
type Task struct {
	ID        string
	Name      string
	TargetURI string

	State    TaskState
	Status   TaskStatus
	Percent  int
	Start    time.Time
	End      time.Time
	Messages []TaskMessage

	created     time.Time
	stepPercent int
	action      func(ctx context.Context) error
	actionRan   bool
	onComplete  func()
}

// Snapshot is an immutable copy of a task for serialization.
type Snapshot struct {
	ID        string
	Name      string
	TargetURI string
	State     TaskState
	Status    TaskStatus
	Percent   int
	Start     time.Time
	End       time.Time
	Messages  []TaskMessage
}

func (t *Task) snapshot() Snapshot {
	return Snapshot{
		ID:        t.ID,
		Name:      t.Name,
		TargetURI: t.TargetURI,
		State:     t.State,
		Status:    t.Status,
		Percent:   t.Percent,
		Start:     t.Start,
		End:       t.End,
		Messages:  append([]TaskMessage(nil), t.Messages...),
	}
}

// Terminal reports whether the task has reached a final state.
func (s Snapshot) Terminal() bool {
	return s.State == TaskCompleted || s.State == TaskException || s.State == TaskCancelled
}

// Progress rates, in percent added per driver tick, matching the simulated
// durations of the original device firmware: a firmware update finishes in
// roughly ten seconds, RAID configuration in twelve, volume creation in eight.
const (
	RateFirmware = 5
	RateRAID     = 4
	RateVolume   = 6
	RateGeneric  = 7
)

// TaskOptions parameterize CreateTask.
type TaskOptions struct {
	Name      string
	TargetURI string
	Rate      int // percent per tick; RateGeneric when zero

	// Action runs once, during the Running phase. Its error never fails
	// the task; it is recorded as a Warning message.
	Action func(ctx context.Context) error

	// OnComplete fires exactly once when the task reaches Completed.
	OnComplete func()
}

// EngineOptions tune the driver loop; tests shrink the intervals.
type EngineOptions struct {
	Tick       time.Duration // progress step interval (default 500ms)
	StartDelay time.Duration // New -> Starting (default 100ms)
	RunDelay   time.Duration // Starting -> Running (default 500ms)
	Retention  time.Duration // keep terminal tasks (default 1h)

	// OnTransition fires for every task state change. Must be cheap; it
	// runs under the registry lock.
	OnTransition func(from, to TaskState)
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.Tick == 0 {
		o.Tick = 500 * time.Millisecond
	}
	if o.StartDelay == 0 {
		o.StartDelay = 100 * time.Millisecond
	}
	if o.RunDelay == 0 {
		o.RunDelay = 500 * time.Millisecond
	}
	if o.Retention == 0 {
		o.Retention = time.Hour
	}
	return o
}

// TaskRegistry owns all tasks and the background driver that advances them.
type TaskRegistry struct {
	opts EngineOptions

	mu    sync.Mutex
	tasks map[string]*Task
	seq   int
}

// NewTaskRegistry builds a registry pre-populated with the historical
// completed tasks the orchestrator expects to find on its first poll.
func NewTaskRegistry(opts EngineOptions) *TaskRegistry {
	r := &TaskRegistry{
		opts:  opts.withDefaults(),
		tasks: make(map[string]*Task),
	}
	now := time.Now().UTC()
	for _, name := range []string{"BIOS Update Task", "RAID Configuration Task"} {
		id := r.nextID()
		r.tasks[id] = &Task{
			ID:      id,
			Name:    name,
			State:   TaskCompleted,
			Status:  TaskOK,
			Percent: 100,
			Start:   now,
			End:     now,
			created: now,
			Messages: []TaskMessage{
				{Severity: TaskOK, Message: "The task has completed successfully.", Timestamp: now},
			},
		}
	}
	return r
}

func (r *TaskRegistry) nextID() string {
	id := strconv.Itoa(r.seq)
	r.seq++
	return id
}

// Create registers a new task and returns its snapshot. The driver picks it
// up on the next tick.
func (r *TaskRegistry) Create(opts TaskOptions) Snapshot {
	rate := opts.Rate
	if rate <= 0 {
		rate = RateGeneric
	}
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID()
	t := &Task{
		ID:          id,
		Name:        opts.Name,
		TargetURI:   opts.TargetURI,
		State:       TaskNew,
		Status:      TaskOK,
		Start:       now,
		created:     now,
		stepPercent: rate,
		action:      opts.Action,
		onComplete:  opts.OnComplete,
	}
	r.tasks[id] = t
	return t.snapshot()
}

// Get returns a snapshot of the task with id.
func (r *TaskRegistry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// List returns snapshots of all tasks ordered by numeric ID.
func (r *TaskRegistry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.tasks))
	for i := 0; i < r.seq; i++ {
		if t, ok := r.tasks[strconv.Itoa(i)]; ok {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// Run drives all tasks until ctx is canceled. One driver per process.
func (r *TaskRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.step(ctx, now.UTC())
		}
	}
}

// step advances every live task one transition and evicts expired ones.
// Actions run outside the registry lock; handlers never observe a task
// going backwards.
func (r *TaskRegistry) step(ctx context.Context, now time.Time) {
	type pendingAction struct {
		id     string
		action func(ctx context.Context) error
	}
	var actions []pendingAction
	var completions []func()

	r.mu.Lock()
	for id, t := range r.tasks {
		switch t.State {
		case TaskNew:
			if now.Sub(t.created) >= r.opts.StartDelay {
				r.setState(t, TaskStarting)
			}
		case TaskStarting:
			if now.Sub(t.created) >= r.opts.StartDelay+r.opts.RunDelay {
				r.setState(t, TaskRunning)
			}
		case TaskRunning:
			if t.action != nil && !t.actionRan {
				t.actionRan = true
				actions = append(actions, pendingAction{id: id, action: t.action})
			}
			t.Percent += t.stepPercent
			if t.Percent >= 100 {
				t.Percent = 100
				r.setState(t, TaskCompleted)
				t.End = now
				t.Messages = append(t.Messages, TaskMessage{
					Severity:  TaskOK,
					Message:   "The task has completed successfully.",
					Timestamp: now,
				})
				if t.onComplete != nil {
					completions = append(completions, t.onComplete)
					t.onComplete = nil
				}
			}
		case TaskCompleted, TaskException, TaskCancelled:
			if !t.End.IsZero() && now.Sub(t.End) > r.opts.Retention {
				delete(r.tasks, id)
			}
		}
	}
	r.mu.Unlock()

	for _, p := range actions {
		if err := p.action(ctx); err != nil {
			r.appendWarning(p.id, "Upstream unavailable; operation deferred.")
		}
	}
	for _, fn := range completions {
		fn()
	}
}

// setState advances a task and reports the transition. Callers hold the
// registry lock.
func (r *TaskRegistry) setState(t *Task, next TaskState) {
	prev := t.State
	t.State = next
	if r.opts.OnTransition != nil {
		r.opts.OnTransition(prev, next)
	}
}

func (r *TaskRegistry) appendWarning(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	t.Status = TaskWarning
	t.Messages = append(t.Messages, TaskMessage{
		Severity:  TaskWarning,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}
