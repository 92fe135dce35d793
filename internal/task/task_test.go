package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aarnphm/morph/internal/agent"
)

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	task := Task{ID: "t1", FileID: "v1:/essay.md", Class: agent.ClassNotes}
	if !r.Add(task) {
		t.Error("first add should report new")
	}
	if r.Add(task) {
		t.Error("second add should report existing")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestRegistryRemoveAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Add(Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes})
	if r.CompareAndRemove("absent") {
		t.Error("removing absent id should report false")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1 after absent removal", r.Len())
	}
}

func TestCompareAndRemoveSingleWinner(t *testing.T) {
	r := NewRegistry()
	r.Add(Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes})

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.CompareAndRemove("t1") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("winners = %d, want exactly 1", n)
	}
}

func TestRegistryRemoveWhere(t *testing.T) {
	r := NewRegistry()
	r.Add(Task{ID: "t1", FileID: "v1:/a.md", Class: agent.ClassNotes})
	r.Add(Task{ID: "t2", FileID: "v1:/b.md", Class: agent.ClassEssays})
	r.Add(Task{ID: "t3", FileID: "v2:/c.md", Class: agent.ClassNotes})

	removed := r.RemoveWhere(func(task Task) bool { return task.FileID[:3] == "v1:" })
	if len(removed) != 2 || r.Len() != 1 {
		t.Errorf("removed %d, remaining %d; want 2 removed, 1 left", len(removed), r.Len())
	}
	if _, ok := r.Get("t3"); !ok {
		t.Error("t3 should survive")
	}
}

func fastInterval(agent.TaskClass) time.Duration { return 2 * time.Millisecond }

// statusScript returns each queued status in order, then repeats the last.
func statusScript(statuses ...agent.TaskStatus) StatusFunc {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, _ agent.TaskClass, taskID string) (*agent.TaskStatusResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return &agent.TaskStatusResponse{TaskID: taskID, Status: s}, nil
	}
}

func collectCompletions() (CompleteFunc, func() []agent.TaskStatus) {
	var mu sync.Mutex
	var got []agent.TaskStatus
	fn := func(_ Task, status agent.TaskStatus) {
		mu.Lock()
		got = append(got, status)
		mu.Unlock()
	}
	snapshot := func() []agent.TaskStatus {
		mu.Lock()
		defer mu.Unlock()
		return append([]agent.TaskStatus(nil), got...)
	}
	return fn, snapshot
}

func TestRunnerCompletesExactlyOnce(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	r := NewRunner(reg, statusScript(agent.StatusInProgress, agent.StatusSuccess), onComplete,
		WithInterval(fastInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register(ctx, Task{ID: "t1", FileID: "v1:/essay.md", Class: agent.ClassNotes})
	r.Wait()

	got := completions()
	if len(got) != 1 || got[0] != agent.StatusSuccess {
		t.Errorf("completions = %v, want one success", got)
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0 after completion", reg.Len())
	}
}

func TestRunnerDuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	r := NewRunner(reg, statusScript(agent.StatusSuccess), onComplete, WithInterval(fastInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes}
	r.Register(ctx, task)
	r.Register(ctx, task)
	r.Wait()

	if got := completions(); len(got) != 1 {
		t.Errorf("completions = %v, want exactly one", got)
	}
}

func TestRunnerFailureIsDeliveredAsData(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	r := NewRunner(reg, statusScript(agent.StatusFailure), onComplete, WithInterval(fastInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register(ctx, Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes})
	r.Wait()

	if got := completions(); len(got) != 1 || got[0] != agent.StatusFailure {
		t.Errorf("completions = %v, want one failure", got)
	}
}

func TestRunnerPollErrorFailsFast(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	calls := 0
	var mu sync.Mutex
	status := func(context.Context, agent.TaskClass, string) (*agent.TaskStatusResponse, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}
	r := NewRunner(reg, status, onComplete, WithInterval(fastInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register(ctx, Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes})
	r.Wait()

	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 1 {
		t.Errorf("status calls = %d, want 1 (no retry)", gotCalls)
	}
	if got := completions(); len(got) != 1 || got[0] != agent.StatusFailure {
		t.Errorf("completions = %v, want one failure", got)
	}
}

func TestRunnerDeadlineCancels(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	r := NewRunner(reg, statusScript(agent.StatusInProgress), onComplete,
		WithInterval(func(agent.TaskClass) time.Duration { return 5 * time.Millisecond }),
		WithMaxDuration(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register(ctx, Task{ID: "t1", FileID: "f1", Class: agent.ClassNotes})
	r.Wait()

	if got := completions(); len(got) != 1 || got[0] != agent.StatusCancelled {
		t.Errorf("completions = %v, want one cancelled", got)
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0", reg.Len())
	}
}

func TestStopVaultSilencesPollers(t *testing.T) {
	reg := NewRegistry()
	onComplete, completions := collectCompletions()
	r := NewRunner(reg, statusScript(agent.StatusInProgress), onComplete, WithInterval(fastInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Register(ctx, Task{ID: "t1", FileID: "v1:/a.md", Class: agent.ClassNotes})
	r.Register(ctx, Task{ID: "t2", FileID: "v2:/b.md", Class: agent.ClassNotes})

	r.StopVault("v1")
	if _, ok := reg.Get("t1"); ok {
		t.Error("t1 should be gone after StopVault")
	}
	if _, ok := reg.Get("t2"); !ok {
		t.Error("t2 should survive StopVault of v1")
	}

	cancel()
	r.Wait()
	if got := completions(); len(got) != 0 {
		t.Errorf("completions = %v, want none after stop", got)
	}
}
