package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huangang/codemender/internal/config"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []uint
	errs  map[uint]error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, projectID uint) (*AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, projectID)
	if err := f.errs[projectID]; err != nil {
		return nil, err
	}
	return &AnalysisResult{Message: "ok"}, nil
}

type fakeAutoFixer struct {
	issueID string
	by      *uint
}

func (f *fakeAutoFixer) AutoFix(_ context.Context, issueID string, triggeredBy *uint) (*FixResult, error) {
	f.issueID = issueID
	f.by = triggeredBy
	return &FixResult{PRNumber: 7}, nil
}

func TestTaskProcessor_Dispatch(t *testing.T) {
	an := &fakeAnalyzer{}
	fx := &fakeAutoFixer{}
	process := NewTaskProcessor(an, fx)
	ctx := context.Background()

	if err := process(ctx, NewAnalysisTask(3, nil)); err != nil {
		t.Fatalf("analysis task: %v", err)
	}
	if len(an.calls) != 1 || an.calls[0] != 3 {
		t.Errorf("analyzer calls = %v, want [3]", an.calls)
	}

	user := uint(9)
	if err := process(ctx, NewAutoFixTask("abc", &user)); err != nil {
		t.Fatalf("auto-fix task: %v", err)
	}
	if fx.issueID != "abc" || fx.by == nil || *fx.by != 9 {
		t.Errorf("auto-fix got issue %q by %v", fx.issueID, fx.by)
	}

	if err := process(ctx, &Task{Type: "review:process"}); err == nil {
		t.Error("expected error for unknown task type")
	}
}

func TestTaskProcessor_PropagatesErrors(t *testing.T) {
	an := &fakeAnalyzer{errs: map[uint]error{1: ErrAnalysisInProgress}}
	process := NewTaskProcessor(an, &fakeAutoFixer{})
	if err := process(context.Background(), NewAnalysisTask(1, nil)); !errors.Is(err, ErrAnalysisInProgress) {
		t.Errorf("err = %v, want ErrAnalysisInProgress", err)
	}
}

func TestSyncQueue_RunsInBackground(t *testing.T) {
	done := make(chan *Task, 1)
	q := NewSyncQueue(func(_ context.Context, task *Task) error {
		done <- task
		return nil
	})

	if q.IsAsync() {
		t.Error("sync queue reports async")
	}
	id, err := q.Enqueue(NewAnalysisTask(5, nil))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("task id %q is not a uuid", id)
	}

	select {
	case got := <-done:
		if got.Type != TaskTypeAnalysis || got.ProjectID != 5 {
			t.Errorf("processed %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}
	if err := q.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSyncQueue_WithoutProcessor(t *testing.T) {
	q := NewSyncQueue(nil)
	if _, err := q.Enqueue(NewAnalysisTask(1, nil)); err == nil {
		t.Error("expected error without processor")
	}
}

func TestNewWorker_DisabledRedis(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}, nil); w != nil {
		t.Error("expected nil worker when Redis is disabled")
	}
}
