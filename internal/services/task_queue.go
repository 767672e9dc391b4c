package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/pkg/logger"
)

const (
	TaskTypeAnalysis = "analysis:run"
	TaskTypeAutoFix  = "autofix:run"
)

// Task is a unit of background work. IssueID is set for auto-fix tasks only.
type Task struct {
	Type        string `json:"type"`
	ProjectID   uint   `json:"project_id,omitempty"`
	IssueID     string `json:"issue_id,omitempty"`
	TriggeredBy *uint  `json:"triggered_by,omitempty"`
}

func NewAnalysisTask(projectID uint, triggeredBy *uint) *Task {
	return &Task{Type: TaskTypeAnalysis, ProjectID: projectID, TriggeredBy: triggeredBy}
}

func NewAutoFixTask(issueID string, triggeredBy *uint) *Task {
	return &Task{Type: TaskTypeAutoFix, IssueID: issueID, TriggeredBy: triggeredBy}
}

// TaskProcessor runs one task to completion.
type TaskProcessor func(context.Context, *Task) error

type Analyzer interface {
	Analyze(ctx context.Context, projectID uint) (*AnalysisResult, error)
}

type AutoFixer interface {
	AutoFix(ctx context.Context, issueID string, triggeredBy *uint) (*FixResult, error)
}

// NewTaskProcessor dispatches tasks to the analysis and auto-fix services.
func NewTaskProcessor(analysis Analyzer, fixer AutoFixer) TaskProcessor {
	return func(ctx context.Context, task *Task) error {
		switch task.Type {
		case TaskTypeAnalysis:
			res, err := analysis.Analyze(ctx, task.ProjectID)
			if err != nil {
				return err
			}
			logger.Infof("[Task] Analysis of project %d done: %s", task.ProjectID, res.Message)
			return nil
		case TaskTypeAutoFix:
			res, err := fixer.AutoFix(ctx, task.IssueID, task.TriggeredBy)
			if err != nil {
				return err
			}
			logger.Infof("[Task] Auto-fix of issue %s opened PR #%d", task.IssueID, res.PRNumber)
			return nil
		default:
			return fmt.Errorf("unknown task type %q", task.Type)
		}
	}
}

// TaskQueue accepts tasks and runs them off the request path.
type TaskQueue interface {
	// Enqueue returns the task id.
	Enqueue(task *Task) (string, error)
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue picks the Redis-backed queue when enabled and reachable,
// otherwise a queue that runs tasks in-process.
func InitTaskQueue(cfg *config.Config, processor TaskProcessor) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue(processor)
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue(processor)
		}
	})
	return globalTaskQueue
}

func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue on asynq.
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *Task) (string, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	// Auto-fix must not be retried: a second attempt would open a second PR.
	retries := 0
	if task.Type == TaskTypeAnalysis {
		retries = 2
	}
	info, err := q.client.Enqueue(asynq.NewTask(task.Type, payload),
		asynq.TaskID(uuid.NewString()),
		asynq.Queue("default"),
		asynq.MaxRetry(retries),
	)
	if err != nil {
		return "", err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, type=%s, queue=%s", info.ID, task.Type, info.Queue)
	return info.ID, nil
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs each task in its own goroutine inside this process.
type SyncQueue struct {
	processor TaskProcessor
	wg        sync.WaitGroup
}

func NewSyncQueue(processor TaskProcessor) *SyncQueue {
	return &SyncQueue{processor: processor}
}

func (q *SyncQueue) Enqueue(task *Task) (string, error) {
	if q.processor == nil {
		return "", fmt.Errorf("no task processor configured")
	}

	id := uuid.NewString()
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] Task %s (%s) failed: %v", id, task.Type, err)
		}
	}()
	return id, nil
}

func (q *SyncQueue) IsAsync() bool { return false }

// Close waits for in-flight tasks.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
