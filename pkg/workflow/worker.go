package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
)

// cancelRegistry is the subset of WorkerPool a Worker needs, mirroring
// tarsy/pkg/queue/worker.go's SessionRegistry interface.
type cancelRegistry interface {
	RegisterCancel(key string, cancel context.CancelFunc)
	UnregisterCancel(key string)
}

// Worker polls for claimable WorkflowExecution rows and runs them to
// completion, grounded on tarsy/pkg/queue/worker.go's poll/claim/heartbeat/
// terminal-status loop.
type Worker struct {
	id      string
	podID   string
	db      *database.Client
	runtime *Runtime
	cfg     *config.WorkflowConfig
	pool    cancelRegistry
	logger  *slog.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newWorker(id, podID string, db *database.Client, runtime *Runtime, cfg *config.WorkflowConfig, pool cancelRegistry, logger *slog.Logger) *Worker {
	return &Worker{id: id, podID: podID, db: db, runtime: runtime, cfg: cfg, pool: pool, logger: logger, stopCh: make(chan struct{})}
}

func (w *Worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) stop() {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := w.logger.With("worker_id", w.id)
	log.Info("workflow worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("workflow worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoExecutionsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.cfg.PollInterval)
					continue
				}
				log.Error("error processing workflow execution", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	var active int64
	if err := w.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("status = ? AND claimed_by != ''", "running").Count(&active).Error; err != nil {
		return err
	}
	if int(active) >= w.cfg.MaxConcurrentExecutions {
		return ErrAtCapacity
	}

	exec, err := w.claimNext(ctx)
	if err != nil {
		return err
	}

	key := exec.WorkflowID + "/" + exec.RunID
	log := w.logger.With("workflow_id", exec.WorkflowID, "run_id", exec.RunID, "worker_id", w.id)
	log.Info("workflow execution claimed")

	execCtx, cancel := context.WithCancel(ctx)
	if w.cfg.DefaultTimeouts != nil && w.cfg.DefaultTimeouts.StartToClose > 0 {
		var c2 context.CancelFunc
		execCtx, c2 = context.WithTimeout(execCtx, w.cfg.DefaultTimeouts.StartToClose)
		defer c2()
	}
	w.pool.RegisterCancel(key, cancel)
	defer w.pool.UnregisterCancel(key)
	defer cancel()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(execCtx)
	go w.runHeartbeat(heartbeatCtx, exec.WorkflowID, exec.RunID)

	cancelled := func() bool {
		var c bool
		_ = w.db.WithContext(context.Background()).Model(&database.WorkflowExecution{}).
			Select("cancel_requested").
			Where("workflow_id = ? AND run_id = ?", exec.WorkflowID, exec.RunID).
			Scan(&c).Error
		return c
	}

	result := w.runtime.runOne(execCtx, exec, cancelled)
	cancelHeartbeat()

	if err := w.finalize(context.Background(), exec, result); err != nil {
		log.Error("failed to record terminal status", "error", err)
		return err
	}
	log.Info("workflow execution finished", "status", result.Status)
	return nil
}

// claimNext atomically claims the oldest claimable execution using
// SELECT ... FOR UPDATE SKIP LOCKED, directly grounded on
// tarsy/pkg/queue/worker.go's claimNextSession.
func (w *Worker) claimNext(ctx context.Context) (database.WorkflowExecution, error) {
	var claimed database.WorkflowExecution

	txErr := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exec database.WorkflowExecution
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND claimed_by = ?", "running", "").
			Order("started_at ASC").
			Limit(1).
			First(&exec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoExecutionsAvailable
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&exec).Updates(map[string]any{
			"claimed_by":     w.podID,
			"claimed_at":     now,
			"last_heartbeat": now,
		}).Error; err != nil {
			return err
		}
		claimed = exec
		claimed.ClaimedBy = w.podID
		return nil
	})
	if txErr != nil {
		return database.WorkflowExecution{}, txErr
	}
	return claimed, nil
}

func (w *Worker) runHeartbeat(ctx context.Context, workflowID, runID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.db.WithContext(context.Background()).Model(&database.WorkflowExecution{}).
				Where("workflow_id = ? AND run_id = ?", workflowID, runID).
				Update("last_heartbeat", time.Now()).Error; err != nil {
				w.logger.Warn("heartbeat update failed", "workflow_id", workflowID, "run_id", runID, "error", err)
			}
		}
	}
}

func (w *Worker) finalize(ctx context.Context, exec database.WorkflowExecution, result ExecutionResult) error {
	now := time.Now()
	updates := map[string]any{
		"status":    result.Status,
		"closed_at": now,
	}
	if result.Output != nil {
		updates["output"] = []byte(result.Output)
	}
	if result.Err != nil {
		updates["error_message"] = result.Err.Error()
	}
	return w.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("workflow_id = ? AND run_id = ?", exec.WorkflowID, exec.RunID).
		Updates(updates).Error
}
