package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm/clause"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
)

// WorkerPool manages a pool of workflow workers, directly grounded on
// tarsy/pkg/queue/pool.go: podID-scoped worker IDs, a session (here:
// execution) cancel registry, graceful Stop, and a background orphan scan,
// generalized from "alert sessions" to "workflow executions".
type WorkerPool struct {
	podID   string
	db      *database.Client
	runtime *Runtime
	cfg     *config.WorkflowConfig
	logger  *slog.Logger

	workers []*Worker
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu      sync.RWMutex
	cancels map[string]context.CancelFunc

	orphanMu         sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool constructs a pool. cfg may be nil (falls back to
// config.DefaultWorkflowConfig()).
func NewWorkerPool(podID string, db *database.Client, runtime *Runtime, cfg *config.WorkflowConfig, logger *slog.Logger) *WorkerPool {
	if cfg == nil {
		cfg = config.DefaultWorkflowConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		podID:   podID,
		db:      db,
		runtime: runtime,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start spawns the configured worker count plus a background orphan scan.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID, p.db, p.runtime, p.cfg, p, p.logger)
		p.workers = append(p.workers, w)
		w.start(ctx)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanScan(ctx)
	}()
	if p.runtime.metrics != nil {
		p.runtime.metrics.WorkerPoolSize.Set(float64(len(p.workers)))
	}
	p.logger.Info("workflow worker pool started", "pod_id", p.podID, "workers", p.cfg.WorkerCount)
}

// Stop signals every worker to finish its current execution and exit, then
// waits for them (graceful shutdown, spec.md §4.5).
func (p *WorkerPool) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("workflow worker pool stopped")
}

// RegisterCancel stores a cancel function for an in-flight execution on
// this pod, for RequestCancel-triggered cooperative cancellation.
func (p *WorkerPool) RegisterCancel(key string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[key] = cancel
}

// UnregisterCancel removes the cancel function once processing ends.
func (p *WorkerPool) UnregisterCancel(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, key)
}

// Cancel triggers local cancellation of an execution running on this pod.
// Returns true if found. Executions running on another pod are cancelled
// via RequestCancel's DB flag, observed by that pod's own worker.
func (p *WorkerPool) Cancel(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.cancels[key]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports pool-wide status, mirroring tarsy/pkg/queue/pool.go's
// Health().
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	var active int64
	_ = p.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("status = ?", "running").Count(&active).Error

	var queueDepth int64
	_ = p.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("status = ? AND claimed_by = ''", "running").Count(&queueDepth).Error

	p.orphanMu.Lock()
	orphans := p.orphansRecovered
	p.orphanMu.Unlock()

	return PoolHealth{
		IsHealthy:        true,
		PodID:            p.podID,
		TotalWorkers:     len(p.workers),
		ActiveExecutions: int(active),
		MaxConcurrent:    p.cfg.MaxConcurrentExecutions,
		QueueDepth:       int(queueDepth),
		OrphansRecovered: orphans,
	}
}

// runOrphanScan periodically reclaims executions whose claim has gone
// stale (no heartbeat within 3x the heartbeat interval) — grounded on
// tarsy/pkg/queue/orphan.go's recovery sweep, generalized from "kill the
// orphaned alert session" to "hand the execution back to the claimable
// queue so another worker resumes it from history" (spec.md §8 S6): a
// crash must not discard the work an execution's already-completed
// activities did.
func (p *WorkerPool) runOrphanScan(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scanOnce(ctx)
		}
	}
}

func (p *WorkerPool) scanOnce(ctx context.Context) {
	staleBefore := time.Now().Add(-3 * p.cfg.HeartbeatInterval)
	var stale []database.WorkflowExecution
	err := p.db.WithContext(ctx).
		Where("status = ? AND last_heartbeat < ?", "running", staleBefore).
		Find(&stale).Error
	if err != nil {
		p.logger.Error("orphan scan query failed", "error", err)
		return
	}

	maxAttempts := p.cfg.MaxReclaimAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for _, exec := range stale {
		if exec.ReclaimCount >= maxAttempts {
			if err := p.db.WithContext(ctx).Model(&exec).
				Clauses(clause.Returning{}).
				Where("status = ?", "running").
				Updates(map[string]any{
					"status":        "failed",
					"error_kind":    "orphaned",
					"error_message": fmt.Sprintf("worker heartbeat stale, execution failed after %d reclaim attempts", exec.ReclaimCount),
				}).Error; err != nil {
				p.logger.Error("failed to fail exhausted orphaned execution", "workflow_id", exec.WorkflowID, "run_id", exec.RunID, "error", err)
				continue
			}
			p.logger.Error("orphaned workflow execution exhausted reclaim attempts, marked failed", "workflow_id", exec.WorkflowID, "run_id", exec.RunID, "reclaim_count", exec.ReclaimCount)
			continue
		}

		if err := p.db.WithContext(ctx).Model(&exec).
			Clauses(clause.Returning{}).
			Where("status = ?", "running").
			Updates(map[string]any{
				"claimed_by":     "",
				"claimed_at":     nil,
				"last_heartbeat": nil,
				"reclaim_count":  exec.ReclaimCount + 1,
			}).Error; err != nil {
			p.logger.Error("failed to reclaim orphaned execution", "workflow_id", exec.WorkflowID, "run_id", exec.RunID, "error", err)
			continue
		}
		p.orphanMu.Lock()
		p.orphansRecovered++
		p.orphanMu.Unlock()
		p.logger.Warn("reclaimed orphaned workflow execution, returned to claimable queue for resume", "workflow_id", exec.WorkflowID, "run_id", exec.RunID, "reclaim_count", exec.ReclaimCount+1)
	}
	p.orphanMu.Lock()
	p.lastOrphanScan = time.Now()
	p.orphanMu.Unlock()
}
