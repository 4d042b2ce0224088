package batch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"shell-service/internal/canvas"
	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/config"
	"shell-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when the batch queue cannot accept more work
var ErrQueueFull = errors.New("batch queue is full")

// CourseCreator is the slice of the Canvas client the runner needs
type CourseCreator interface {
	CreateCourse(ctx context.Context, accountID string, spec canvas.CourseSpec) (*canvas.Course, error)
}

// Runner drains an in-process queue of submitted batches. Each batch's
// pending shells are driven to a terminal status: the external course is
// created, the shell row updated, and the ledger counters incremented.
// One shell's failure never aborts the rest of its batch.
type Runner struct {
	store   store.Store
	creator CourseCreator
	cfg     config.WorkerConfig
	log     *zap.Logger

	queue chan string
	wg    sync.WaitGroup
}

// NewRunner creates a Runner; call Start before enqueueing batches
func NewRunner(st store.Store, creator CourseCreator, cfg config.WorkerConfig, log *zap.Logger) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	if cfg.ShellConcurrency <= 0 {
		cfg.ShellConcurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Runner{
		store:   st,
		creator: creator,
		cfg:     cfg,
		log:     log,
		queue:   make(chan string, cfg.QueueSize),
	}
}

// Start launches the batch workers. They run until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.BatchConcurrency; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case batchID := <-r.queue:
					prometheus.BatchQueueDepth.Set(float64(len(r.queue)))
					r.processBatch(ctx, batchID)
				}
			}
		}()
	}
	r.log.Info("Batch runner started",
		zap.Int("batch_concurrency", r.cfg.BatchConcurrency),
		zap.Int("shell_concurrency", r.cfg.ShellConcurrency),
		zap.Int("max_attempts", r.cfg.MaxAttempts))
}

// Wait blocks until all workers have exited after ctx cancellation
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueue submits a batch for processing without blocking the caller
func (r *Runner) Enqueue(batchID string) error {
	select {
	case r.queue <- batchID:
		prometheus.BatchQueueDepth.Set(float64(len(r.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Recover re-enqueues batches that were in progress when the process
// stopped, so interrupted work finishes after a restart.
func (r *Runner) Recover() error {
	batches, err := r.store.ListBatchesByStatus(model.BatchStatusInProgress)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if err := r.Enqueue(b.BatchID); err != nil {
			return fmt.Errorf("recovering batch %s: %w", b.BatchID, err)
		}
		r.log.Info("Re-enqueued interrupted batch", zap.String("batch_id", b.BatchID))
	}
	return nil
}

// processBatch drives every pending shell of one batch to a terminal
// status, then finalizes the ledger. Shells run through a bounded pool;
// with a limit of 1 they run sequentially in insertion order.
func (r *Runner) processBatch(ctx context.Context, batchID string) {
	log := r.log.With(zap.String("batch_id", batchID))

	shells, err := r.store.GetPendingShellsByBatch(batchID)
	if err != nil {
		log.Error("Failed to load pending shells", zap.Error(err))
		return
	}
	log.Info("Processing batch", zap.Int("pending_shells", len(shells)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ShellConcurrency)
	for _, shell := range shells {
		shell := shell
		g.Go(func() error {
			r.processShell(gctx, log, shell)
			return nil
		})
	}
	// Shell outcomes are recorded in the store; Wait only synchronizes
	_ = g.Wait()

	batch, err := r.store.FinalizeBatch(batchID)
	if err != nil {
		log.Error("Failed to finalize batch", zap.Error(err))
		return
	}
	log.Info("Batch finished",
		zap.String("status", batch.Status),
		zap.Int("completed", batch.CompletedShells),
		zap.Int("failed", batch.FailedShells),
		zap.Int("total", batch.TotalShells))
}

// processShell makes the shell's single terminal transition and bumps the
// matching ledger counter.
func (r *Runner) processShell(ctx context.Context, log *zap.Logger, shell model.CourseShell) {
	course, err := r.createWithRetry(ctx, shell)
	if err != nil {
		log.Warn("Course creation failed",
			zap.Uint("shell_id", shell.ID),
			zap.String("name", shell.Name),
			zap.String("account_id", shell.AccountID),
			zap.Error(err))
		if markErr := r.store.MarkShellFailed(shell.ID, err.Error()); markErr != nil {
			if errors.Is(markErr, store.ErrNotFound) {
				// Already terminal; do not double-count
				return
			}
			log.Error("Failed to record shell failure", zap.Error(markErr))
			return
		}
		prometheus.RecordShellOutcome(model.ShellStatusFailed)
		if err := r.store.IncrementBatchFailed(shell.BatchID); err != nil {
			log.Error("Failed to increment failed counter", zap.Error(err))
		}
		return
	}

	if markErr := r.store.MarkShellCreated(shell.ID, course.ID.String()); markErr != nil {
		if errors.Is(markErr, store.ErrNotFound) {
			return
		}
		log.Error("Failed to record shell success", zap.Error(markErr))
		return
	}
	prometheus.RecordShellOutcome(model.ShellStatusCreated)
	if err := r.store.IncrementBatchCompleted(shell.BatchID); err != nil {
		log.Error("Failed to increment completed counter", zap.Error(err))
	}
	log.Info("Course created",
		zap.Uint("shell_id", shell.ID),
		zap.String("canvas_course_id", course.ID.String()),
		zap.String("account_id", shell.AccountID))
}

// createWithRetry calls the external create endpoint with bounded retries
// and exponential backoff. Only transient failures are retried; a 4xx from
// Canvas is permanent.
func (r *Runner) createWithRetry(ctx context.Context, shell model.CourseShell) (*canvas.Course, error) {
	spec := canvas.CourseSpec{
		Name:       shell.Name,
		CourseCode: shell.CourseCode,
		StartAt:    shell.StartDate,
		EndAt:      shell.EndDate,
	}

	backoff := r.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		course, err := r.creator.CreateCourse(ctx, shell.AccountID, spec)
		if err == nil {
			return course, nil
		}
		lastErr = err

		if !retryable(err) || attempt == r.cfg.MaxAttempts {
			break
		}
		r.log.Info("Retrying course creation",
			zap.Uint("shell_id", shell.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// retryable classifies an error from the create call as transient or not
func retryable(err error) bool {
	var apiErr *canvas.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Timeouts and connection failures are worth another attempt
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
