// Package scheduler runs the background delivery task queue
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	businessflow "github.com/calyxsuite/outreach/business_flow"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
	"github.com/calyxsuite/outreach/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery task outcomes partitioned by channel
	deliveryTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_tasks_total",
			Help: "Total number of delivery tasks processed by outcome",
		},
		[]string{"channel", "outcome"},
	)

	// End-to-end executor latency per channel
	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Delivery executor latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

// DeliveryWorker polls the delivery task queue and dispatches due tasks to the
// channel executors on a bounded worker pool. Tasks run at least once: an
// email executor error requeues the task until MaxAttempts, then marks it
// failed. The SMS executor records its own failures and never returns one.
type DeliveryWorker struct {
	taskRepo     repository.DeliveryTaskRepository
	emailFlow    businessflow.DeliveryFlow
	smsFlow      businessflow.DeliveryFlow
	logger       *log.Logger
	pollInterval time.Duration
	batchSize    int
	poolSize     int
	taskTimeout  time.Duration
	maxAttempts  int
}

// DeliveryWorkerOptions tunes the worker loop
type DeliveryWorkerOptions struct {
	PollInterval time.Duration
	BatchSize    int
	PoolSize     int
	TaskTimeout  time.Duration
	MaxAttempts  int
}

// NewDeliveryWorker creates a new delivery worker instance
func NewDeliveryWorker(
	taskRepo repository.DeliveryTaskRepository,
	emailFlow businessflow.DeliveryFlow,
	smsFlow businessflow.DeliveryFlow,
	logger *log.Logger,
	opts DeliveryWorkerOptions,
) *DeliveryWorker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if logger == nil {
		logger = log.Default()
	}

	return &DeliveryWorker{
		taskRepo:     taskRepo,
		emailFlow:    emailFlow,
		smsFlow:      smsFlow,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		poolSize:     opts.PoolSize,
		taskTimeout:  opts.TaskTimeout,
		maxAttempts:  opts.MaxAttempts,
	}
}

// Start launches the polling loop and returns a cancel function
func (w *DeliveryWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		w.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce claims one batch of due tasks and fans them out to the pool
func (w *DeliveryWorker) runOnce(ctx context.Context) {
	tasks, err := w.taskRepo.ClaimDue(ctx, utils.UTCNow(), w.batchSize)
	if err != nil {
		w.logger.Printf("delivery worker: failed to claim due tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	w.logger.Printf("delivery worker: claimed %d due tasks", len(tasks))

	queue := make(chan *models.DeliveryTask)
	var wg sync.WaitGroup

	for i := 0; i < w.poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				w.process(ctx, task)
			}
		}()
	}

	for _, task := range tasks {
		queue <- task
	}
	close(queue)
	wg.Wait()
}

// process runs one claimed task through its executor with a bounded timeout
func (w *DeliveryWorker) process(ctx context.Context, task *models.DeliveryTask) {
	flow, err := w.flowFor(task.Channel)
	if err != nil {
		w.finish(ctx, task, models.DeliveryTaskStatusFailed, err)
		deliveryTasksTotal.WithLabelValues(task.Channel.String(), "failed").Inc()
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	start := time.Now()
	deliverErr := flow.Deliver(taskCtx, task.RecipientID)
	deliveryDuration.WithLabelValues(task.Channel.String()).Observe(time.Since(start).Seconds())

	if deliverErr == nil {
		w.finish(ctx, task, models.DeliveryTaskStatusDone, nil)
		deliveryTasksTotal.WithLabelValues(task.Channel.String(), "done").Inc()
		return
	}

	if task.Attempts >= w.maxAttempts {
		w.logger.Printf("delivery worker: task %d exhausted %d attempts: %v", task.ID, task.Attempts, deliverErr)
		w.finish(ctx, task, models.DeliveryTaskStatusFailed, deliverErr)
		deliveryTasksTotal.WithLabelValues(task.Channel.String(), "failed").Inc()
		return
	}

	w.requeue(ctx, task, deliverErr)
	deliveryTasksTotal.WithLabelValues(task.Channel.String(), "retried").Inc()
}

func (w *DeliveryWorker) flowFor(channel models.CampaignChannel) (businessflow.DeliveryFlow, error) {
	switch channel {
	case models.CampaignChannelEmail:
		if w.emailFlow != nil {
			return w.emailFlow, nil
		}
	case models.CampaignChannelSMS:
		if w.smsFlow != nil {
			return w.smsFlow, nil
		}
	}
	return nil, fmt.Errorf("no executor registered for channel %q", channel)
}

// finish moves a task to a terminal status
func (w *DeliveryWorker) finish(ctx context.Context, task *models.DeliveryTask, status models.DeliveryTaskStatus, cause error) {
	task.Status = status
	task.FinishedAt = utils.UTCNowPtr()
	if cause != nil {
		task.LastError = utils.ToPtr(cause.Error())
	}

	if err := w.taskRepo.Update(ctx, task); err != nil {
		w.logger.Printf("delivery worker: failed to finish task %d: %v", task.ID, err)
	}
}

// requeue returns a failed task to the queue with a short backoff
func (w *DeliveryWorker) requeue(ctx context.Context, task *models.DeliveryTask, cause error) {
	task.Status = models.DeliveryTaskStatusPending
	task.ScheduledAt = utils.UTCNow().Add(w.backoff(task.Attempts))
	task.LastError = utils.ToPtr(cause.Error())
	task.StartedAt = nil

	if err := w.taskRepo.Update(ctx, task); err != nil {
		w.logger.Printf("delivery worker: failed to requeue task %d: %v", task.ID, err)
	}
}

// backoff grows linearly with the attempt count
func (w *DeliveryWorker) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * 10 * time.Second
}
