package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/output"
	"github.com/hvborda/lineas/pkg/progress"
	"github.com/hvborda/lineas/pkg/proxy"
)

// Orchestrator wires queues, workers, the progress store and the batch
// writer into one run: seed pending tasks, start staggered workers, drain
// results through the single consumer, checkpoint on a cadence and always
// finalize the durable artifacts on the way out.
type Orchestrator struct {
	config    *Config
	logger    *logrus.Logger
	leases    *proxy.Manager
	extractor extract.Extractor
	store     *progress.Store
	writer    *output.Writer
}

// NewOrchestrator validates the wiring and returns an Orchestrator.
func NewOrchestrator(config *Config, leases *proxy.Manager, extractor extract.Extractor, store *progress.Store, writer *output.Writer) (*Orchestrator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if leases == nil {
		return nil, fmt.Errorf("lease manager is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("progress store is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("output writer is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		config:    config,
		logger:    logger,
		leases:    leases,
		extractor: extractor,
		store:     store,
		writer:    writer,
	}, nil
}

// Run processes every pending id from allIDs to a terminal outcome, or
// until ctx is cancelled. It always performs the final progress save,
// batch finalization, failure export and statistics export before
// returning, regardless of how the run ended.
func (o *Orchestrator) Run(ctx context.Context, allIDs []string) (*progress.Statistics, error) {
	if len(allIDs) == 0 {
		return nil, fmt.Errorf("no valid ids to process")
	}

	loaded, err := o.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	stats := o.store.Statistics()
	if loaded {
		o.logger.WithFields(logrus.Fields{
			"processed":  stats.Processed,
			"successful": stats.Successful,
			"failed":     stats.Failed,
		}).Info("Resuming previous session")
	}

	stats.TotalRUCs = len(allIDs)
	stats.EndTime = nil
	if stats.StartTime == nil {
		now := time.Now()
		stats.StartTime = &now
	}

	pending := o.store.Pending(allIDs)
	if len(pending) == 0 {
		o.logger.Info("All ids already processed")
		return stats, nil
	}

	o.logger.WithFields(logrus.Fields{
		"workers": o.config.WorkerCount,
		"pending": len(pending),
		"total":   len(allIDs),
	}).Info("Starting workers with staggered start")

	tasks := NewTaskQueue(len(pending))
	for _, id := range pending {
		tasks.Put(Task{ID: id})
	}
	// Closing here is the termination signal: each worker observes the
	// close exactly once after the queue drains.
	tasks.Close()

	results := NewResultQueue(o.config.WorkerCount * 2)

	// attemptCtx outlives ctx by the shutdown grace period so in-flight
	// extractions can finish naturally before being forcibly cancelled.
	attemptCtx, attemptCancel := context.WithCancel(context.Background())
	defer attemptCancel()
	go func() {
		select {
		case <-ctx.Done():
			t := time.NewTimer(o.config.ShutdownGrace)
			defer t.Stop()
			select {
			case <-t.C:
				o.logger.Warn("Shutdown grace expired, cancelling in-flight attempts")
				attemptCancel()
			case <-attemptCtx.Done():
			}
		case <-attemptCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.config.WorkerCount; i++ {
		worker := NewWorker(i, o.config, o.leases, o.extractor, tasks, results, o.logger)
		wg.Add(1)
		go func(w *Worker, id int) {
			defer wg.Done()
			if !sleepCtx(ctx, staggerDelay(id)) {
				return
			}
			w.Run(ctx, attemptCtx)
		}(worker, i)
	}

	// Single sentinel for the consumer: the result queue closes once all
	// workers have exited.
	go func() {
		wg.Wait()
		results.Close()
	}()

	finalErr := o.consume(results)

	now := time.Now()
	stats.EndTime = &now

	if err := o.store.Save(); err != nil {
		o.logger.WithError(err).Error("Final progress save failed")
		if finalErr == nil {
			finalErr = err
		}
	}
	if err := o.writer.Finalize(); err != nil {
		o.logger.WithError(err).Error("Batch finalization failed")
		if finalErr == nil {
			finalErr = err
		}
	}
	if err := o.writer.WriteFailed(o.store.Failed()); err != nil {
		o.logger.WithError(err).Error("Failure export failed")
		if finalErr == nil {
			finalErr = err
		}
	}
	if err := o.writer.WriteStatistics(stats); err != nil {
		o.logger.WithError(err).Error("Statistics export failed")
		if finalErr == nil {
			finalErr = err
		}
	}

	if ctx.Err() != nil {
		o.logger.Info("Shutdown complete, progress saved")
	}
	return stats, finalErr
}

// consume is the single result consumer: it owns all ProgressStore and
// Writer mutation, so neither needs locking beyond the save critical
// section.
func (o *Orchestrator) consume(results *ResultQueue) error {
	var firstErr error
	counter := 0

	for r := range results.Drain() {
		o.store.Record(r.Outcome())

		if r.Success() {
			if err := o.writer.Append(output.Entry{RUC: r.RUC, Lines: r.Lines}); err != nil {
				o.logger.WithError(err).WithField("ruc", r.RUC).Error("Writing result failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		counter++
		if counter >= o.config.CheckpointEvery {
			counter = 0
			if err := o.store.Save(); err != nil {
				o.logger.WithError(err).Error("Checkpoint save failed")
				if firstErr == nil {
					firstErr = err
				}
			}
			stats := o.store.Statistics()
			o.logger.WithFields(logrus.Fields{
				"processed":    stats.Processed,
				"total":        stats.TotalRUCs,
				"success_rate": fmt.Sprintf("%.1f%%", stats.SuccessRate()),
				"eta_min":      int(stats.ETASeconds() / 60),
			}).Info("Progress checkpoint")
		}
	}
	return firstErr
}

// staggerDelay returns the startup delay for a worker. Workers begin in
// overlapping waves instead of simultaneously, which breaks up the
// correlated burst a simultaneous start would produce.
func staggerDelay(workerID int) time.Duration {
	switch {
	case workerID < 4:
		return randDuration(0, 2*time.Second)
	case workerID < 8:
		return randDuration(2*time.Second, 5*time.Second)
	default:
		return randDuration(4*time.Second, 8*time.Second)
	}
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
