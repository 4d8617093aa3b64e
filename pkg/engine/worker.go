package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/proxy"
)

// Worker pulls tasks from the task queue and drives them to a terminal
// result: extract under a proxy lease, classify failures, retry with
// backoff and a fresh identity, and push exactly one Result per dequeued
// task. A worker owns at most one lease at a time and releases it on exit.
type Worker struct {
	id        int
	config    *Config
	leases    *proxy.Manager
	extractor extract.Extractor
	tasks     *TaskQueue
	results   *ResultQueue
	logger    *logrus.Logger

	lease     *proxy.Lease
	processed int
}

// NewWorker wires a worker to its queues and collaborators.
func NewWorker(id int, config *Config, leases *proxy.Manager, extractor extract.Extractor, tasks *TaskQueue, results *ResultQueue, logger *logrus.Logger) *Worker {
	return &Worker{
		id:        id,
		config:    config,
		leases:    leases,
		extractor: extractor,
		tasks:     tasks,
		results:   results,
		logger:    logger,
	}
}

// Run is the worker loop. ctx is the cooperative stop signal, polled
// between tasks and between retry attempts. attemptCtx governs the
// extraction calls themselves and outlives ctx by the shutdown grace
// period, so an in-flight attempt can finish naturally before it is
// forcibly cancelled.
func (w *Worker) Run(ctx, attemptCtx context.Context) {
	w.logger.WithField("worker_id", w.id).Debug("Worker started")

	defer func() {
		w.leases.Release(w.lease)
		w.lease = nil
		w.logger.WithFields(logrus.Fields{
			"worker_id": w.id,
			"processed": w.processed,
		}).Info("Worker stopped")
	}()

	for {
		task, ok := w.tasks.Get(ctx)
		if !ok {
			return
		}

		result, emitted := w.process(ctx, attemptCtx, task)
		if emitted {
			w.results.Put(result)
			w.processed++
		}

		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, w.interTaskDelay()) {
			return
		}
	}
}

// process runs the retry sub-loop for one task. It returns emitted=false
// only when shutdown interrupts the loop before a terminal outcome; the
// task is then left unrecorded and picked up again on the next run, which
// keeps the failure ledger meaning "all attempts exhausted".
func (w *Worker) process(ctx, attemptCtx context.Context, task Task) (Result, bool) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= w.config.Retry.MaxAttempts; attempt++ {
		lines, err := w.attempt(attemptCtx, task.ID)
		if err == nil {
			w.logger.WithFields(logrus.Fields{
				"worker_id": w.id,
				"ruc":       task.ID,
				"lines":     len(lines),
				"attempt":   attempt,
			}).Info("RUC extracted")
			return Result{
				RUC:       task.ID,
				Status:    StatusSuccess,
				Lines:     lines,
				Attempts:  attempt,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}, true
		}

		lastErr = err
		kind := extract.Classify(err)

		if !w.config.Retry.ShouldRetry(attempt) {
			break
		}
		if ctx.Err() != nil {
			return Result{}, false
		}

		delay := w.config.Retry.Delay(attempt)
		w.logger.WithFields(logrus.Fields{
			"worker_id":  w.id,
			"ruc":        task.ID,
			"attempt":    attempt,
			"error_kind": string(kind),
			"backoff":    delay.String(),
		}).Warn("Attempt failed, retrying with fresh session")

		if !sleepCtx(ctx, delay) {
			return Result{}, false
		}
		w.rotateLease(ctx)
	}

	kind := extract.Classify(lastErr)
	w.logger.WithFields(logrus.Fields{
		"worker_id":  w.id,
		"ruc":        task.ID,
		"error_kind": string(kind),
		"attempts":   w.config.Retry.MaxAttempts,
	}).Error("RUC failed after all attempts")

	msg := ""
	if lastErr != nil {
		msg = extract.Truncate(lastErr.Error(), 500)
	}
	return Result{
		RUC:          task.ID,
		Status:       StatusFailed,
		ErrorKind:    kind,
		ErrorMessage: msg,
		Attempts:     w.config.Retry.MaxAttempts,
		Duration:     time.Since(start),
		Timestamp:    time.Now(),
	}, true
}

// attempt makes a single extraction invocation under a live lease. A panic
// inside the extraction surface is caught here and surfaced as a terminal
// extraction-crash error rather than taking the worker down.
func (w *Worker) attempt(ctx context.Context, ruc string) (lines []extract.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = extract.NewError(extract.KindExtractionCrash,
				fmt.Sprintf("extraction panicked: %v", r), nil)
		}
	}()

	if err := w.ensureLease(ctx); err != nil {
		return nil, extract.NewError(extract.KindSessionError, "could not acquire proxy session", err)
	}
	if !w.lease.Use() {
		return nil, extract.NewError(extract.KindSessionError, "proxy session expired mid-claim", nil)
	}

	return w.extractor.Extract(ctx, w.lease, ruc)
}

// ensureLease acquires a session if the worker has none or the usage cap
// was reached.
func (w *Worker) ensureLease(ctx context.Context) error {
	if w.lease != nil && !w.lease.Expired() {
		return nil
	}
	w.leases.Release(w.lease)
	lease, err := w.leases.Acquire(ctx, w.id)
	if err != nil {
		w.lease = nil
		return err
	}
	w.lease = lease
	return nil
}

// rotateLease forces a fresh identity before a retry. On rotation failure
// the worker continues without a lease; the next attempt acquires one and
// classifies any acquire failure as a session error.
func (w *Worker) rotateLease(ctx context.Context) {
	if w.lease == nil {
		return
	}
	lease, err := w.leases.Rotate(ctx, w.lease)
	if err != nil {
		w.lease = nil
		return
	}
	w.lease = lease
}

// interTaskDelay returns a uniform random delay in the configured range.
func (w *Worker) interTaskDelay() time.Duration {
	min, max := w.config.MinTaskDelay, w.config.MaxTaskDelay
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// sleepCtx sleeps for d or until the context is cancelled, reporting
// whether the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
