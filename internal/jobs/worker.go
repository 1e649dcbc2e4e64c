package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxBackoffFactor caps the delay after repeated failures at this many intervals.
const maxBackoffFactor = 8

// JobProcessor runs one pass of a periodic job.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor every interval until stopped. After a failed pass the next one is delayed
// exponentially, up to maxBackoffFactor intervals; a successful pass restores the interval.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration
	backoff   *backoff.ExponentialBackOff

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval * maxBackoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		backoff:   b,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs one pass immediately and then keeps going until Stop or ctx cancellation.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	log.Printf("%s: worker started with interval %v", w.name, w.interval)
	timer := time.NewTimer(w.pass(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s: worker stopped: stop signal received", w.name)
			return
		case <-timer.C:
			timer.Reset(w.pass(ctx))
		}
	}
}

// pass runs the processor once and returns the delay before the next pass.
func (w *Worker) pass(ctx context.Context) time.Duration {
	if err := w.runProcessor(ctx); err != nil {
		delay := w.backoff.NextBackOff()
		log.Printf("%s: pass failed, retrying in %v: %v", w.name, delay, err)
		return delay
	}
	w.backoff.Reset()
	return w.interval
}

func (w *Worker) runProcessor(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.ProcessJobs(ctx)
}

// Stop signals the worker and waits for the current pass to finish. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	log.Printf("%s: worker shutdown complete", w.name)
}
