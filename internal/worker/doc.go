// Package worker provides a fixed-size goroutine pool for fire-and-forget
// job execution.
//
// A Pool owns a fixed number of Workers and the sending side of a shared,
// unbounded job queue. Each Worker runs one goroutine that repeatedly takes
// the next message from the queue: a job is run to completion on that
// goroutine, a terminate signal stops the worker.
//
// # Basic Usage
//
//	pool, err := worker.New(4) // 4 workers
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	for i := 0; i < 100; i++ {
//	    if err := pool.Submit(func() {
//	        // do work
//	    }); err != nil {
//	        return err
//	    }
//	}
//
// # Configuration
//
// Use NewPoolWithConfig to share metrics or an event bus:
//
//	config := worker.PoolConfig{
//	    NumWorkers: 8,
//	    Metrics:    metrics.New(),
//	    EventBus:   bus,
//	}
//	pool, err := worker.NewPoolWithConfig(config)
//
// # Shutdown
//
// Shutdown stops accepting jobs, sends exactly one terminate signal per
// worker, and joins the workers one after another. Any worker may consume any
// terminate signal; because there is one per worker and each worker stops
// after its first, every worker stops exactly once. Jobs accepted before
// Shutdown began are queued ahead of the terminate signals, so they all run
// before Shutdown returns. Shutdown is idempotent.
//
// # Failing Jobs
//
// A job that panics is recovered on its worker, logged with its stack, and
// counted; the worker keeps serving the queue. A job that ends its goroutine
// with runtime.Goexit is counted separately and the worker resumes on a fresh
// goroutine, so the pool never shrinks.
package worker
