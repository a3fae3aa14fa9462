// Package metrics provides job execution metrics for a worker pool.
//
// Metrics counts submitted, rejected, started, completed and panicked jobs,
// tracks busy and live workers, and samples job latency for average and P99
// reporting. Counters are atomic; latency samples are kept in a fixed-size
// ring so the P99 reflects recent jobs.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	m.RecordSubmitted()
//	m.JobStarted()
//	start := time.Now()
//	// ... run the job ...
//	m.JobFinished(time.Since(start), false)
//
//	snap := m.Snapshot()
//	fmt.Printf("completed: %d, P99: %v\n", snap.Completed, snap.P99Latency)
//
// # Prometheus
//
// Register exposes the counters as simple_server_pool_* metrics:
//
//	reg := prometheus.NewRegistry()
//	if err := m.Register(reg); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package metrics
