package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "simple_server"
	subsystem = "pool"
)

func counterFunc(name, help string, f func() uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(f()) })
}

func gaugeFunc(name, help string, f func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, f)
}

// Collectors はメトリクスを Prometheus のコレクタとして返す
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		counterFunc("jobs_submitted_total", "Total number of jobs accepted by the pool", m.Submitted),
		counterFunc("jobs_rejected_total", "Total number of jobs rejected after shutdown began", m.Rejected),
		counterFunc("jobs_started_total", "Total number of jobs picked up by a worker", m.Started),
		counterFunc("jobs_completed_total", "Total number of jobs that returned normally", m.Completed),
		counterFunc("jobs_panicked_total", "Total number of jobs that panicked", m.Panicked),
		counterFunc("jobs_exited_total", "Total number of jobs that ended their goroutine with runtime.Goexit", m.Exited),
		gaugeFunc("busy_workers", "Number of workers currently running a job",
			func() float64 { return float64(m.BusyWorkers()) }),
		gaugeFunc("live_workers", "Number of worker goroutines that have not stopped",
			func() float64 { return float64(m.LiveWorkers()) }),
		gaugeFunc("job_latency_p99_seconds", "P99 job run time over recent samples",
			func() float64 { return m.P99Latency().Seconds() }),
	}
}

// QueueDepthCollector はキューに残っているメッセージ数のゲージを作成する
func QueueDepthCollector(depth func() int) prometheus.Collector {
	return gaugeFunc("queue_depth", "Number of messages waiting in the job queue",
		func() float64 { return float64(depth()) })
}

// Register はコレクタを reg に登録する
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
	}
	return nil
}
