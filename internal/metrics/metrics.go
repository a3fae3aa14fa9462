package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxLatencySamples = 1000

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99 計算に使うサンプル数（リングバッファ）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{MaxLatencySamples: defaultMaxLatencySamples}
}

// Metrics はジョブ実行のメトリクスを収集する
type Metrics struct {
	submitted      atomic.Uint64
	rejected       atomic.Uint64
	started        atomic.Uint64
	completed      atomic.Uint64
	panicked       atomic.Uint64
	exited         atomic.Uint64
	totalLatencyNs atomic.Uint64

	busyWorkers atomic.Int64
	liveWorkers atomic.Int64

	mu        sync.RWMutex
	startTime time.Time
	latencies []time.Duration
	next      int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	samples := config.MaxLatencySamples
	if samples <= 0 {
		samples = defaultMaxLatencySamples
	}
	return &Metrics{
		startTime: time.Now(),
		latencies: make([]time.Duration, 0, samples),
	}
}

// RecordSubmitted は受け付けたジョブを記録する
func (m *Metrics) RecordSubmitted() {
	m.submitted.Add(1)
}

// RecordRejected はシャットダウン後に拒否したジョブを記録する
func (m *Metrics) RecordRejected() {
	m.rejected.Add(1)
}

// JobStarted はワーカーがジョブの実行を開始したことを記録する
func (m *Metrics) JobStarted() {
	m.started.Add(1)
	m.busyWorkers.Add(1)
}

// Outcome はジョブの終わり方
type Outcome int

const (
	// OutcomeCompleted はジョブが正常に戻った
	OutcomeCompleted Outcome = iota
	// OutcomePanicked はジョブが panic した
	OutcomePanicked
	// OutcomeExited はジョブが runtime.Goexit でゴルーチンを終了させた
	OutcomeExited
)

// JobFinished はジョブの終了を記録する
func (m *Metrics) JobFinished(latency time.Duration, outcome Outcome) {
	m.busyWorkers.Add(-1)
	switch outcome {
	case OutcomePanicked:
		m.panicked.Add(1)
	case OutcomeExited:
		m.exited.Add(1)
	default:
		m.completed.Add(1)
	}
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	if len(m.latencies) < cap(m.latencies) {
		m.latencies = append(m.latencies, latency)
	} else {
		m.latencies[m.next] = latency
		m.next = (m.next + 1) % len(m.latencies)
	}
	m.mu.Unlock()
}

// WorkerStarted はワーカーの起動を記録する
func (m *Metrics) WorkerStarted() {
	m.liveWorkers.Add(1)
}

// WorkerStopped はワーカーの停止を記録する
func (m *Metrics) WorkerStopped() {
	m.liveWorkers.Add(-1)
}

// Submitted は受け付けたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Rejected は拒否したジョブ数を返す
func (m *Metrics) Rejected() uint64 {
	return m.rejected.Load()
}

// Started は実行を開始したジョブ数を返す
func (m *Metrics) Started() uint64 {
	return m.started.Load()
}

// Completed は正常終了したジョブ数を返す
func (m *Metrics) Completed() uint64 {
	return m.completed.Load()
}

// Panicked は panic したジョブ数を返す
func (m *Metrics) Panicked() uint64 {
	return m.panicked.Load()
}

// Exited は runtime.Goexit で終わったジョブ数を返す
func (m *Metrics) Exited() uint64 {
	return m.exited.Load()
}

// Finished は終了したジョブ数（正常終了 + panic + Goexit）を返す
func (m *Metrics) Finished() uint64 {
	return m.completed.Load() + m.panicked.Load() + m.exited.Load()
}

// BusyWorkers はジョブ実行中のワーカー数を返す
func (m *Metrics) BusyWorkers() int64 {
	return m.busyWorkers.Load()
}

// LiveWorkers は稼働中のワーカー数を返す
func (m *Metrics) LiveWorkers() int64 {
	return m.liveWorkers.Load()
}

// Throughput は開始からの平均ジョブ処理数/秒を返す
func (m *Metrics) Throughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.Finished()) / elapsed
}

// AverageLatency は平均ジョブ実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	finished := m.Finished()
	if finished == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / finished)
}

// P99Latency は直近サンプルの P99 実行時間を返す
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	sorted := slices.Clone(m.latencies)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted      uint64        `json:"submitted"`
	Rejected       uint64        `json:"rejected"`
	Started        uint64        `json:"started"`
	Completed      uint64        `json:"completed"`
	Panicked       uint64        `json:"panicked"`
	Exited         uint64        `json:"exited"`
	BusyWorkers    int64         `json:"busy_workers"`
	LiveWorkers    int64         `json:"live_workers"`
	Throughput     float64       `json:"throughput"`
	AverageLatency time.Duration `json:"average_latency_ns"`
	P99Latency     time.Duration `json:"p99_latency_ns"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:      m.Submitted(),
		Rejected:       m.Rejected(),
		Started:        m.Started(),
		Completed:      m.Completed(),
		Panicked:       m.Panicked(),
		Exited:         m.Exited(),
		BusyWorkers:    m.BusyWorkers(),
		LiveWorkers:    m.LiveWorkers(),
		Throughput:     m.Throughput(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		Elapsed:        time.Since(m.startTime),
	}
}
