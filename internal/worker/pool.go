package worker

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"simple-server/internal/events"
	"simple-server/internal/jobqueue"
	"simple-server/internal/logger"
	"simple-server/internal/metrics"
)

const component = "pool"

// Job はワーカーが実行するジョブを表す
type Job = jobqueue.Job

var (
	// ErrInvalidSize はワーカー数が 0 以下のときに返される
	ErrInvalidSize = errors.New("pool size must be greater than zero")
	// ErrPoolClosed はシャットダウン開始後の Submit で返される
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrNilJob は nil のジョブを Submit したときに返される
	ErrNilJob = errors.New("job must not be nil")
)

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers int              // ワーカー数（1以上）
	Metrics    *metrics.Metrics // nil の場合は新規作成
	EventBus   *events.Bus      // nil の場合はイベントを発行しない
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers: runtime.NumCPU(),
	}
}

// instruments はプールとワーカーで共有する計測系
type instruments struct {
	metrics *metrics.Metrics
	bus     atomic.Pointer[events.Bus]
}

func (in *instruments) publish(event events.Event) {
	if bus := in.bus.Load(); bus != nil {
		bus.Publish(event)
	}
}

// Pool は固定数のワーカーとジョブキューの送信側を所有する
type Pool struct {
	workers []*Worker
	queue   *jobqueue.Queue
	in      *instruments

	// mu は closed の確認とキューへの送信を一体にする
	mu     sync.RWMutex
	closed bool

	shutdownOnce sync.Once
}

// New は size 個のワーカーを持つプールを作成する
func New(size int) (*Pool, error) {
	config := DefaultPoolConfig()
	config.NumWorkers = size
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
// 戻った時点で NumWorkers 個のワーカーが起動している
func NewPoolWithConfig(config PoolConfig) (*Pool, error) {
	if config.NumWorkers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, config.NumWorkers)
	}

	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}
	in := &instruments{metrics: m}
	if config.EventBus != nil {
		in.bus.Store(config.EventBus)
	}

	p := &Pool{
		workers: make([]*Worker, 0, config.NumWorkers),
		queue:   jobqueue.New(),
		in:      in,
	}
	for id := range config.NumWorkers {
		p.workers = append(p.workers, newWorker(id, p.queue, in))
	}

	logger.Info(component, "WorkerPool started with %d workers", config.NumWorkers)
	return p, nil
}

// SetEventBus はイベントバスを設定する
func (p *Pool) SetEventBus(bus *events.Bus) {
	p.in.bus.Store(bus)
}

// Submit はジョブをキューに追加する
//
// ジョブの開始や終了は待たない。シャットダウン開始後は ErrPoolClosed を返す。
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.in.metrics.RecordRejected()
		return ErrPoolClosed
	}

	if err := p.queue.Send(jobqueue.NewJob(job)); err != nil {
		p.in.metrics.RecordRejected()
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	p.in.metrics.RecordSubmitted()
	return nil
}

// Shutdown はワーカープールを停止する
//
// ワーカー数と同じ数の終了シグナルを送り、全ワーカーの停止を順に待つ。
// 受け付け済みのジョブはすべて実行されてから戻る。二度目以降の呼び出しは
// 最初の呼び出しが完了するまで待ってから戻る。
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(p.shutdown)
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	p.closed = true
	logger.Info(component, "Sending terminate message to all workers")
	for range p.workers {
		if err := p.queue.Send(jobqueue.Terminate()); err != nil {
			logger.Error(component, "Failed to send terminate message: %v", err)
		}
	}
	p.mu.Unlock()

	for _, w := range p.workers {
		logger.Info(component, "Shutting down worker %d", w.ID())
		w.Join()
	}

	p.queue.Close()
	p.in.publish(events.NewPoolShutdownEvent(len(p.workers)))
	logger.Info(component, "WorkerPool stopped")
}

// Close は Shutdown を呼び出す（defer pool.Close() 用）
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

// Closed はシャットダウンが開始されたかどうかを返す
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Size はワーカー数を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// Workers はワーカーの一覧を返す
func (p *Pool) Workers() []*Worker {
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	return workers
}

// Pending はキューに残っているメッセージ数を返す
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Metrics はメトリクスを返す
func (p *Pool) Metrics() *metrics.Metrics {
	return p.in.metrics
}

// RegisterMetrics はプールのメトリクスとキュー長を reg に登録する
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) error {
	if err := p.in.metrics.Register(reg); err != nil {
		return err
	}
	if err := reg.Register(metrics.QueueDepthCollector(p.Pending)); err != nil {
		return fmt.Errorf("failed to register queue depth: %w", err)
	}
	return nil
}
