package worker

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"simple-server/internal/events"
	"simple-server/internal/jobqueue"
	"simple-server/internal/logger"
	"simple-server/internal/metrics"
)

// State はワーカーの状態を表す
type State int32

const (
	// StateRunning はメッセージ待ち、またはジョブ実行中
	StateRunning State = iota
	// StateStopped はゴルーチンが終了した
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Worker はキューからメッセージを受け取って実行するゴルーチン1つ
type Worker struct {
	id     int
	name   string
	state  atomic.Int32
	done   chan struct{}
	joined atomic.Bool
}

// newWorker はワーカーを作成し、ゴルーチンを1つ起動する
func newWorker(id int, queue *jobqueue.Queue, in *instruments) *Worker {
	w := &Worker{
		id:   id,
		name: fmt.Sprintf("worker-%d", id),
		done: make(chan struct{}),
	}
	in.metrics.WorkerStarted()
	go w.run(queue, in, false)
	return w
}

// ID はワーカー番号（0..size-1）を返す
func (w *Worker) ID() int {
	return w.id
}

// State は現在の状態を返す
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Join はワーカーが停止するまでブロックする
//
// 1つのワーカーにつき一度だけ呼び出せる。二度目の呼び出しはプログラミング
// エラーであり panic する。
func (w *Worker) Join() {
	if !w.joined.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("worker: %s joined more than once", w.name))
	}
	<-w.done
}

// run はワーカーのメインループ
//
// ジョブが runtime.Goexit を呼ぶとゴルーチンごと巻き戻される。その場合は
// 停止扱いにせず、同じワーカーとして新しいゴルーチンで受信を続ける。
func (w *Worker) run(queue *jobqueue.Queue, in *instruments, resumed bool) {
	stopped := false
	defer func() {
		if !stopped {
			logger.Warn(w.name, "Worker %d resuming on a new goroutine", w.id)
			go w.run(queue, in, true)
			return
		}
		w.state.Store(int32(StateStopped))
		in.metrics.WorkerStopped()
		in.publish(events.NewWorkerStoppedEvent(w.id))
		close(w.done)
	}()

	if !resumed {
		in.publish(events.NewWorkerReadyEvent(w.id))
	}

	for {
		msg, err := queue.Receive()
		if err != nil {
			logger.Warn(w.name, "Worker %d stopping: %v", w.id, err)
			stopped = true
			return
		}

		if msg.IsTerminate() {
			logger.Debug(w.name, "Worker %d was told to terminate", w.id)
			stopped = true
			return
		}

		logger.Debug(w.name, "Worker %d received job", w.id)
		w.execute(msg.Job(), in)
	}
}

// execute はジョブを実行する。panic はここで回収し、ワーカーは生き残る
func (w *Worker) execute(job jobqueue.Job, in *instruments) {
	start := time.Now()
	in.metrics.JobStarted()

	returned := false
	defer func() {
		if returned {
			in.metrics.JobFinished(time.Since(start), metrics.OutcomeCompleted)
			return
		}

		// panic(nil) も *runtime.PanicNilError になるので、nil は Goexit のみ
		if r := recover(); r != nil {
			logger.Error(w.name, "Job panicked: %v\n%s", r, debug.Stack())
			in.publish(events.NewJobPanickedEvent(w.id, r))
			in.metrics.JobFinished(time.Since(start), metrics.OutcomePanicked)
			return
		}

		logger.Error(w.name, "Job exited via runtime.Goexit")
		in.publish(events.NewJobExitedEvent(w.id))
		in.metrics.JobFinished(time.Since(start), metrics.OutcomeExited)
	}()

	job()
	returned = true
}
