package jobqueue

import (
	"errors"
	"sync"
)

// ErrClosed はクローズ済みのキューに対する操作で返される
var ErrClosed = errors.New("job queue is closed")

// Queue は複数の送信者と複数の受信者で共有される無制限 FIFO キュー
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  fifo[Message]
	closed bool
}

// New は空のキューを作成する
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send はメッセージを末尾に追加する。容量による待機は発生しない
func (q *Queue) Send(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items.push(msg)
	// 待機中の受信者を1つだけ起こす。メッセージ1つにつき受信者1つで足りる
	q.cond.Signal()
	return nil
}

// Receive はメッセージが届くまでブロックし、先頭のメッセージを取り出す
//
// 待機中はロックを手放すため、複数の受信者が同時に待つことができる。
// キューがクローズされ、かつ空の場合は ErrClosed を返す。
func (q *Queue) Receive() (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.len() == 0 && !q.closed {
		q.cond.Wait()
	}

	msg, ok := q.items.pop()
	if !ok {
		return Message{}, ErrClosed
	}
	return msg, nil
}

// Close はキューをクローズし、待機中の受信者をすべて起こす
// 残っているメッセージは引き続き受信できる
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed はクローズ済みかどうかを返す
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len は未受信のメッセージ数を返す
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.len()
}
