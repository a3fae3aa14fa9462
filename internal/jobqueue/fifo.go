package jobqueue

type node[T any] struct {
	value T
	next  *node[T]
}

// fifo は連結リストによる容量無制限のキュー（同期は呼び出し側の責任）
type fifo[T any] struct {
	start, end *node[T]
	size       int
}

func (q *fifo[T]) push(value T) {
	n := &node[T]{value: value}
	if q.size == 0 {
		q.start = n
		q.end = n
	} else {
		q.end.next = n
		q.end = n
	}
	q.size++
}

// pop は先頭要素を取り出す。空の場合はゼロ値と false を返す
func (q *fifo[T]) pop() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}

	n := q.start
	if q.size == 1 {
		q.start = nil
		q.end = nil
	} else {
		q.start = n.next
	}
	q.size--
	return n.value, true
}

func (q *fifo[T]) len() int {
	return q.size
}
