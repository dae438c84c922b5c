package channel

// A queue is a singly linked FIFO list. It is not safe for concurrent use.
type queue[T any] struct {
	head, tail *node[T]
	len        int
}

type node[T any] struct {
	value T
	next  *node[T]
}

func (q *queue[T]) push(v T) {
	n := &node[T]{value: v}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.len++
}

// pop removes the front value. It must not be called on an empty queue.
func (q *queue[T]) pop() T {
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.len--
	return n.value
}
