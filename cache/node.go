package cache

// node is a link of the engine's recency list. The list owns its nodes;
// an Entry keeps only a handle to its node for O(1) removal.
type node[V any] struct {
	prev  *node[V]
	next  *node[V]
	entry *Entry[V]
}

// recencyList orders promoted entries: head is the most recently promoted,
// tail is the next eviction candidate. It is not safe for concurrent use;
// the engine guards it with its list mutex.
type recencyList[V any] struct {
	head *node[V]
	tail *node[V]
	len  int
}

// pushFront links e at the head in O(1) and returns its handle.
func (l *recencyList[V]) pushFront(e *Entry[V]) *node[V] {
	n := &node[V]{entry: e, next: l.head}
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
	return n
}

// moveToFront promotes n to the head in O(1).
func (l *recencyList[V]) moveToFront(n *node[V]) {
	if n == l.head {
		return
	}
	l.unlink(n)
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

// remove detaches n from the list in O(1).
func (l *recencyList[V]) remove(n *node[V]) {
	l.unlink(n)
	l.len--
}

func (l *recencyList[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// back returns the tail node, or nil if the list is empty.
func (l *recencyList[V]) back() *node[V] { return l.tail }

// reset empties the list.
func (l *recencyList[V]) reset() {
	l.head, l.tail, l.len = nil, nil, 0
}
