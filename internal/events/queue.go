package events

// Queue holds the events awaiting delivery to a single robot in arrival order.
type Queue struct {
	items []Event
}

// Push appends an event. Nil events are ignored.
func (q *Queue) Push(ev Event) {
	if q == nil || ev == nil {
		return
	}
	q.items = append(q.items, ev)
}

// Drain removes and returns every queued event in arrival order.
func (q *Queue) Drain() []Event {
	if q == nil || len(q.items) == 0 {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}

// Len reports how many events are waiting.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// Clear discards every queued event.
func (q *Queue) Clear() {
	if q == nil {
		return
	}
	q.items = nil
}
