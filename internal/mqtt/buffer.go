package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue holds messages published while the broker is unreachable.
//
// A retained message replaces any older retained message on the same topic,
// since the broker would only keep the latest one anyway. When the queue is
// full the oldest QoS 0 message (an actuation) is dropped first; tool
// transitions are only dropped when nothing else is left.
//
// Not safe for concurrent use: the caller must synchronize.
type offlineQueue struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // messages discarded since the last drain
}

func newOfflineQueue(capacity int) *offlineQueue {
	return &offlineQueue{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

// push queues msg. It returns true the first time a message is dropped
// since the last drain.
func (q *offlineQueue) push(msg bufferedMsg) bool {
	if msg.retained {
		for i, m := range q.msgs {
			if m.retained && m.topic == msg.topic {
				q.remove(i)
				break
			}
		}
	}

	first := false
	if len(q.msgs) == q.capacity {
		q.remove(q.victim())
		first = q.dropped == 0
		q.dropped++
	}
	q.msgs = append(q.msgs, msg)
	return first
}

// victim picks the index to discard from a full queue.
func (q *offlineQueue) victim() int {
	for i, m := range q.msgs {
		if m.qos == 0 {
			return i
		}
	}
	return 0
}

func (q *offlineQueue) remove(i int) {
	copy(q.msgs[i:], q.msgs[i+1:])
	q.msgs = q.msgs[:len(q.msgs)-1]
}

// drain returns the queued messages oldest first and how many were dropped,
// then empties the queue.
func (q *offlineQueue) drain() ([]bufferedMsg, int) {
	dropped := q.dropped
	q.dropped = 0
	if len(q.msgs) == 0 {
		return nil, dropped
	}
	out := make([]bufferedMsg, len(q.msgs))
	copy(out, q.msgs)
	q.msgs = q.msgs[:0]
	return out, dropped
}

func (q *offlineQueue) len() int {
	return len(q.msgs)
}
