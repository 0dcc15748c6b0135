package mqtt

import (
	"testing"
)

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestOfflineQueueEmptyDrain(t *testing.T) {
	q := newOfflineQueue(10)
	got, dropped := q.drain()
	if got != nil || dropped != 0 {
		t.Errorf("expected nothing from empty drain, got %d items, %d dropped", len(got), dropped)
	}
}

func TestOfflineQueueKeepsOrder(t *testing.T) {
	q := newOfflineQueue(10)
	for i := 0; i < 5; i++ {
		q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{byte(i)}})
	}
	if q.len() != 5 {
		t.Fatalf("len: got %d, want 5", q.len())
	}

	got, _ := q.drain()
	if string(payloads(got)) != string([]byte{0, 1, 2, 3, 4}) {
		t.Errorf("order: got %v", payloads(got))
	}
	if q.len() != 0 {
		t.Errorf("queue should be empty after drain, len %d", q.len())
	}
	if again, _ := q.drain(); again != nil {
		t.Errorf("expected nil from second drain, got %d items", len(again))
	}
}

func TestOfflineQueueDropsActuationsFirst(t *testing.T) {
	q := newOfflineQueue(4)
	q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{0}})
	q.push(bufferedMsg{topic: "actuators", qos: 0, payload: []byte{1}})
	q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{2}})
	q.push(bufferedMsg{topic: "actuators", qos: 0, payload: []byte{3}})

	if first := q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{4}}); !first {
		t.Error("first drop should be reported")
	}
	if first := q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{5}}); first {
		t.Error("only the first drop should be reported")
	}

	got, dropped := q.drain()
	if string(payloads(got)) != string([]byte{0, 2, 4, 5}) {
		t.Errorf("kept: got %v, want [0 2 4 5]", payloads(got))
	}
	if dropped != 2 {
		t.Errorf("dropped: got %d, want 2", dropped)
	}
}

func TestOfflineQueueDropsOldestTransitionWhenNothingElse(t *testing.T) {
	q := newOfflineQueue(3)
	for i := 0; i < 5; i++ {
		q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{byte(i)}})
	}

	got, dropped := q.drain()
	if string(payloads(got)) != string([]byte{2, 3, 4}) {
		t.Errorf("kept: got %v, want [2 3 4]", payloads(got))
	}
	if dropped != 2 {
		t.Errorf("dropped: got %d, want 2", dropped)
	}
}

func TestOfflineQueueRetainedSupersedes(t *testing.T) {
	q := newOfflineQueue(10)
	q.push(bufferedMsg{topic: "system", qos: 1, retained: true, payload: []byte{0}})
	q.push(bufferedMsg{topic: "events", qos: 1, payload: []byte{1}})
	q.push(bufferedMsg{topic: "system", qos: 1, retained: true, payload: []byte{2}})
	q.push(bufferedMsg{topic: "system", qos: 1, payload: []byte{3}})

	got, dropped := q.drain()
	if string(payloads(got)) != string([]byte{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", payloads(got))
	}
	if dropped != 0 {
		t.Errorf("superseded retained messages are not drops, got %d", dropped)
	}
}

func TestOfflineQueueDropCountResetsOnDrain(t *testing.T) {
	q := newOfflineQueue(1)
	q.push(bufferedMsg{topic: "t", payload: []byte{0}})
	q.push(bufferedMsg{topic: "t", payload: []byte{1}})
	if _, dropped := q.drain(); dropped != 1 {
		t.Fatalf("dropped: got %d, want 1", dropped)
	}

	q.push(bufferedMsg{topic: "t", payload: []byte{2}})
	if first := q.push(bufferedMsg{topic: "t", payload: []byte{3}}); !first {
		t.Error("drop after drain should be reported as first again")
	}
}

func TestOfflineQueuePreservesFields(t *testing.T) {
	q := newOfflineQueue(5)
	q.push(bufferedMsg{
		topic:    "shop/dust/system",
		payload:  []byte(`{"system":{"event":"STARTUP"}}`),
		qos:      1,
		retained: true,
	})

	got, _ := q.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != "shop/dust/system" || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
	if string(m.payload) != `{"system":{"event":"STARTUP"}}` {
		t.Errorf("payload: got %s", m.payload)
	}
}
