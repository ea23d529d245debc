package pipeline

import (
	"testing"

	"depthrig-go/internal/types"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 1000; i++ {
		q.Push(Data(types.Frame{Seq: i}))
	}
	q.Push(EndOfStream())

	if q.Len() != 1001 {
		t.Fatalf("unexpected queue length: %d", q.Len())
	}
	for i := 0; i < 1000; i++ {
		msg, ok := q.TryPop()
		if !ok {
			t.Fatalf("queue empty at %d", i)
		}
		if msg.IsEndOfStream() || msg.Frame.Seq != i {
			t.Fatalf("message %d out of order: %+v", i, msg.Kind)
		}
	}
	msg, ok := q.TryPop()
	if !ok || !msg.IsEndOfStream() {
		t.Fatalf("expected end of stream last, got ok=%v kind=%s", ok, msg.Kind)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestQueueReadySignal(t *testing.T) {
	q := NewQueue()
	q.Push(Data(types.Frame{}))
	q.Push(Data(types.Frame{}))
	select {
	case <-q.Ready():
	default:
		t.Fatalf("expected ready signal after push")
	}
}
