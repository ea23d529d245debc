package pipeline

import (
	"sync"

	"depthrig-go/internal/types"
)

type MessageKind int

const (
	MessageData MessageKind = iota
	MessageEndOfStream
)

func (k MessageKind) String() string {
	switch k {
	case MessageData:
		return "data"
	case MessageEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Message is what travels from the capture worker to the display worker.
type Message struct {
	Kind  MessageKind
	Frame types.Frame
}

func Data(frame types.Frame) Message {
	return Message{Kind: MessageData, Frame: frame}
}

func EndOfStream() Message {
	return Message{Kind: MessageEndOfStream}
}

func (m Message) IsEndOfStream() bool {
	return m.Kind == MessageEndOfStream
}

// Queue is an unbounded FIFO for one producer and one consumer. Push never blocks.
type Queue struct {
	mu    sync.Mutex
	items []Message
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Push(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop returns the oldest message without waiting.
func (q *Queue) TryPop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return msg, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a push. A signal may be stale, so callers re-check TryPop.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
