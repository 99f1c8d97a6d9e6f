package broadcast

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrBufferFull is returned when a subscriber has not drained its buffer.
	ErrBufferFull = errors.New("subscriber buffer full")
	// ErrClosed is returned when the subscriber's transport is gone.
	ErrClosed = errors.New("subscriber closed")
)

// Subscriber is the sending half of one event-stream connection.
// Frames are buffered up to a fixed capacity; sends never block.
type Subscriber struct {
	id     uuid.UUID
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSubscriber(buffer int) *Subscriber {
	return &Subscriber{
		id:     uuid.New(),
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// ID identifies the subscriber in logs.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Frames yields encoded event-stream frames in send order.
func (s *Subscriber) Frames() <-chan []byte { return s.frames }

// Done is closed once the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close marks the transport as gone. Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// Send queues one frame for this subscriber only.
func (s *Subscriber) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// DataFrame encodes payload as an event-stream data frame.
func DataFrame(payload []byte) []byte {
	var b bytes.Buffer
	for _, line := range bytes.Split(payload, []byte("\n")) {
		b.WriteString("data: ")
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// CommentFrame encodes text as an event-stream comment. Clients ignore comments.
func CommentFrame(text string) []byte {
	return []byte(": " + text + "\n\n")
}
