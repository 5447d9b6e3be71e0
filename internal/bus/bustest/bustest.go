// Package bustest is an in-memory notification bus for tests. Queues track
// visibility the way a broker does: received messages are in flight until
// deleted, released or rejected.
package bustest

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/google/uuid"
)

// Bus routes sent bodies to every queue bound to the topic
type Bus struct {
	mu       sync.Mutex
	queues   map[string]*Queue
	bindings map[string][]*Queue
	sendErr  error
}

// New creates an empty Bus
func New() *Bus {
	return &Bus{
		queues:   make(map[string]*Queue),
		bindings: make(map[string][]*Queue),
	}
}

// Queue returns the named queue, creating it and binding it to topics
func (b *Bus) Queue(name string, topics ...string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = &Queue{name: name, inflight: make(map[uint64]bus.Message)}
		b.queues[name] = q
	}
	for _, topic := range topics {
		b.bindings[topic] = append(b.bindings[topic], q)
	}
	return q
}

// FailSends makes every following Send return err. A nil err restores delivery.
func (b *Bus) FailSends(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// Send implements bus.Sender. Topics without a bound queue drop the message.
func (b *Bus) Send(_ context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendErr != nil {
		return b.sendErr
	}
	for _, q := range b.bindings[topic] {
		q.push(body)
	}
	return nil
}

// Queue is an in-memory bus.Queue
type Queue struct {
	name string

	mu           sync.Mutex
	next         uint64
	visible      []bus.Message
	parked       []parkedMessage
	releaseDelay time.Duration
	inflight     map[uint64]bus.Message
	dead         []bus.Message
	deleted      int
}

type parkedMessage struct {
	msg bus.Message
	due time.Time
}

var _ bus.Queue = (*Queue)(nil)

func (q *Queue) push(body []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.next++
	q.visible = append(q.visible, bus.Message{
		ID:      uuid.NewString(),
		Body:    append([]byte(nil), body...),
		Receipt: q.next,
	})
}

// Push enqueues a raw body directly, bypassing topics
func (q *Queue) Push(body []byte) {
	q.push(body)
}

// Receive returns visible messages, polling until wait elapses when empty
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]bus.Message, error) {
	deadline := time.Now().Add(wait)
	for {
		if batch := q.take(max); len(batch) > 0 || !time.Now().Before(deadline) {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// SetReleaseDelay keeps released messages invisible for d, like a broker
// retry queue with a message TTL
func (q *Queue) SetReleaseDelay(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseDelay = d
}

// promote moves parked messages whose delay has passed back to visible.
// Callers hold q.mu.
func (q *Queue) promote() {
	now := time.Now()
	kept := q.parked[:0]
	for _, p := range q.parked {
		if now.Before(p.due) {
			kept = append(kept, p)
			continue
		}
		q.visible = append(q.visible, p.msg)
	}
	q.parked = kept
}

func (q *Queue) take(max int) []bus.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promote()

	n := min(max, len(q.visible))
	batch := make([]bus.Message, n)
	copy(batch, q.visible[:n])
	q.visible = q.visible[n:]
	for _, msg := range batch {
		q.inflight[msg.Receipt] = msg
	}
	return batch
}

// Delete removes an in-flight message
func (q *Queue) Delete(_ context.Context, msg bus.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[msg.Receipt]; ok {
		delete(q.inflight, msg.Receipt)
		q.deleted++
	}
	return nil
}

// Release makes an in-flight message visible again once the release
// delay has passed
func (q *Queue) Release(_ context.Context, msg bus.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if m, ok := q.inflight[msg.Receipt]; ok {
		delete(q.inflight, msg.Receipt)
		m.Redelivered = true
		if q.releaseDelay > 0 {
			q.parked = append(q.parked, parkedMessage{msg: m, due: time.Now().Add(q.releaseDelay)})
		} else {
			q.visible = append(q.visible, m)
		}
	}
	return nil
}

// Reject moves an in-flight message to the dead list
func (q *Queue) Reject(_ context.Context, msg bus.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if m, ok := q.inflight[msg.Receipt]; ok {
		delete(q.inflight, msg.Receipt)
		q.dead = append(q.dead, m)
	}
	return nil
}

// Visible returns a snapshot of the messages waiting to be received
func (q *Queue) Visible() []bus.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promote()
	return append([]bus.Message(nil), q.visible...)
}

// InFlight returns the number of received but unsettled messages
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Dead returns the rejected messages
func (q *Queue) Dead() []bus.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]bus.Message(nil), q.dead...)
}

// Deleted returns how many messages were deleted
func (q *Queue) Deleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deleted
}
