package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getResult struct {
	delivery amqp.Delivery
	ok       bool
	err      error
}

type published struct {
	queue string
	msg   amqp.Publishing
}

// fakeBroker replays scripted basic.get results, then reports an empty queue
type fakeBroker struct {
	mu         sync.Mutex
	script     []getResult
	gets       int
	acks       []uint64
	nacks      map[uint64]bool
	published  []published
	publishErr error
}

func newFakeBroker(script ...getResult) *fakeBroker {
	return &fakeBroker{script: script, nacks: make(map[uint64]bool)}
}

func (b *fakeBroker) Get(string) (amqp.Delivery, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gets++
	if len(b.script) == 0 {
		return amqp.Delivery{}, false, nil
	}
	r := b.script[0]
	b.script = b.script[1:]
	return r.delivery, r.ok, r.err
}

func (b *fakeBroker) Ack(tag uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks = append(b.acks, tag)
	return nil
}

func (b *fakeBroker) Nack(tag uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacks[tag] = requeue
	return nil
}

func (b *fakeBroker) PublishToQueue(_ context.Context, queue string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{queue: queue, msg: msg})
	return nil
}

func delivery(tag uint64, body string) getResult {
	return getResult{
		delivery: amqp.Delivery{MessageId: body, DeliveryTag: tag, Body: []byte(body)},
		ok:       true,
	}
}

var (
	empty   = getResult{}
	errDown = errors.New("channel closed")
)

func TestRabbitQueue_Receive(t *testing.T) {
	tests := []struct {
		name     string
		script   []getResult
		max      int
		wait     time.Duration
		canceled bool
		wantIDs  []string
		wantErr  error
		wantGets int
	}{
		{
			name:     "stops at max batch",
			script:   []getResult{delivery(1, "a"), delivery(2, "b"), delivery(3, "c")},
			max:      2,
			wantIDs:  []string{"a", "b"},
			wantGets: 2,
		},
		{
			name:     "returns partial batch on error",
			script:   []getResult{delivery(1, "a"), {err: errDown}},
			max:      10,
			wantIDs:  []string{"a"},
			wantGets: 2,
		},
		{
			name:     "error with nothing received",
			script:   []getResult{{err: errDown}},
			max:      10,
			wantErr:  errDown,
			wantGets: 1,
		},
		{
			name:     "polls until a message arrives",
			script:   []getResult{empty, empty, delivery(7, "late")},
			max:      10,
			wait:     time.Second,
			wantIDs:  []string{"late"},
			wantGets: 4,
		},
		{
			name:    "empty after deadline",
			max:     10,
			wait:    20 * time.Millisecond,
			wantIDs: nil,
		},
		{
			name:     "context canceled while waiting",
			max:      10,
			wait:     time.Minute,
			canceled: true,
			wantErr:  context.Canceled,
			wantGets: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := newFakeBroker(tt.script...)
			q := NewRabbitQueue(broker, "jobs", "")
			q.pollInterval = 5 * time.Millisecond

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.canceled {
				cancel()
			}

			msgs, err := q.Receive(ctx, tt.max, tt.wait)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, msgs)
			} else {
				require.NoError(t, err)
				var ids []string
				for _, m := range msgs {
					ids = append(ids, m.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
			}
			if tt.wantGets > 0 {
				assert.Equal(t, tt.wantGets, broker.gets)
			}
		})
	}
}

func TestRabbitQueue_Release(t *testing.T) {
	t.Run("parks message on retry queue", func(t *testing.T) {
		ctx := context.Background()
		broker := newFakeBroker(delivery(1, "a"))
		q := NewRabbitQueue(broker, "jobs", "jobs.retry")

		msgs, err := q.Receive(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.False(t, msgs[0].Redelivered)

		require.NoError(t, q.Release(ctx, msgs[0]))

		require.Len(t, broker.published, 1)
		parked := broker.published[0]
		assert.Equal(t, "jobs.retry", parked.queue)
		assert.Equal(t, "a", parked.msg.MessageId)
		assert.Equal(t, []byte("a"), parked.msg.Body)
		assert.Equal(t, int32(1), parked.msg.Headers[releaseCountHeader])
		assert.Equal(t, []uint64{1}, broker.acks)
		assert.Empty(t, broker.nacks)
	})

	t.Run("returned message counts as redelivered", func(t *testing.T) {
		ctx := context.Background()
		returned := delivery(2, "a")
		returned.delivery.Headers = amqp.Table{releaseCountHeader: int32(1)}
		broker := newFakeBroker(returned)
		q := NewRabbitQueue(broker, "jobs", "jobs.retry")

		msgs, err := q.Receive(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].Redelivered)

		require.NoError(t, q.Release(ctx, msgs[0]))
		require.Len(t, broker.published, 1)
		assert.Equal(t, int32(2), broker.published[0].msg.Headers[releaseCountHeader])
	})

	t.Run("requeues when park fails", func(t *testing.T) {
		broker := newFakeBroker()
		broker.publishErr = errDown
		q := NewRabbitQueue(broker, "jobs", "jobs.retry")

		err := q.Release(context.Background(), Message{ID: "a", Receipt: 3})
		require.ErrorIs(t, err, errDown)
		assert.Empty(t, broker.acks)
		assert.Equal(t, map[uint64]bool{3: true}, broker.nacks)
	})

	t.Run("requeues without retry queue", func(t *testing.T) {
		broker := newFakeBroker()
		q := NewRabbitQueue(broker, "jobs", "")

		require.NoError(t, q.Release(context.Background(), Message{Receipt: 4}))
		assert.Empty(t, broker.published)
		assert.Equal(t, map[uint64]bool{4: true}, broker.nacks)
	})
}

func TestRabbitQueue_DeleteAndReject(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker()
	q := NewRabbitQueue(broker, "jobs", "jobs.retry")

	require.NoError(t, q.Delete(ctx, Message{Receipt: 1}))
	require.NoError(t, q.Reject(ctx, Message{Receipt: 2}))

	assert.Equal(t, []uint64{1}, broker.acks)
	assert.Equal(t, map[uint64]bool{2: false}, broker.nacks)
}
