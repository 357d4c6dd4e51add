package mailbox

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
}

func TestMailbox_PublishAssignsMonotonicIDsPerRecipient(t *testing.T) {
	m := New(DefaultOptions)

	assert.EqualValues(t, 1, m.Publish("a", payload(1)))
	assert.EqualValues(t, 2, m.Publish("a", payload(2)))
	// ids are scoped per recipient, not global
	assert.EqualValues(t, 1, m.Publish("b", payload(1)))
}

func TestMailbox_SubscribeReplaysPastCursorInOrder(t *testing.T) {
	m := New(DefaultOptions)
	for i := 1; i <= 5; i++ {
		m.Publish("a", payload(i))
	}

	var got []uint64
	m.Subscribe("a", 2, func(_ json.RawMessage, msgID uint64) {
		got = append(got, msgID)
	})
	require.Equal(t, []uint64{3, 4, 5}, got)
}

func TestMailbox_LiveDeliveryAfterReplay(t *testing.T) {
	m := New(DefaultOptions)
	m.Publish("a", payload(1))

	var got []uint64
	unsubscribe := m.Subscribe("a", 0, func(_ json.RawMessage, msgID uint64) {
		got = append(got, msgID)
	})

	m.Publish("a", payload(2))
	m.Publish("a", payload(3))
	require.Equal(t, []uint64{1, 2, 3}, got)

	unsubscribe()
	m.Publish("a", payload(4))
	require.Equal(t, []uint64{1, 2, 3}, got, "detached subscriber must not receive")

	// buffer survives unsubscribe for future replays
	var replay []uint64
	m.Subscribe("a", 0, func(_ json.RawMessage, msgID uint64) {
		replay = append(replay, msgID)
	})
	require.Equal(t, []uint64{1, 2, 3, 4}, replay)
}

func TestMailbox_ConcurrentPublishersNoGapsOrDuplicates(t *testing.T) {
	m := New(DefaultOptions)

	seen := make(map[uint64]int)
	var mu sync.Mutex
	m.Subscribe("a", 0, func(_ json.RawMessage, msgID uint64) {
		mu.Lock()
		seen[msgID]++
		mu.Unlock()
	})

	const publishers = 8
	const perPublisher = 50
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				m.Publish("a", payload(i))
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, publishers*perPublisher)
	for id, count := range seen {
		require.Equal(t, 1, count, "message %d delivered %d times", id, count)
	}
}

func TestMailbox_MaxMessagesDropsOldestOnly(t *testing.T) {
	m := New(Options{MaxMessages: 3, MaxAge: time.Hour})
	for i := 1; i <= 5; i++ {
		m.Publish("a", payload(i))
	}

	assert.Equal(t, 3, m.Len("a"))

	var got []uint64
	m.Subscribe("a", 0, func(_ json.RawMessage, msgID uint64) {
		got = append(got, msgID)
	})
	// the oldest two fell off; the rest keep their ids and order
	require.Equal(t, []uint64{3, 4, 5}, got)
}

func TestMailbox_PruneDropsAgedMessages(t *testing.T) {
	m := New(Options{MaxMessages: 100, MaxAge: 10 * time.Minute})

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	m.Publish("a", payload(1))
	m.Publish("a", payload(2))

	now = now.Add(11 * time.Minute)
	m.Publish("a", payload(3))

	assert.Equal(t, 1, m.Len("a"))

	var got []uint64
	m.Subscribe("a", 0, func(_ json.RawMessage, msgID uint64) {
		got = append(got, msgID)
	})
	require.Equal(t, []uint64{3}, got)
}

func TestMailbox_PruneSweepsIdleRecipients(t *testing.T) {
	m := New(Options{MaxMessages: 100, MaxAge: 10 * time.Minute})

	now := time.Now()
	m.SetClock(func() time.Time { return now })
	m.Publish("idle", payload(1))

	now = now.Add(time.Hour)
	m.Prune()
	assert.Equal(t, 0, m.Len("idle"))
}

func TestMailbox_SecondSubscriberAlsoReceivesLive(t *testing.T) {
	m := New(DefaultOptions)

	var first, second int
	m.Subscribe("a", 0, func(json.RawMessage, uint64) { first++ })
	m.Subscribe("a", 0, func(json.RawMessage, uint64) { second++ })

	m.Publish("a", payload(1))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}
