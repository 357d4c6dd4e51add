// Package mailbox implements per-recipient ordered message queues with
// replay. Every published message gets a monotonically increasing id scoped
// to its recipient; subscribers replay buffered history past a cursor and
// then receive live messages with no gap or duplicate across the boundary.
package mailbox

import (
	"encoding/json"
	"sync"
	"time"
)

// Message is the stored envelope
type Message struct {
	ID          uint64
	Payload     json.RawMessage
	PublishedAt time.Time
}

// Handler receives a message payload and its id
type Handler func(payload json.RawMessage, msgID uint64)

// Options bound buffer growth. A message is pruned once it is older than
// MaxAge or pushed out by MaxMessages newer ones, whichever happens first.
type Options struct {
	MaxMessages int
	MaxAge      time.Duration
}

// DefaultOptions keep the newest 1000 messages for at most 30 minutes
var DefaultOptions = Options{
	MaxMessages: 1000,
	MaxAge:      30 * time.Minute,
}

// Mailbox multiplexes recipient queues. All methods are safe for concurrent
// use; mutations for one recipient serialize on that recipient's lock so
// publishes never block delivery to other recipients.
type Mailbox struct {
	mu    sync.Mutex
	boxes map[string]*box
	opts  Options
	now   func() time.Time
}

type box struct {
	mu          sync.Mutex
	nextID      uint64
	messages    []Message
	subscribers map[uint64]Handler
	nextSubID   uint64
}

// New creates a mailbox with the given retention options
func New(opts Options) *Mailbox {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultOptions.MaxMessages
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultOptions.MaxAge
	}
	return &Mailbox{
		boxes: make(map[string]*box),
		opts:  opts,
		now:   time.Now,
	}
}

// SetClock overrides the clock, for tests
func (m *Mailbox) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Mailbox) box(recipient string) *box {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[recipient]
	if !ok {
		b = &box{subscribers: make(map[uint64]Handler)}
		m.boxes[recipient] = b
	}
	return b
}

// Publish appends a message to the recipient's buffer and fans it out
// synchronously to any live subscriber. Returns the assigned message id.
// Handlers must not re-enter the mailbox for the same recipient.
func (m *Mailbox) Publish(recipient string, payload json.RawMessage) uint64 {
	now := m.now()
	b := m.box(recipient)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	msg := Message{ID: b.nextID, Payload: payload, PublishedAt: now}
	b.messages = append(b.messages, msg)
	b.pruneLocked(now, m.opts)

	for _, fn := range b.subscribers {
		fn(msg.Payload, msg.ID)
	}
	return msg.ID
}

// Subscribe replays every buffered message with id > fromID in ascending
// order, then attaches fn as a live subscriber. The recipient lock is held
// across replay and attachment, so no message published concurrently can be
// missed or delivered twice. The returned function detaches the live
// subscriber; buffered messages remain for future subscribers.
//
// Exclusivity is not enforced: a second concurrent subscriber also receives
// live fan-out. Callers owning a single socket per recipient should tear
// down the old subscription first.
func (m *Mailbox) Subscribe(recipient string, fromID uint64, fn Handler) (unsubscribe func()) {
	b := m.box(recipient)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range b.messages {
		if msg.ID > fromID {
			fn(msg.Payload, msg.ID)
		}
	}

	b.nextSubID++
	id := b.nextSubID
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Len reports the number of buffered messages for a recipient
func (m *Mailbox) Len(recipient string) int {
	b := m.box(recipient)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Prune drops aged-out messages across all recipients. Retention is also
// applied on every publish; this exists for idle recipients.
func (m *Mailbox) Prune() {
	now := m.now()

	m.mu.Lock()
	boxes := make([]*box, 0, len(m.boxes))
	for _, b := range m.boxes {
		boxes = append(boxes, b)
	}
	m.mu.Unlock()

	for _, b := range boxes {
		b.mu.Lock()
		b.pruneLocked(now, m.opts)
		b.mu.Unlock()
	}
}

// pruneLocked never reorders surviving messages: the buffer is ascending by
// id and only a prefix is dropped.
func (b *box) pruneLocked(now time.Time, opts Options) {
	cutoff := now.Add(-opts.MaxAge)
	drop := 0
	for drop < len(b.messages) && b.messages[drop].PublishedAt.Before(cutoff) {
		drop++
	}
	if excess := len(b.messages) - drop - opts.MaxMessages; excess > 0 {
		drop += excess
	}
	if drop > 0 {
		b.messages = append([]Message(nil), b.messages[drop:]...)
	}
}
