package broker

import (
	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
)

// eventQueue is a FIFO of events waiting to be relayed to the worker
type eventQueue struct {
	events []*gwrelay.Event
}

func (q *eventQueue) Len() int {
	return len(q.events)
}

// Push appends the event to the back of the queue
func (q *eventQueue) Push(evt *gwrelay.Event) {
	q.events = append(q.events, evt)
}

// Prepend puts the events in front of the queue, keeping their order
func (q *eventQueue) Prepend(events []*gwrelay.Event) {
	if len(events) == 0 {
		return
	}

	newEvents := make([]*gwrelay.Event, 0, len(events)+len(q.events))
	newEvents = append(newEvents, events...)
	q.events = append(newEvents, q.events...)
}

// RemoveFunc drops every queued event matching fn, keeping the order of the rest
func (q *eventQueue) RemoveFunc(fn func(evt *gwrelay.Event) bool) (removed int) {
	kept := q.events[:0]
	for _, v := range q.events {
		if fn(v) {
			removed++
			continue
		}

		kept = append(kept, v)
	}

	for i := len(kept); i < len(q.events); i++ {
		q.events[i] = nil
	}

	q.events = kept
	return removed
}

// Peek returns the head of the queue without removing it, nil if empty
func (q *eventQueue) Peek() *gwrelay.Event {
	if len(q.events) == 0 {
		return nil
	}

	return q.events[0]
}

// Pop removes and returns the head of the queue, nil if empty
func (q *eventQueue) Pop() *gwrelay.Event {
	if len(q.events) == 0 {
		return nil
	}

	evt := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return evt
}

// guildBuffer keeps the latest guild-available event per guild, in insertion order
// so a newly attached worker can be caught up
type guildBuffer struct {
	order  []string
	events map[string]*gwrelay.Event
}

func newGuildBuffer() *guildBuffer {
	return &guildBuffer{
		events: make(map[string]*gwrelay.Event),
	}
}

// Put stores the event for the guild, a guild that's already present is moved to the end
func (b *guildBuffer) Put(guildID string, evt *gwrelay.Event) {
	if _, ok := b.events[guildID]; ok {
		for i, v := range b.order {
			if v == guildID {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}

	b.order = append(b.order, guildID)
	b.events[guildID] = evt
}

// Has returns true if the guild is buffered
func (b *guildBuffer) Has(guildID string) bool {
	_, ok := b.events[guildID]
	return ok
}

func (b *guildBuffer) Len() int {
	return len(b.order)
}

// Events returns the buffered events in insertion order
func (b *guildBuffer) Events() []*gwrelay.Event {
	result := make([]*gwrelay.Event, 0, len(b.order))
	for _, id := range b.order {
		result = append(result, b.events[id])
	}

	return result
}
