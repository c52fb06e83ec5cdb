package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := make([]kafka.Event, len(events))
	copy(batch, events)
	p.batches = append(p.batches, batch)
	return nil
}

func (p *recordingPublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10, WithBatching(100, time.Hour))
	c.Start(context.Background())

	c.Track("query", QueryEvent{Type: EventQuery, Query: "cat"})
	c.Track("ingest", IngestEvent{Type: EventIngest, Source: "a.md"})
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "query", events[0].Key)
	assert.Equal(t, "cat", events[0].Value.(QueryEvent).Query)
}

func TestCollectorBatchesBySize(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10, WithBatching(2, time.Hour))
	c.Start(context.Background())
	for i := 0; i < 5; i++ {
		c.Track("query", QueryEvent{TopK: i})
	}
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[0], 2)
	assert.Len(t, pub.batches[2], 1)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10, WithBatching(100, 5*time.Millisecond))
	c.Start(context.Background())
	defer c.Close()

	c.Track("query", QueryEvent{Query: "tick"})
	assert.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	dropped := 0
	// Not started, so nothing drains the buffer.
	c := NewCollector(pub, 2, WithDropHook(func() { dropped++ }))
	for i := 0; i < 5; i++ {
		c.Track("query", QueryEvent{TopK: i})
	}
	assert.Equal(t, 3, dropped)
}

func TestCollectorStopsOnContextCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10, WithBatching(100, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track("query", QueryEvent{Query: "last"})
	// Give the loop a chance to receive before cancelling; either path
	// (received or drained) must publish the event.
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-c.done
	assert.Len(t, pub.events(), 1)
}

func TestCollectorTrackAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	dropped := 0
	c := NewCollector(pub, 4, WithDropHook(func() { dropped++ }))
	c.Start(context.Background())
	c.Close()

	assert.NotPanics(t, func() { c.Track("query", QueryEvent{}) })
	assert.Equal(t, 1, dropped)
	assert.Empty(t, pub.events())
}
