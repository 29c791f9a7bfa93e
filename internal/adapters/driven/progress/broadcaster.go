// Package progress delivers job progress events to in-process
// subscribers and to the log.
package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure publishers implement the interface.
var (
	_ driven.ProgressPublisher = (*Broadcaster)(nil)
	_ driven.ProgressPublisher = (*LogPublisher)(nil)
	_ driven.ProgressPublisher = Multi(nil)
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

type subscriber struct {
	jobID   string
	ch      chan domain.ProgressEvent
	dropped int
}

// Broadcaster fans events out to subscribers. A subscriber whose buffer is
// full misses the event; Publish never blocks.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe registers a listener for jobID, or for every job when jobID is
// empty. The returned cancel function closes the channel.
func (b *Broadcaster) Subscribe(jobID string, buffer int) (<-chan domain.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{jobID: jobID, ch: make(chan domain.ProgressEvent, buffer)}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers event to every matching subscriber.
func (b *Broadcaster) Publish(_ context.Context, event domain.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.jobID != "" && sub.jobID != event.JobID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
		}
	}
	return nil
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher creates a publisher writing to log.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the event. Failures are logged at warn level.
func (p *LogPublisher) Publish(_ context.Context, event domain.ProgressEvent) error {
	e := p.log.Debug()
	if event.Stage == domain.StageFailed {
		e = p.log.Warn()
	}
	e.Str("job", event.JobID).
		Str("document", event.DocumentID).
		Str("stage", string(event.Stage)).
		Int("percent", event.Percent).
		Time("at", event.Time).
		Msg(event.Message)
	return nil
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []driven.ProgressPublisher

// Publish delivers event to each publisher.
func (m Multi) Publish(ctx context.Context, event domain.ProgressEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
