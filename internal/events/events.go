package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/dshills/docreview/internal/review"
)

// Source is the CloudEvents source attribute of every published event.
const Source = "docreview"

// TypeReviewFinished is published when a review run reaches a terminal
// state.
const TypeReviewFinished = "review-finished"

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan cloudevents.Event
	next   int
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{subs: make(map[int]chan cloudevents.Event), logger: logger}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan cloudevents.Event, func()) {
	ch := make(chan cloudevents.Event, max(buffer, 1))

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish wraps data in a CloudEvent of type typ and delivers it to every
// subscriber.
func (b *Bus) Publish(ctx context.Context, typ string, data any) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(Source)
	e.SetType(typ)
	e.SetTime(time.Now())
	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("encoding %s event: %w", typ, err)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid %s event: %w", typ, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.WarnContext(ctx, "dropping event for slow subscriber", "type", typ, "subscriber", id)
		}
	}
	return nil
}

// ReviewFinished is the payload of TypeReviewFinished.
type ReviewFinished struct {
	RunID      string              `json:"runId"`
	Status     review.Status       `json:"status"`
	Message    string              `json:"message,omitempty"`
	Mode       review.Mode         `json:"mode,omitempty"`
	Categories int                 `json:"categories"`
	Documents  int                 `json:"documents"`
	Tasks      []review.TaskResult `json:"tasks,omitempty"`
	DurationMs int64               `json:"durationMs"`
}

// Notifier publishes review outcomes on a Bus.
type Notifier struct {
	bus *Bus
}

// NewNotifier returns a review.Notifier backed by bus.
func NewNotifier(bus *Bus) *Notifier {
	return &Notifier{bus: bus}
}

// RunFinished implements review.Notifier.
func (n *Notifier) RunFinished(ctx context.Context, out review.RunOutcome) {
	err := n.bus.Publish(ctx, TypeReviewFinished, ReviewFinished{
		RunID:      out.RunID,
		Status:     out.Status,
		Message:    out.Message,
		Mode:       out.Mode,
		Categories: out.Categories,
		Documents:  out.Documents,
		Tasks:      out.Tasks,
		DurationMs: out.Duration.Milliseconds(),
	})
	if err != nil {
		n.bus.logger.ErrorContext(ctx, "publishing review outcome", "run_id", out.RunID, "error", err)
	}
}

// Decode unmarshals the event's data into T.
func Decode[T any](e cloudevents.Event) (T, error) {
	var v T
	if err := e.DataAs(&v); err != nil {
		return v, fmt.Errorf("decoding %s event: %w", e.Type(), err)
	}
	return v, nil
}
