package events

import (
	"context"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docreview/internal/review"
)

func receive(t *testing.T, ch <-chan cloudevents.Event) cloudevents.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return cloudevents.Event{}
	}
}

func TestNotifier_PublishesOutcome(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	var n review.Notifier = NewNotifier(bus)
	n.RunFinished(context.Background(), review.RunOutcome{
		RunID:      "run-1",
		Status:     review.StatusFailed,
		Message:    "・Category 2: boom",
		Mode:       review.ModeSmall,
		Categories: 2,
		Documents:  1,
		Duration:   1500 * time.Millisecond,
	})

	e := receive(t, ch)
	assert.Equal(t, TypeReviewFinished, e.Type())
	assert.Equal(t, Source, e.Source())
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, cloudevents.ApplicationJSON, e.DataContentType())

	got, err := Decode[ReviewFinished](e)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, review.StatusFailed, got.Status)
	assert.Equal(t, "・Category 2: boom", got.Message)
	assert.Equal(t, int64(1500), got.DurationMs)
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(nil)
	a, cancelA := bus.Subscribe(1)
	defer cancelA()
	b, cancelB := bus.Subscribe(1)
	defer cancelB()

	require.NoError(t, bus.Publish(context.Background(), "ping", map[string]int{"n": 1}))

	for _, ch := range []<-chan cloudevents.Event{a, b} {
		e := receive(t, ch)
		v, err := Decode[map[string]int](e)
		require.NoError(t, err)
		assert.Equal(t, 1, v["n"])
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = bus.Publish(context.Background(), "tick", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	e := receive(t, ch)
	v, err := Decode[int](e)
	require.NoError(t, err)
	assert.Equal(t, 0, v, "the first event is kept")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, bus.Publish(context.Background(), "after", "x"))
}
