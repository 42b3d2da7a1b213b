package pubsub

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublisher(t *testing.T) {
	p := New[int](slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch1 := p.Subscribe()
	assert.Equal(t, 1, p.Subscribers())

	p.Publish(42)
	assert.Equal(t, 42, <-ch1)

	// late subscriber receives the last value
	ch2 := p.Subscribe()
	assert.Equal(t, 42, <-ch2)

	last, ok := p.Last()
	assert.True(t, ok)
	assert.Equal(t, 42, last)

	// second publish overwrites an unread value
	p.Publish(1)
	p.Publish(2)
	assert.Equal(t, 2, <-ch1)

	p.Unsubscribe(ch1)
	p.Unsubscribe(ch2)
	assert.Zero(t, p.Subscribers())
}

func TestPublisher_Empty(t *testing.T) {
	p := New[string](slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, ok := p.Last()
	assert.False(t, ok)

	ch := p.Subscribe()
	select {
	case <-ch:
		t.Fatal("unexpected value on fresh subscription")
	default:
	}
}
