// Package pubsub provides a basic Publish/Subscribe implementation that
// replays the last published value to late subscribers.
package pubsub

import (
	"log/slog"
	"sync"
)

// Publisher allows clients to subscribe and sends them the information
// provided by Publish. A client subscribing after the first Publish
// immediately receives the most recent value.
type Publisher[T any] struct {
	clients   map[chan T]struct{}
	last      T
	published bool
	logger    *slog.Logger
	lock      sync.RWMutex
}

// New returns a new Publisher.
func New[T any](logger *slog.Logger) *Publisher[T] {
	return &Publisher[T]{
		clients: make(map[chan T]struct{}),
		logger:  logger,
	}
}

// Subscribe registers the caller and returns a new channel on which it will
// receive updates. The channel is buffered with the most recent value, if
// there is one.
func (p *Publisher[T]) Subscribe() chan T {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch := make(chan T, 1)
	if p.published {
		ch <- p.last
	}
	p.clients[ch] = struct{}{}
	p.logger.Debug("subscriber added", slog.Int("subscribers", len(p.clients)))
	return ch
}

// Unsubscribe removes the registered client/channel.
func (p *Publisher[T]) Unsubscribe(ch chan T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.clients, ch)
	p.logger.Debug("subscriber removed", slog.Int("subscribers", len(p.clients)))
}

// Publish sends info to all registered clients.
func (p *Publisher[T]) Publish(info T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.last = info
	p.published = true
	for ch := range p.clients {
		// drop the stale value if the client hasn't read it yet
		select {
		case <-ch:
		default:
		}
		ch <- info
	}
}

// Last returns the most recently published value.
func (p *Publisher[T]) Last() (T, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.last, p.published
}

// Subscribers returns the current number of subscribers.
func (p *Publisher[T]) Subscribers() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.clients)
}
