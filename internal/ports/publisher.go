package ports

import "github.com/alejandrodnm/squadbid/internal/domain"

// Publisher fans committed events out to live subscribers.
// Publish is called only after the transaction that produced the events commits.
type Publisher interface {
	Publish(events ...domain.Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(...domain.Event) {}

// Publishers publishes to each publisher in order.
type Publishers []Publisher

func (ps Publishers) Publish(events ...domain.Event) {
	for _, p := range ps {
		p.Publish(events...)
	}
}
