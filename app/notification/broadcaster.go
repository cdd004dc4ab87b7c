package notification

import (
	"context"
	"time"

	"lifemonitor/pkg/log"
)

// Deliverer sends a message to its targets. *Hub implements it.
type Deliverer interface {
	Deliver(m *Message)
}

// Broadcaster is the single consumer of the bus. Messages older than maxAge
// are dropped, the others are delivered after their delay.
type Broadcaster struct {
	bus    Bus
	target Deliverer
	maxAge time.Duration
	now    func() time.Time
}

func NewBroadcaster(bus Bus, target Deliverer, maxAge time.Duration) *Broadcaster {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &Broadcaster{bus: bus, target: target, maxAge: maxAge, now: time.Now}
}

// Run blocks until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	log.Infof(nil, "Notification broadcaster started (max age %s)", b.maxAge)
	return b.bus.Listen(ctx, b.dispatch)
}

func (b *Broadcaster) dispatch(m *Message) {
	if age := b.now().Sub(m.Time()); age > b.maxAge {
		log.Debugf(nil, "Dropping notification message published %s ago", age)
		return
	}
	if delay := m.DelayDuration(); delay > 0 {
		time.AfterFunc(delay, func() { b.target.Deliver(m) })
		return
	}
	b.target.Deliver(m)
}
