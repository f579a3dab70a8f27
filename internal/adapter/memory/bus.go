package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pscheid92/contestpulse/internal/domain"
)

const subscriberBuffer = 64

// Bus fans every published envelope out to all current subscribers. Several relays
// sharing one Bus behave like processes sharing a Redis channel.
type Bus struct {
	mu   sync.Mutex
	subs map[chan domain.Envelope]struct{}
}

var _ domain.Bus = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[chan domain.Envelope]struct{})}
}

func (b *Bus) Publish(_ context.Context, envelope domain.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- envelope:
		default:
			slog.Warn("Memory bus subscriber full, dropping message", "contest_id", envelope.ContestID)
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.Envelope, error) {
	ch := make(chan domain.Envelope, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}
