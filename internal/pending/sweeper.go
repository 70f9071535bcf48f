package pending

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sweeper deletes pending registrations nobody committed within the TTL.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	swept prometheus.Counter

	mu     sync.Mutex // serialises RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store *Store, ttl, interval time.Duration, reg prometheus.Registerer, log zerolog.Logger) (*Sweeper, error) {
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_pending_swept_total",
		Help: "Pending registrations removed after their TTL expired.",
	})
	if err := reg.Register(swept); err != nil {
		return nil, err
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log.With().Str("component", "pending_sweeper").Logger(),
		now:      time.Now,
		swept:    swept,
	}, nil
}

// Start runs a sweep immediately and then every interval until Stop or ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	s.log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("pending sweeper started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info().Msg("pending sweeper stopped")
}

// RunOnce deletes every expired registration and returns how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched, err := s.store.LastTouched(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("pending sweep: list failed")
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, at := range touched {
		if at.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("pending_id", id).Msg("pending sweep: delete failed")
			continue
		}
		removed++
		s.swept.Inc()
		s.log.Info().Str("pending_id", id).Time("last_modified", at).Msg("expired pending registration removed")
	}
	return removed
}
