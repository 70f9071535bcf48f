package board

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// CardLister is satisfied by Client.
type CardLister interface {
	CardsInColumn(ctx context.Context, columnID int64) ([]Card, error)
}

// Snapshot is the last successful listing of cards awaiting signature.
type Snapshot struct {
	Cards     []Card    `json:"cards"`
	Refreshed time.Time `json:"refreshed_at"`
	// Error is the last refresh failure, cleared by the next success.
	Error string `json:"error,omitempty"`
}

// Poller keeps a fresh list of cards in the "to sign" column.
type Poller struct {
	lister   CardLister
	columnID int64
	interval time.Duration
	log      zerolog.Logger
	awaiting prometheus.Gauge

	mu   sync.RWMutex
	snap Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(lister CardLister, columnID int64, interval time.Duration, reg prometheus.Registerer, log zerolog.Logger) (*Poller, error) {
	awaiting := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_cards_awaiting_signature",
		Help: "Cards currently waiting in the signature column.",
	})
	if err := reg.Register(awaiting); err != nil {
		return nil, err
	}
	return &Poller{
		lister:   lister,
		columnID: columnID,
		interval: interval,
		log:      log.With().Str("component", "board_poller").Logger(),
		awaiting: awaiting,
	}, nil
}

// Start refreshes immediately and then every interval.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.Refresh(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Refresh(ctx)
			}
		}
	}()
	p.log.Info().Int64("column_id", p.columnID).Dur("interval", p.interval).Msg("board poller started")
}

func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.log.Info().Msg("board poller stopped")
}

// Refresh lists the column once. On failure the previous cards are kept.
func (p *Poller) Refresh(ctx context.Context) {
	cards, err := p.lister.CardsInColumn(ctx, p.columnID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("board poll failed")
		}
		p.snap.Error = err.Error()
		return
	}
	p.snap = Snapshot{Cards: cards, Refreshed: time.Now()}
	p.awaiting.Set(float64(len(cards)))
	p.log.Debug().Int("cards", len(cards)).Msg("board polled")
}

// Snapshot returns a copy of the latest listing.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	s.Cards = append([]Card(nil), p.snap.Cards...)
	return s
}
