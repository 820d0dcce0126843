// Package scanner periodically sweeps the conversation store for threads
// where the user has gone quiet while a counterpart is owed a reply.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/standin/internal/store"
)

// Offerer is the slice of the takeover orchestrator the scanner drives.
type Offerer interface {
	Offer(ctx context.Context, threadID string) error
}

// Config holds the scan parameters.
type Config struct {
	// Interval is the fixed scan period.
	Interval time.Duration

	// InactivityThreshold is the minimum user silence before an offer.
	InactivityThreshold time.Duration

	// MaxInactivity is the staleness bound; older threads are not resurrected.
	MaxInactivity time.Duration

	// RecentCounterpartWindow is how fresh the counterpart's last message must
	// be for a reply to actually be owed.
	RecentCounterpartWindow time.Duration

	// CooldownGrace is the post-session grace window; expired cool-downs are
	// swept back to idle here.
	CooldownGrace time.Duration

	// SelfThreadID is the user's own thread, never monitored.
	SelfThreadID string
}

// Scanner runs the periodic eligibility sweep.
type Scanner struct {
	store   *store.Store
	offerer Offerer
	cfg     Config
	logger  *slog.Logger
}

// Option configures the scanner.
type Option func(*Scanner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates an inactivity scanner.
func New(st *store.Store, offerer Offerer, cfg Config, opts ...Option) (*Scanner, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if offerer == nil {
		return nil, fmt.Errorf("offerer is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %v", cfg.Interval)
	}
	if cfg.InactivityThreshold <= 0 || cfg.MaxInactivity < cfg.InactivityThreshold {
		return nil, fmt.Errorf("invalid inactivity bounds: threshold %v, max %v",
			cfg.InactivityThreshold, cfg.MaxInactivity)
	}

	s := &Scanner{
		store:   st,
		offerer: offerer,
		cfg:     cfg,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start runs the sweep on a fixed period. Blocks until the context is
// cancelled.
func (s *Scanner) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("inactivity scanner started",
		"interval", s.cfg.Interval,
		"threshold", s.cfg.InactivityThreshold)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inactivity scanner stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one scan: expire elapsed cool-downs, then offer for each
// eligible conversation. A failed offer is logged and retried naturally on a
// later cycle if the thread is still eligible.
func (s *Scanner) Sweep(ctx context.Context) {
	if expired := s.store.ExpireCooldowns(s.cfg.CooldownGrace); expired > 0 {
		s.logger.Debug("cool-downs expired", "count", expired)
	}

	eligible := s.store.ListEligibleForOffer(
		s.cfg.InactivityThreshold,
		s.cfg.MaxInactivity,
		s.cfg.RecentCounterpartWindow,
		s.cfg.SelfThreadID,
	)
	if len(eligible) == 0 {
		return
	}

	s.logger.Debug("eligible conversations found", "count", len(eligible))
	for _, conv := range eligible {
		if err := s.offerer.Offer(ctx, conv.ID); err != nil {
			s.logger.Error("offer failed", "thread", conv.ID, "error", err)
		}
	}
}
