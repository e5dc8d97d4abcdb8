package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/venue-jukebox/pkg/database"
)

// Sweeper periodically deletes token pairs whose refresh token has expired.
type Sweeper struct {
	db       *database.DB
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSweeper(db *database.DB, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		db:       db,
		interval: interval,
		logger:   logger.With().Str("component", "token_sweeper").Logger(),
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Token sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug().Int64("deleted", n).Msg("Expired tokens removed")
	}
	return n, nil
}
