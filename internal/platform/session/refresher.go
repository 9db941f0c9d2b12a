package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ProfileSource fetches the current user's profile from the API.
type ProfileSource interface {
	Me(ctx context.Context) (*Profile, error)
}

// Refresher periodically reloads the profile of the signed-in user. At most
// one refresh runs at a time; a tick that finds one in flight is skipped.
type Refresher struct {
	sess     *Session
	src      ProfileSource
	interval time.Duration
	gate     *semaphore.Weighted
	logger   zerolog.Logger
}

func NewRefresher(sess *Session, src ProfileSource, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		sess:     sess,
		src:      src,
		interval: interval,
		gate:     semaphore.NewWeighted(1),
		logger:   logger,
	}
}

// Run refreshes on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			go r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce reloads the profile. It reports whether a new profile was
// applied. Failures are logged at debug and otherwise ignored.
func (r *Refresher) RefreshOnce(ctx context.Context) bool {
	if !r.gate.TryAcquire(1) {
		r.logger.Debug().Msg("profile refresh already in flight, skipping")
		return false
	}
	defer r.gate.Release(1)

	if !r.sess.Authenticated() {
		return false
	}
	gen := r.sess.Generation()
	p, err := r.src.Me(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("profile refresh failed")
		return false
	}
	if !r.sess.ApplyProfile(gen, p) {
		r.logger.Debug().Msg("session changed during refresh, discarding profile")
		return false
	}
	return true
}
