package client

import (
	"context"
	"time"
)

const (
	defaultTrackInterval = 5 * time.Second
	defaultTokenInterval = time.Minute
)

type PollerOptions struct {
	TrackInterval time.Duration
	TokenInterval time.Duration
	OnTrack       func(*CurrentTrack)
	OnError       func(error)
}

// Poller polls the current venue's track and keeps both sessions fresh. It
// reads the store on every tick, so it follows venue changes made elsewhere,
// and it stops by itself once the user leaves the venue.
type Poller struct {
	client *Client
	opts   PollerOptions
	kick   chan time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPoller starts polling until ctx is cancelled, Stop is called or the
// user leaves the venue.
func (c *Client) StartPoller(ctx context.Context, opts PollerOptions) *Poller {
	if opts.TrackInterval <= 0 {
		opts.TrackInterval = defaultTrackInterval
	}
	if opts.TokenInterval <= 0 {
		opts.TokenInterval = defaultTokenInterval
	}
	if opts.OnTrack == nil {
		opts.OnTrack = func(*CurrentTrack) {}
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		client: c,
		opts:   opts,
		kick:   make(chan time.Duration, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

// Stop cancels both timers and waits for the loop to exit.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Done is closed once the poller has stopped.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// PollAfter schedules an extra track poll after d, e.g. SkipSettleDelay
// after a vote skipped the track.
func (p *Poller) PollAfter(d time.Duration) {
	select {
	case p.kick <- d:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	trackTicker := time.NewTicker(p.opts.TrackInterval)
	defer trackTicker.Stop()
	tokenTicker := time.NewTicker(p.opts.TokenInterval)
	defer tokenTicker.Stop()

	var extra <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-trackTicker.C:
			if !p.pollTrack(ctx) {
				return
			}
		case <-extra:
			extra = nil
			if !p.pollTrack(ctx) {
				return
			}
		case d := <-p.kick:
			extra = time.After(d)
		case <-tokenTicker.C:
			p.checkTokens(ctx)
		}
	}
}

// pollTrack returns false when there is no venue any more.
func (p *Poller) pollTrack(ctx context.Context) bool {
	st := p.client.store.Snapshot()
	if st.Venue == nil {
		return false
	}
	if st.Tokens == nil {
		return true
	}

	current, err := p.client.Current(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.opts.OnError(err)
		}
		return true
	}
	p.opts.OnTrack(current)
	return true
}

// checkTokens refreshes each session whose own expiry has passed.
func (p *Poller) checkTokens(ctx context.Context) {
	st := p.client.store.Snapshot()
	if st.Tokens == nil {
		return
	}
	now := p.client.now()
	if !st.Tokens.AccessTokenExpiresAt.After(now) {
		if err := p.client.RefreshSession(ctx); err != nil {
			p.opts.OnError(err)
			return
		}
	}
	if st.Spotify != nil && !st.Spotify.ExpiresAt.After(now) {
		if err := p.client.RefreshSpotify(ctx); err != nil {
			p.opts.OnError(err)
		}
	}
}
