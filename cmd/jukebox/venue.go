package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/venue-jukebox/pkg/client"
)

func (r *Runner) Venues(ctx context.Context, cmd *cli.Command) error {
	venues, err := r.client.Venues(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(venues, cmd.Bool("pretty"))
	}

	if len(venues) == 0 {
		return r.writePlain("No venues yet\n")
	}
	current := r.client.Store().Snapshot().Venue
	for _, v := range venues {
		marker := " "
		if current != nil && current.ID == v.ID {
			marker = "*"
		}
		r.writePlain("%s %s  %-24s %2d here  votes %+d\n", marker, v.ID, v.Name, v.AttendeeCount, v.VoteCount)
	}
	return nil
}

func (r *Runner) CreateVenue(ctx context.Context, cmd *cli.Command) error {
	venue, err := r.client.CreateVenue(ctx, client.CreateVenueRequest{
		Name:       cmd.String("name"),
		Address:    cmd.String("address"),
		SpotifyURI: cmd.String("uri"),
		DeviceID:   cmd.String("device"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Created %s (%s)\n", venue.Name, venue.ID)
}

func (r *Runner) CheckIn(ctx context.Context, cmd *cli.Command) error {
	raw, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid venue id %q: %w", raw, err)
	}

	venue, err := r.client.CheckIn(ctx, id)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Checked in to %s, %d here\n", venue.Name, venue.AttendeeCount)
}

func (r *Runner) CheckOut(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.CheckOut(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Checked out\n")
}

func (r *Runner) Current(ctx context.Context, cmd *cli.Command) error {
	current, err := r.client.Current(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(current, cmd.Bool("pretty"))
	}
	return r.printTrack(current)
}

func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}

	tracks, err := r.client.Search(ctx, query)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}
	for _, t := range tracks {
		r.writePlain("%-40s %-28s %s\n", t.Name, artists(t.Artists), t.URI)
	}
	return nil
}

func (r *Runner) Queue(ctx context.Context, cmd *cli.Command) error {
	uri, err := requireArg(cmd, "uri")
	if err != nil {
		return err
	}
	if err := r.client.Queue(ctx, uri); err != nil {
		return err
	}
	return r.writePlain("✓ Queued %s\n", uri)
}

func (r *Runner) Vote(ctx context.Context, cmd *cli.Command) error {
	var vote int
	switch strings.ToLower(cmd.StringArg("direction")) {
	case "up", "+1", "+":
		vote = 1
	case "down", "-1", "-":
		vote = -1
	default:
		return fmt.Errorf("%w: direction must be up or down", errMissingArgument)
	}

	result, err := r.client.Vote(ctx, vote)
	if err != nil {
		return err
	}
	if result.Skipped {
		return r.writePlain("✓ Track skipped\n")
	}
	return r.writePlain("✓ Vote counted, total %+d\n", result.Venue.VoteCount)
}

// Watch prints the current track whenever it changes until the command is
// interrupted or the user checks out.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	st := r.client.Store().Snapshot()
	if st.Tokens == nil {
		return client.ErrNotLoggedIn
	}
	if st.Venue == nil {
		return errors.New("not checked in to a venue")
	}

	var lastID string
	poller := r.client.StartPoller(ctx, client.PollerOptions{
		TrackInterval: r.config.Watch.TrackInterval.Duration,
		TokenInterval: r.config.Watch.TokenInterval.Duration,
		OnTrack: func(ct *client.CurrentTrack) {
			id := trackID(ct)
			if id == lastID {
				return
			}
			lastID = id
			r.printTrack(ct)
		},
		OnError: func(err error) {
			r.logger.Warn("poll failed", "err", err)
		},
	})
	r.logger.Info("watching", "venue", st.Venue.Name)

	<-poller.Done()
	return nil
}

func (r *Runner) printTrack(ct *client.CurrentTrack) error {
	if ct.Playing == nil || ct.Playing.Item == nil {
		return r.writePlain("%s: nothing playing\n", ct.Venue.Name)
	}
	t := ct.Playing.Item
	return r.writePlain("%s: %s by %s (votes %+d)\n", ct.Venue.Name, t.Name, artists(t.Artists), ct.Venue.VoteCount)
}

func trackID(ct *client.CurrentTrack) string {
	if ct.Playing == nil || ct.Playing.Item == nil {
		return ""
	}
	return ct.Playing.Item.ID
}

func artists(list []client.Artist) string {
	names := make([]string, 0, len(list))
	for _, a := range list {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
