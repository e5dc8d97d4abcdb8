package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/venue-jukebox/pkg/client"
)

var errMissingArgument = errors.New("missing argument")

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", errMissingArgument, name)
	}
	return v, nil
}

func (r *Runner) Register(ctx context.Context, cmd *cli.Command) error {
	username, err := requireArg(cmd, "username")
	if err != nil {
		return err
	}

	user, err := r.client.Register(ctx, client.RegisterRequest{
		Username:  username,
		Password:  cmd.String("password"),
		FirstName: cmd.String("first-name"),
		LastName:  cmd.String("last-name"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Registered %s (%s)\n", user.Username, user.ID)
}

func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	username, err := requireArg(cmd, "username")
	if err != nil {
		return err
	}
	if err := r.client.Login(ctx, username, cmd.String("password")); err != nil {
		return err
	}
	r.logger.Debug("logged in", "username", username)
	return r.writePlain("✓ Logged in as %s\n", username)
}

func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.Logout(ctx); err != nil {
		r.logger.Warn("server side logout failed", "err", err)
	}
	return r.writePlain("✓ Logged out\n")
}

func (r *Runner) Me(ctx context.Context, cmd *cli.Command) error {
	user, err := r.client.Me(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlain("%s %s (%s)\n", user.FirstName, user.LastName, user.Username)
	for _, id := range user.OwnedVenueIDs {
		r.writePlain("  owns %s\n", id)
	}
	return nil
}

func (r *Runner) DeleteAccount(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.DeleteAccount(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Account deleted\n")
}

// SpotifyLink prints the consent URL when no code is given, otherwise it
// exchanges the code and stores the Spotify session.
func (r *Runner) SpotifyLink(ctx context.Context, cmd *cli.Command) error {
	code := cmd.String("code")
	if code == "" {
		url, err := r.client.SpotifyAuthURL(ctx)
		if err != nil {
			return err
		}
		r.writePlain("Open this URL, approve access and rerun with --code:\n%s\n", url)
		return nil
	}

	if err := r.client.LinkSpotify(ctx, code); err != nil {
		return err
	}
	return r.writePlain("✓ Spotify linked\n")
}

func (r *Runner) SpotifyRefresh(ctx context.Context, cmd *cli.Command) error {
	if r.client.Store().Snapshot().Spotify == nil {
		return fmt.Errorf("spotify is not linked, run `jukebox spotify link` first")
	}
	if err := r.client.RefreshSpotify(ctx); err != nil {
		return err
	}
	st := r.client.Store().Snapshot()
	return r.writePlain("✓ Spotify session valid until %s\n", st.Spotify.ExpiresAt.Local().Format("15:04:05"))
}

func (r *Runner) SpotifyGet(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var out any
	if err := r.client.SpotifyGet(ctx, path, &out); err != nil {
		return err
	}
	return r.writeJSON(out, cmd.Bool("pretty"))
}
