// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

var jsonFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	},
	&cli.BoolFlag{
		Name:  "pretty",
		Usage: "Pretty-print JSON output",
	},
}

func accountCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Register, log in and manage your account",
		Commands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "Create an account",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
				},
				Action: r.Register,
			},
			{
				Name:      "login",
				Usage:     "Log in and remember the session",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
				},
				Action: r.Login,
			},
			{
				Name:   "logout",
				Usage:  "Revoke the session and forget it locally",
				Action: r.Logout,
			},
			{
				Name:   "me",
				Usage:  "Show your profile",
				Flags:  jsonFlags,
				Action: r.Me,
			},
			{
				Name:   "delete",
				Usage:  "Delete your account",
				Action: r.DeleteAccount,
			},
		},
	}
}

func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Link and use your Spotify account",
		Commands: []*cli.Command{
			{
				Name:  "link",
				Usage: "Print the consent URL, or exchange the code it redirected with",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Authorization code from the redirect"},
				},
				Action: r.SpotifyLink,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the Spotify session",
				Action: r.SpotifyRefresh,
			},
			{
				Name:      "get",
				Usage:     "GET a Spotify Web API path through the proxy, e.g. /me/player/devices",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     jsonFlags,
				Action:    r.SpotifyGet,
			},
		},
	}
}

func venueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "venue",
		Usage: "Find, join and use venues",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List venues",
				Flags:  jsonFlags,
				Action: r.Venues,
			},
			{
				Name:  "create",
				Usage: "Register a venue played through your Spotify account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "address"},
					&cli.StringFlag{Name: "uri", Usage: "Spotify context URI"},
					&cli.StringFlag{Name: "device", Usage: "Spotify device ID"},
				},
				Action: r.CreateVenue,
			},
			{
				Name:      "checkin",
				Usage:     "Check in to a venue",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.CheckIn,
			},
			{
				Name:   "checkout",
				Usage:  "Leave the current venue",
				Action: r.CheckOut,
			},
			{
				Name:   "current",
				Usage:  "Show what is playing at the current venue",
				Flags:  jsonFlags,
				Action: r.Current,
			},
			{
				Name:      "search",
				Usage:     "Search tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
				Flags:     jsonFlags,
				Action:    r.Search,
			},
			{
				Name:      "queue",
				Usage:     "Queue a track by Spotify URI",
				Arguments: []cli.Argument{&cli.StringArg{Name: "uri"}},
				Action:    r.Queue,
			},
		},
	}
}

func voteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "Vote the current track up or down",
		Arguments: []cli.Argument{&cli.StringArg{Name: "direction"}},
		Action:    r.Vote,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Follow the current venue's track until interrupted or checked out",
		Action: r.Watch,
	}
}
