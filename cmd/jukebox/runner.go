package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/venue-jukebox/pkg/client"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *Config
	client      *client.Client
	logger      *log.Logger
	output      io.Writer
	sessionPath string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *Config
	Client *client.Client
	Logger *log.Logger
	Output io.Writer
}

// session is what survives between CLI invocations.
type session struct {
	Tokens  *client.Tokens        `json:"tokens,omitempty"`
	Spotify *client.SpotifyTokens `json:"spotify,omitempty"`
	Venue   *client.Venue         `json:"venue,omitempty"`
}

// NewRunner creates a new Runner. The session file is restored into the client
// store and rewritten after every state change.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = newLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Config == nil {
		opts.Config = DefaultConfig()
		// no file unless one was configured explicitly
		opts.Config.Session.Path = ""
	}
	if opts.Client == nil {
		clientOpts := opts.Config.ClientOptions()
		clientOpts.Logger = opts.Logger
		opts.Client = client.New(clientOpts)
	}

	r := &Runner{
		config:      opts.Config,
		client:      opts.Client,
		logger:      opts.Logger,
		output:      opts.Output,
		sessionPath: opts.Config.SessionPath(),
	}
	if r.sessionPath != "" {
		if err := r.restoreSession(); err != nil {
			r.logger.Warn("failed to restore session", "path", r.sessionPath, "err", err)
		}
		r.client.Store().Subscribe(r.saveSession)
	}
	return r
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		accountCommand, spotifyCommand, venueCommand, voteCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) restoreSession() error {
	data, err := os.ReadFile(r.sessionPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse session: %w", err)
	}

	var actions []client.Action
	if s.Tokens != nil {
		actions = append(actions, client.SetTokens{Tokens: *s.Tokens})
	}
	if s.Spotify != nil {
		actions = append(actions, client.SetSpotifyTokens{Tokens: *s.Spotify})
	}
	if s.Venue != nil {
		actions = append(actions, client.SetVenue{Venue: *s.Venue})
	}
	r.client.Store().Dispatch(actions...)
	return nil
}

func (r *Runner) saveSession(st client.State) {
	if st.Tokens == nil {
		if err := os.Remove(r.sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove session", "err", err)
		}
		return
	}

	data, err := json.MarshalIndent(session{Tokens: st.Tokens, Spotify: st.Spotify, Venue: st.Venue}, "", "  ")
	if err != nil {
		r.logger.Warn("failed to encode session", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.sessionPath), 0o700); err != nil {
		r.logger.Warn("failed to create session directory", "err", err)
		return
	}
	if err := os.WriteFile(r.sessionPath, data, 0o600); err != nil {
		r.logger.Warn("failed to save session", "err", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
