// Command smkclient is a minimal demonstration of the session/transport
// stack: it logs in, exchanges a few frames, and answers heartbeats for as
// long as the connection survives.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/smarkets/streamapi/payload"
	"github.com/smarkets/streamapi/payload/simple"
	"github.com/smarkets/streamapi/session"
)

func main() {
	cmd := &cli.Command{
		Name:   "smkclient",
		Usage:  "connect to a streaming API endpoint and print received frames",
		Flags:  flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "streaming API host"},
		&cli.IntFlag{Name: "port", Value: 3701, Usage: "streaming API port"},
		&cli.StringFlag{Name: "username", Required: true},
		&cli.StringFlag{Name: "password", Required: true},
		&cli.StringFlag{Name: "session-token", Usage: "resume a previous session instead of a fresh login"},
		&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "socket I/O timeout"},
		&cli.BoolFlag{Name: "legacy", Usage: "use the legacy fixed-header framing instead of ULEB128"},
		&cli.BoolFlag{Name: "pretty-log", Usage: "human-readable console logging, instead of JSON"},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd.Bool("pretty-log"))

	// correlationID tags this run's log lines; it has no meaning on the wire.
	correlationID := shortuuid.New()
	log = log.With().Str("run", correlationID).Logger()

	opts := []session.Option{
		session.WithHost(cmd.String("host")),
		session.WithPort(cmd.Int("port")),
		session.WithSocketTimeout(cmd.Duration("timeout")),
		session.WithLogger(log),
	}
	if tok := cmd.String("session-token"); tok != "" {
		opts = append(opts, session.WithSessionToken(tok))
	}
	if cmd.Bool("legacy") {
		opts = append(opts, session.WithLegacyFraming())
	}

	newPayload := func() payload.Codec { return &simple.Frame{} }
	s := session.New(cmd.String("username"), cmd.String("password"), newPayload, opts...)

	if err := s.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer s.Disconnect()

	for ctx.Err() == nil {
		frame, err := s.NextFrame()
		if err != nil {
			return fmt.Errorf("next_frame: %w", err)
		}
		if frame == nil {
			continue
		}
		f, ok := frame.(*simple.Frame)
		if !ok {
			continue
		}
		log.Info().
			Uint64("seq", f.EtoSeq()).
			Int("eto_type", int(f.EtoType())).
			Int("body_len", len(f.Body)).
			Msg("received frame")
	}
	return ctx.Err()
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
