// natdump joins a motion-capture data group and prints every frame it
// decodes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mocaplink/natnet/pkg/buffer"
	"github.com/mocaplink/natnet/pkg/dedup"
	"github.com/mocaplink/natnet/pkg/natnet"
	"github.com/mocaplink/natnet/pkg/observer"
	"github.com/mocaplink/natnet/pkg/receiver"
	"github.com/mocaplink/natnet/pkg/stats"
)

var app = &cli.App{
	Name:  "natdump",
	Usage: "join a motion-capture data group and print decoded frames",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "group",
			Value: fmt.Sprintf("%s:%d", natnet.DefaultGroup, natnet.DefaultDataPort),
			Usage: "data group to receive on (host:port)",
		},
		&cli.StringFlag{
			Name:  "iface",
			Usage: "join the group on this interface only",
		},
		&cli.StringFlag{
			Name:  "profile",
			Value: "v3",
			Usage: "wire shape of the server: legacy, v2 or v3",
		},
		&cli.StringFlag{
			Name:  "probe",
			Usage: "server command address; asks the server for its version and overrides --profile",
		},
		&cli.DurationFlag{
			Name:  "ordered",
			Usage: "print frames in frame-number order, holding gaps up to this delay (0 prints in arrival order)",
		},
		&cli.StringFlag{
			Name:  "stats",
			Usage: "serve receive counters as JSON on this address",
		},
		&cli.BoolFlag{
			Name:  "dedup",
			Usage: "suppress datagrams repeated across interfaces",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "debug logging",
		},
	},
	Action: run,
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("natdump failed")
	}
}

func run(c *cli.Context) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	profile, err := parseProfile(c.String("profile"))
	if err != nil {
		return err
	}
	if server := c.String("probe"); server != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		info, err := receiver.Probe(ctx, server)
		cancel()
		if err != nil {
			return fmt.Errorf("probe %s: %w", server, err)
		}
		profile = info.Profile()
		log.Info().
			Str("app", info.AppName).
			Str("protocol", versionString(info.ProtocolVersion)).
			Msg("probed server")
	}

	tracker := stats.New()
	options := []func(*receiver.Receiver){
		receiver.WithLogger(log.Logger),
		receiver.WithStats(tracker),
		receiver.WithReadBuffer(1 << 20),
	}
	if c.Bool("dedup") {
		options = append(options, receiver.WithDeduplicator(dedup.New(dedup.DefaultWindow)))
	}

	r, err := receiver.New(receiver.Config{
		Group:     c.String("group"),
		Interface: c.String("iface"),
		Profile:   profile,
	}, options...)
	if err != nil {
		return err
	}

	sink := observer.FrameSink(observer.FrameFunc(printFrame))
	if hold := c.Duration("ordered"); hold > 0 {
		fb := buffer.NewFrameBuffer(hold)
		defer fb.Close()
		go func() {
			for f := range fb.EmitCh {
				printFrame(f)
			}
		}()
		go func() {
			for gap := range fb.GapCh {
				log.Warn().Int32("after", gap.After).Int32("missing", gap.Missing).Msg("frame gap")
			}
		}()
		sink = fb
	}
	r.Subscribe(sink)

	if err := r.Start(); err != nil {
		return err
	}
	defer r.Close()

	if addr := c.String("stats"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/stats", tracker)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("stats endpoint failed")
			}
		}()
		log.Info().Str("addr", addr).Msg("serving stats")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Stringer("signal", sig).Msg("shutting down")
	return nil
}

func printFrame(f *natnet.Frame) {
	log.Info().
		Int32("frame", f.FrameNumber).
		Float64("timestamp", f.Timestamp).
		Int("rigid_bodies", len(f.RigidBodies)).
		Msg("frame")
	for _, rb := range f.RigidBodies {
		log.Info().
			Int32("id", rb.ID).
			Floats32("pos", rb.Position[:]).
			Floats32("quat", rb.Orientation[:]).
			Msg("rigid body")
	}
}

func parseProfile(name string) (natnet.Profile, error) {
	switch strings.ToLower(name) {
	case "legacy":
		return natnet.ProfileLegacy, nil
	case "v2":
		return natnet.ProfileV2, nil
	case "v3":
		return natnet.ProfileV3, nil
	}
	return natnet.Profile{}, fmt.Errorf("unknown profile %q (want legacy, v2 or v3)", name)
}

func versionString(v [4]uint8) string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}
