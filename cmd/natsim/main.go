// natsim broadcasts synthetic motion-capture frames for soak-testing
// receivers.
package main

import (
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mocaplink/natnet/pkg/natnet"
)

var app = &cli.App{
	Name:  "natsim",
	Usage: "broadcast synthetic motion-capture frames",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "target",
			Value: fmt.Sprintf("%s:%d", natnet.DefaultGroup, natnet.DefaultDataPort),
			Usage: "address to send frames to (host:port)",
		},
		&cli.IntFlag{
			Name:  "rate",
			Value: 120,
			Usage: "frames per second",
		},
		&cli.IntFlag{
			Name:  "bodies",
			Value: 2,
			Usage: "rigid bodies per frame",
		},
		&cli.IntFlag{
			Name:  "marker-sets",
			Value: 1,
			Usage: "marker sets per frame",
		},
		&cli.StringFlag{
			Name:  "profile",
			Value: "v3",
			Usage: "wire shape to emit: legacy, v2 or v3",
		},
		&cli.IntFlag{
			Name:  "frames",
			Value: 0,
			Usage: "stop after this many frames (0 = run until interrupted)",
		},
	},
	Action: run,
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("natsim failed")
	}
}

func run(c *cli.Context) error {
	profile, err := parseProfile(c.String("profile"))
	if err != nil {
		return err
	}
	rate := c.Int("rate")
	if rate <= 0 {
		return fmt.Errorf("rate %d: want at least 1 frame per second", rate)
	}

	addr, err := net.ResolveUDPAddr("udp4", c.String("target"))
	if err != nil {
		return fmt.Errorf("target %q: %w", c.String("target"), err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	total := c.Int("frames")
	bodies := c.Int("bodies")
	sets := c.Int("marker-sets")
	log.Info().Stringer("target", addr).Int("rate", rate).Int("bodies", bodies).Msg("broadcasting")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	var buf []byte
	sent := 0
	for total == 0 || sent < total {
		select {
		case <-ticker.C:
			sent++
			buf, err = natnet.AppendFrame(buf[:0], synthFrame(sent, rate, bodies, sets), profile)
			if err != nil {
				return err
			}
			if _, err := conn.Write(buf); err != nil {
				return err
			}
		case <-progress.C:
			log.Info().Int("frames", sent).Msg("progress")
		case sig := <-sigs:
			log.Info().Stringer("signal", sig).Int("frames", sent).Msg("stopping")
			return nil
		}
	}
	log.Info().Int("frames", sent).Msg("done")
	return nil
}

// synthFrame puts each body on its own circular orbit so consecutive
// frames drift smoothly and two runs with the same flags are identical.
func synthFrame(n, rate, bodies, sets int) *natnet.Frame {
	t := float64(n) / float64(rate)
	f := &natnet.Frame{
		FrameNumber: int32(n),
		Timestamp:   t,
		Timing:      natnet.Timing{CameraMidExposure: t, DataReceived: t, Transmit: t, Params: 1},
	}
	for s := 0; s < sets; s++ {
		f.MarkerSets = append(f.MarkerSets, natnet.MarkerSet{
			Name:        fmt.Sprintf("set%02d", s),
			MarkerCount: 4,
		})
	}
	for i := 0; i < bodies; i++ {
		phase := t + float64(i)
		f.RigidBodies = append(f.RigidBodies, natnet.RigidBody{
			ID:            int32(i + 1),
			Position:      natnet.Vec3{float32(math.Sin(phase)), 1.7, float32(math.Cos(phase))},
			Orientation:   natnet.Quat{0, float32(math.Sin(phase / 2)), 0, float32(math.Cos(phase / 2))},
			MeanError:     0.0005,
			TrackingFlags: 1,
		})
	}
	return f
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
