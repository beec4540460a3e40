package receiver

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mocaplink/natnet/pkg/dedup"
	"github.com/mocaplink/natnet/pkg/natnet"
	"github.com/mocaplink/natnet/pkg/observer"
	"github.com/mocaplink/natnet/pkg/stats"
)

// startLoopback binds a receiver to an ephemeral loopback port and dials
// a sender at it. Callers close both.
func startLoopback(t *testing.T, profile natnet.Profile, options ...func(*Receiver)) (*Receiver, *net.UDPConn) {
	t.Helper()
	r, err := New(Config{Group: "127.0.0.1:0", Profile: profile}, options...)
	require.NoError(t, err)
	require.NoError(t, r.Start())

	sender, err := net.DialUDP("udp4", nil, r.Addr())
	require.NoError(t, err)
	return r, sender
}

func frameDatagram(t *testing.T, f *natnet.Frame, p natnet.Profile) []byte {
	t.Helper()
	datagram, err := natnet.AppendFrame(nil, f, p)
	require.NoError(t, err)
	return datagram
}

func TestReceiver_DeliversFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, sender := startLoopback(t, natnet.ProfileV3, WithReadBuffer(1<<16))
	defer r.Close()
	defer sender.Close()

	frames := make(chan *natnet.Frame, 4)
	cancel := r.Subscribe(observer.FrameFunc(func(f *natnet.Frame) { frames <- f }))
	defer cancel()

	want := &natnet.Frame{
		FrameNumber: 1204,
		MarkerSets:  []natnet.MarkerSet{{Name: "hand", MarkerCount: 3}},
		RigidBodies: []natnet.RigidBody{{
			ID:            2,
			Position:      natnet.Vec3{0.1, 1.8, -0.4},
			Orientation:   natnet.Quat{0, 0, 0, 1},
			MeanError:     0.0004,
			TrackingFlags: 1,
		}},
		Timestamp: 40.133,
		Timing:    natnet.Timing{CameraMidExposure: 1.5, DataReceived: 2.5, Transmit: 3.5, Params: 1},
	}
	_, err := sender.Write(frameDatagram(t, want, natnet.ProfileV3))
	require.NoError(t, err)

	select {
	case got := <-frames:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
	}
}

func TestReceiver_OnRigidBody(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, sender := startLoopback(t, natnet.ProfileLegacy)
	defer r.Close()
	defer sender.Close()

	type pose struct {
		id   int32
		pos  natnet.Vec3
		quat natnet.Quat
	}
	poses := make(chan pose, 4)
	cancel := r.OnRigidBody(func(id int32, pos natnet.Vec3, quat natnet.Quat) {
		poses <- pose{id, pos, quat}
	})
	defer cancel()

	frame := &natnet.Frame{
		FrameNumber: 7,
		RigidBodies: []natnet.RigidBody{
			{ID: 1, Position: natnet.Vec3{1, 2, 3}, Orientation: natnet.Quat{0, 0, 0, 1}},
			{ID: 9, Position: natnet.Vec3{-1, 0, 1}, Orientation: natnet.Quat{0.5, 0.5, 0.5, 0.5}},
		},
	}
	_, err := sender.Write(frameDatagram(t, frame, natnet.ProfileLegacy))
	require.NoError(t, err)

	for i, rb := range frame.RigidBodies {
		select {
		case got := <-poses:
			assert.Equal(t, pose{rb.ID, rb.Position, rb.Orientation}, got, "body %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing callback for body %d", i)
		}
	}
}

// The read loop must outlive anything a peer throws at it, counting what
// it drops along the way.
func TestReceiver_SurvivesBadDatagrams(t *testing.T) {
	defer goleak.VerifyNone(t)

	tracker := stats.New()
	r, sender := startLoopback(t, natnet.ProfileLegacy,
		WithStats(tracker), WithDeduplicator(dedup.New(64)))
	defer r.Close()
	defer sender.Close()

	frames := make(chan *natnet.Frame, 8)
	cancel := r.Subscribe(observer.FrameFunc(func(f *natnet.Frame) { frames <- f }))
	defer cancel()

	first := frameDatagram(t, &natnet.Frame{FrameNumber: 1}, natnet.ProfileLegacy)
	last := frameDatagram(t, &natnet.Frame{FrameNumber: 2}, natnet.ProfileLegacy)
	foreign := binary.LittleEndian.AppendUint16(nil, 5)
	foreign = binary.LittleEndian.AppendUint16(foreign, 0)

	sent := 0
	for _, datagram := range [][]byte{first, first, foreign, {0x07, 0x00, 0xff}, last} {
		_, err := sender.Write(datagram)
		require.NoError(t, err)
		sent += len(datagram)
	}

	var got []int32
	for len(got) < 2 {
		select {
		case f := <-frames:
			got = append(got, f.FrameNumber)
		case <-time.After(2 * time.Second):
			t.Fatalf("frames after 2s: %v", got)
		}
	}
	assert.ElementsMatch(t, []int32{1, 2}, got)

	require.Eventually(t, func() bool {
		return tracker.Snapshot()["datagrams"] == 5
	}, 2*time.Second, 10*time.Millisecond)

	snap := tracker.Snapshot()
	assert.EqualValues(t, sent, snap["bytes"])
	assert.EqualValues(t, 2, snap["frames"])
	assert.EqualValues(t, 1, snap["duplicates"])
	assert.EqualValues(t, 1, snap["unsupported"])
	assert.EqualValues(t, 1, snap["decode_errors"])
	assert.EqualValues(t, 2, snap["last_frame"])
}

func TestReceiver_StartTwiceFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := New(Config{Group: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReceiver_Defaults(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, natnet.DefaultGroup, r.group.IP.String())
	assert.Equal(t, natnet.DefaultDataPort, r.group.Port)
	assert.Nil(t, r.Addr())
}

func TestReceiver_BadGroup(t *testing.T) {
	_, err := New(Config{Group: "no port here"})
	assert.Error(t, err)
}

func TestReceiver_MulticastAutoBind(t *testing.T) {
	defer goleak.VerifyNone(t)

	group := fmt.Sprintf("%s:0", natnet.DefaultGroup)
	r, err := New(Config{Group: group}, WithAutoBind(25*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Start())

	require.NotNil(t, r.Addr())
	assert.NotZero(t, r.Addr().Port)
	assert.True(t, r.Addr().IP.IsUnspecified())

	time.Sleep(60 * time.Millisecond) // let the poller tick at least once
	require.NoError(t, r.Close())
}

func TestProbe(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	info := &natnet.ServerInfo{
		AppName:         "Motive",
		AppVersion:      [4]uint8{2, 2, 0, 0},
		ProtocolVersion: [4]uint8{3, 1, 0, 0},
	}
	// a frame ahead of the reply, to prove the prober waits for the right tag
	decoy := frameDatagram(t, &natnet.Frame{FrameNumber: 9}, natnet.ProfileV3)

	served := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		n, client, err := server.ReadFromUDP(buf)
		if err != nil {
			served <- err
			return
		}
		if n != 4 || binary.LittleEndian.Uint16(buf) != uint16(natnet.MsgConnect) {
			served <- fmt.Errorf("unexpected ping: % x", buf[:n])
			return
		}
		server.WriteToUDP(decoy, client)
		_, err = server.WriteToUDP(natnet.AppendServerInfo(nil, info), client)
		served <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := Probe(ctx, server.LocalAddr().String())
	require.NoError(t, err)
	require.NoError(t, <-served)

	assert.Equal(t, info, got)
	assert.Equal(t, natnet.ProfileV3, got.Profile())
}

func TestProbe_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = Probe(ctx, server.LocalAddr().String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbe_BadAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Probe(ctx, "nowhere, no port")
	assert.Error(t, err)
}
