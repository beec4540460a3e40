// Package receiver owns the multicast socket and the worker that reads,
// decodes and fans out frames.
package receiver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/mocaplink/natnet/pkg/dedup"
	"github.com/mocaplink/natnet/pkg/multicast"
	"github.com/mocaplink/natnet/pkg/natnet"
	"github.com/mocaplink/natnet/pkg/observer"
	"github.com/mocaplink/natnet/pkg/stats"
)

// Config carries the addressing the receiver needs. Everything else is
// optional and set through options.
type Config struct {
	// Group is the host:port to receive on. A multicast host is joined
	// on the configured interfaces; a unicast host is bound directly,
	// which is how point-to-point streams and the loopback tests run.
	// Empty means the protocol default group and data port.
	Group string
	// Interface restricts group membership to one named interface.
	// Empty means every eligible interface.
	Interface string
	// Profile selects the wire shape of the server being listened to.
	// The zero value is the legacy shape; use Probe to fill it from a
	// live server.
	Profile natnet.Profile
}

// Receiver reads datagrams from one group, decodes them and delivers
// frames to subscribers. A single worker goroutine does all decoding and
// delivery, so sinks run serially and must not block.
type Receiver struct {
	group     *net.UDPAddr
	ifaceName string
	decoder   *natnet.Decoder

	log      zerolog.Logger
	dedup    *dedup.Deduplicator
	stats    *stats.Tracker
	readBuf  int
	bindPoll time.Duration

	broadcast *observer.Broadcast

	mu     sync.Mutex
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	unbind func()

	jmu    sync.Mutex
	joined map[string]net.Interface

	done sync.WaitGroup
}

// New builds a receiver. The socket opens on Start, so subscriptions
// registered in between never miss a frame.
func New(cfg Config, options ...func(*Receiver)) (*Receiver, error) {
	group := cfg.Group
	if group == "" {
		group = fmt.Sprintf("%s:%d", natnet.DefaultGroup, natnet.DefaultDataPort)
	}
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", group, err)
	}

	r := &Receiver{
		group:     addr,
		ifaceName: cfg.Interface,
		decoder:   natnet.NewDecoder(cfg.Profile),
		log:       zerolog.Nop(),
		broadcast: observer.NewBroadcast(),
		joined:    make(map[string]net.Interface),
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// Subscribe registers a sink for every decoded frame.
func (r *Receiver) Subscribe(sink observer.FrameSink) observer.CancelFunc {
	return r.broadcast.Subscribe(sink)
}

// OnRigidBody registers a callback invoked once per rigid body in wire
// order, the shape pose consumers usually want.
func (r *Receiver) OnRigidBody(fn func(id int32, pos natnet.Vec3, quat natnet.Quat)) observer.CancelFunc {
	return r.broadcast.Subscribe(observer.RigidBodyFunc(fn))
}

// Addr returns the bound local address, or nil before Start.
func (r *Receiver) Addr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Start opens the socket, joins the group and launches the worker.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return errors.New("receiver already started")
	}

	laddr := r.group
	if r.group.IP.IsMulticast() {
		laddr = &net.UDPAddr{IP: net.IPv4zero, Port: r.group.Port}
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return err
	}
	if r.readBuf > 0 {
		if err := conn.SetReadBuffer(r.readBuf); err != nil {
			r.log.Debug().Err(err).Msg("read buffer size not honored")
		}
	}

	if r.group.IP.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		if r.bindPoll > 0 {
			// membership follows interface hotplug; zero matches now
			// is fine, the poller joins them as they come up
			r.pconn = pc
			r.unbind = multicast.NewBinder(r.interfaceSource(), r.bindPoll).Bind(
				func(iface net.Interface) { r.joinGroup(pc, iface) },
				func(iface net.Interface) { r.leaveGroup(pc, iface) },
			)
		} else {
			ifaces, err := r.interfaceSource()()
			if err != nil {
				conn.Close()
				return err
			}
			joined, err := multicast.Join(pc, r.group.IP, ifaces...)
			if err != nil {
				conn.Close()
				return err
			}
			r.pconn = pc
			r.jmu.Lock()
			for _, iface := range joined {
				r.joined[iface.Name] = iface
			}
			r.jmu.Unlock()
			for _, iface := range joined {
				r.log.Info().Str("iface", iface.Name).Stringer("group", r.group).Msg("joined group")
			}
		}
	}

	r.conn = conn
	r.done.Add(1)
	go r.readLoop(conn)
	r.log.Info().Stringer("listen", conn.LocalAddr()).Msg("receiving")
	return nil
}

// Close leaves the group, closes the socket and waits for the worker.
// Subscriptions stay registered; they simply stop being called.
func (r *Receiver) Close() error {
	r.mu.Lock()
	conn, pconn, unbind := r.conn, r.pconn, r.unbind
	r.conn, r.pconn, r.unbind = nil, nil, nil
	r.mu.Unlock()

	if unbind != nil {
		unbind()
	}
	if pconn != nil {
		r.jmu.Lock()
		ifaces := make([]net.Interface, 0, len(r.joined))
		for _, iface := range r.joined {
			ifaces = append(ifaces, iface)
		}
		r.joined = make(map[string]net.Interface)
		r.jmu.Unlock()
		multicast.Leave(pconn, r.group.IP, ifaces...)
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}
	r.done.Wait()
	return err
}

func (r *Receiver) interfaceSource() multicast.Source {
	if r.ifaceName == "" {
		return multicast.EligibleInterfaces
	}
	name := r.ifaceName
	return func() ([]net.Interface, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, err
		}
		return []net.Interface{*iface}, nil
	}
}

func (r *Receiver) joinGroup(pc *ipv4.PacketConn, iface net.Interface) {
	if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: r.group.IP}); err != nil {
		r.log.Debug().Str("iface", iface.Name).Err(err).Msg("join refused")
		return
	}
	r.jmu.Lock()
	r.joined[iface.Name] = iface
	r.jmu.Unlock()
	r.log.Info().Str("iface", iface.Name).Stringer("group", r.group).Msg("joined group")
}

func (r *Receiver) leaveGroup(pc *ipv4.PacketConn, iface net.Interface) {
	r.jmu.Lock()
	delete(r.joined, iface.Name)
	r.jmu.Unlock()
	if err := pc.LeaveGroup(&iface, &net.UDPAddr{IP: r.group.IP}); err != nil {
		r.log.Debug().Str("iface", iface.Name).Err(err).Msg("leave failed")
		return
	}
	r.log.Info().Str("iface", iface.Name).Stringer("group", r.group).Msg("left group")
}

// readLoop runs until the socket closes. Decode failures drop the one
// datagram and never stop the loop.
func (r *Receiver) readLoop(conn *net.UDPConn) {
	defer r.done.Done()

	// frames hold copies of everything they need, so one buffer serves
	// the whole loop
	msg := make([]byte, natnet.MaxDatagramSize)
	for {
		n, sender, err := conn.ReadFromUDP(msg)
		if err != nil {
			return
		}
		r.stats.Datagram(n)

		if r.dedup != nil && r.dedup.Seen(msg[:n]) {
			r.stats.Duplicate()
			continue
		}

		frame, err := r.decoder.DecodePacket(msg[:n])
		if err != nil {
			var um *natnet.UnsupportedMessageError
			if errors.As(err, &um) {
				r.stats.Unsupported()
				r.log.Debug().Uint16("tag", uint16(um.ID)).Stringer("from", sender).Msg("ignoring message")
				continue
			}
			r.stats.DecodeError()
			r.log.Warn().Err(err).Int("bytes", n).Stringer("from", sender).Msg("dropping undecodable datagram")
			continue
		}

		r.stats.Frame(frame.FrameNumber, len(frame.RigidBodies))
		r.broadcast.Emit(frame)
	}
}
