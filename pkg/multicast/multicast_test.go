package multicast

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/ipv4"
)

func TestEligibleInterfaces(t *testing.T) {
	ifaces, err := EligibleInterfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		assert.NotZero(t, iface.Flags&net.FlagUp, iface.Name)
		assert.NotZero(t, iface.Flags&net.FlagMulticast, iface.Name)
	}
}

func TestJoin_NoUsableInterface(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	ghost := net.Interface{Index: 1 << 30, Name: "ghost0"}
	_, err = Join(ipv4.NewPacketConn(conn), net.ParseIP("239.255.42.99"), ghost)
	assert.Error(t, err)
}

func TestJoin_EligibleInterfaces(t *testing.T) {
	ifaces, err := EligibleInterfaces()
	require.NoError(t, err)
	if len(ifaces) == 0 {
		t.Skip("no multicast-capable interface")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	group := net.ParseIP("239.255.42.99")
	pc := ipv4.NewPacketConn(conn)
	joined, err := Join(pc, group, ifaces...)
	if err != nil {
		t.Skipf("membership refused here: %v", err)
	}
	assert.NotEmpty(t, joined)
	Leave(pc, group, joined...)
}

func TestBinder_FollowsInterfaceChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	current := []net.Interface{{Index: 1, Name: "eth0"}}
	source := func() ([]net.Interface, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]net.Interface(nil), current...), nil
	}

	var events struct {
		sync.Mutex
		joined, left []string
	}
	b := NewBinder(source, 2*time.Millisecond)
	stop := b.Bind(
		func(i net.Interface) {
			events.Lock()
			events.joined = append(events.joined, i.Name)
			events.Unlock()
		},
		func(i net.Interface) {
			events.Lock()
			events.left = append(events.left, i.Name)
			events.Unlock()
		},
	)

	events.Lock()
	assert.Equal(t, []string{"eth0"}, events.joined)
	events.Unlock()

	mu.Lock()
	current = []net.Interface{{Index: 2, Name: "wlan0"}}
	mu.Unlock()

	assert.Eventually(t, func() bool {
		events.Lock()
		defer events.Unlock()
		return len(events.joined) == 2 && len(events.left) == 1
	}, time.Second, time.Millisecond)

	events.Lock()
	assert.Equal(t, []string{"eth0", "wlan0"}, events.joined)
	assert.Equal(t, []string{"eth0"}, events.left)
	events.Unlock()

	stop()
	stop()
}

func TestBinder_SourceErrorKeepsMembership(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	fail := false
	source := func() ([]net.Interface, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, assert.AnError
		}
		return []net.Interface{{Index: 1, Name: "eth0"}}, nil
	}

	var left int
	var leftMu sync.Mutex
	b := NewBinder(source, 2*time.Millisecond)
	stop := b.Bind(func(net.Interface) {}, func(net.Interface) {
		leftMu.Lock()
		left++
		leftMu.Unlock()
	})
	defer stop()

	mu.Lock()
	fail = true
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	leftMu.Lock()
	assert.Zero(t, left)
	leftMu.Unlock()
}
