package multicast

import (
	"net"
	"sync"
	"time"
)

// Binder polls an interface source and reports arrivals and departures,
// so group membership can follow interfaces that come and go after
// startup.
type Binder struct {
	source Source
	period time.Duration
}

// NewBinder polls source every period. A nil source means
// EligibleInterfaces; period <= 0 falls back to one second.
func NewBinder(source Source, period time.Duration) *Binder {
	if source == nil {
		source = EligibleInterfaces
	}
	if period <= 0 {
		period = time.Second
	}
	return &Binder{source: source, period: period}
}

// Bind calls join for every interface present now and for each one that
// appears later, and leave for each one that disappears. Interfaces are
// keyed by name. The returned stop halts polling and waits for the
// poller to finish; calling it again is a no-op.
func (b *Binder) Bind(join, leave func(net.Interface)) func() {
	curr := make(map[string]net.Interface)
	apply := func() {
		ifaces, err := b.source()
		if err != nil {
			return
		}
		next := make(map[string]net.Interface, len(ifaces))
		for _, iface := range ifaces {
			next[iface.Name] = iface
		}
		for name, iface := range curr {
			if _, ok := next[name]; !ok {
				leave(iface)
			}
		}
		for name, iface := range next {
			if _, ok := curr[name]; !ok {
				join(iface)
			}
		}
		curr = next
	}
	apply()

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.period)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				apply()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
}
