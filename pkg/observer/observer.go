// Package observer fans decoded frames out to subscribed consumers.
package observer

import (
	"sync"

	"github.com/mocaplink/natnet/pkg/natnet"
)

// FrameSink receives decoded frames. OnFrame runs synchronously on the
// receiver's worker, so implementations must not block; hand the frame to
// a channel or goroutine if the work is slow.
type FrameSink interface {
	OnFrame(f *natnet.Frame)
}

// FrameFunc adapts a plain function to a FrameSink.
type FrameFunc func(*natnet.Frame)

func (fn FrameFunc) OnFrame(f *natnet.Frame) { fn(f) }

// RigidBodyFunc adapts a per-rigid-body callback to a FrameSink. The
// callback runs once per rigid body in wire order.
func RigidBodyFunc(fn func(id int32, pos natnet.Vec3, quat natnet.Quat)) FrameSink {
	return FrameFunc(func(f *natnet.Frame) {
		for _, rb := range f.RigidBodies {
			fn(rb.ID, rb.Position, rb.Orientation)
		}
	})
}

// CancelFunc removes a subscription. Calling it again is a no-op.
type CancelFunc func()

type subscription struct {
	sink FrameSink
}

// Broadcast delivers every emitted frame to every subscribed sink, in
// subscription order. The zero value is ready to use.
type Broadcast struct {
	mu   sync.RWMutex
	subs []*subscription
}

func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

// Subscribe registers a sink for all frames emitted after it returns.
func (b *Broadcast) Subscribe(sink FrameSink) CancelFunc {
	sub := &subscription{sink: sink}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit hands f to every subscribed sink. Sinks must not subscribe or
// cancel from inside OnFrame.
func (b *Broadcast) Emit(f *natnet.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.sink.OnFrame(f)
	}
}
