// Package buffer re-emits decoded frames in frame-number order.
package buffer

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mocaplink/natnet/pkg/natnet"
	"github.com/mocaplink/natnet/pkg/observer"
)

// backlog sizes for the intake and emit channels and the gap reports
const (
	frameBacklog = 1024
	gapBacklog   = 64
)

// GapReport names a run of frame numbers that never arrived before the
// hold delay ran out. Report-only; nothing is retransmitted.
type GapReport struct {
	After   int32 // last frame delivered before the gap
	Missing int32 // how many frame numbers are absent
}

type entry struct {
	frame *natnet.Frame
	due   time.Time
}

// FrameBuffer holds frames up to a delay and delivers them on EmitCh with
// strictly increasing frame numbers. In-sequence frames pass through
// without waiting; a frame older than the last one delivered is dropped.
// Sends on EmitCh never block: frames the consumer has left no room for
// are dropped and counted, so a stalled consumer cannot wedge the loop.
// It satisfies observer.FrameSink, so it can be subscribed directly.
type FrameBuffer struct {
	delay time.Duration

	EmitCh chan *natnet.Frame
	GapCh  chan GapReport

	pushCh chan *natnet.Frame
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64

	pending []entry
	last    int32
	emitted bool
}

var _ observer.FrameSink = (*FrameBuffer)(nil)

func NewFrameBuffer(delay time.Duration) *FrameBuffer {
	b := &FrameBuffer{
		delay:  delay,
		EmitCh: make(chan *natnet.Frame, frameBacklog),
		GapCh:  make(chan GapReport, gapBacklog),
		pushCh: make(chan *natnet.Frame, frameBacklog),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Add hands a frame to the ordering loop. It blocks only when the intake
// backlog is full.
func (b *FrameBuffer) Add(f *natnet.Frame) {
	b.pushCh <- f
}

// OnFrame implements observer.FrameSink.
func (b *FrameBuffer) OnFrame(f *natnet.Frame) {
	b.Add(f)
}

// Dropped counts frames lost to a full EmitCh.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Close drains the held frames onto EmitCh in order, closes both output
// channels and stops the loop. Safe to call more than once.
func (b *FrameBuffer) Close() {
	b.closeOnce.Do(func() { close(b.quit) })
	<-b.done
}

func (b *FrameBuffer) run() {
	defer close(b.done)
	defer close(b.GapCh)
	defer close(b.EmitCh)

	for {
		if len(b.pending) == 0 {
			select {
			case f := <-b.pushCh:
				b.insert(f)
			case <-b.quit:
				b.drain()
				return
			}
			continue
		}

		head := b.pending[0]
		if b.emitted && head.frame.FrameNumber == b.last+1 {
			b.emit(head.frame)
			b.pending = b.pending[1:]
			continue
		}
		remaining := time.Until(head.due)
		if remaining <= 0 {
			b.emit(head.frame)
			b.pending = b.pending[1:]
			continue
		}

		select {
		case f := <-b.pushCh:
			b.insert(f)
		case <-time.After(remaining):
			b.emit(head.frame)
			b.pending = b.pending[1:]
		case <-b.quit:
			b.drain()
			return
		}
	}
}

// insert places f into the pending window, dropping stale frames and
// duplicates.
// TODO: reset the ordering state when frame numbers regress after a
// server restart instead of dropping everything as stale.
func (b *FrameBuffer) insert(f *natnet.Frame) {
	if b.emitted && f.FrameNumber <= b.last {
		return
	}
	i := sort.Search(len(b.pending), func(i int) bool {
		return b.pending[i].frame.FrameNumber >= f.FrameNumber
	})
	if i < len(b.pending) && b.pending[i].frame.FrameNumber == f.FrameNumber {
		return
	}
	b.pending = append(b.pending, entry{})
	copy(b.pending[i+1:], b.pending[i:])
	b.pending[i] = entry{frame: f, due: time.Now().Add(b.delay)}
}

func (b *FrameBuffer) emit(f *natnet.Frame) {
	if b.emitted && f.FrameNumber > b.last+1 {
		select {
		case b.GapCh <- GapReport{After: b.last, Missing: f.FrameNumber - b.last - 1}:
		default:
		}
	}
	select {
	case b.EmitCh <- f:
	default:
		b.dropped.Add(1)
	}
	b.last = f.FrameNumber
	b.emitted = true
}

// drain flushes the intake backlog and then every held frame, in order,
// without waiting out their delays.
func (b *FrameBuffer) drain() {
	for {
		select {
		case f := <-b.pushCh:
			b.insert(f)
			continue
		default:
		}
		break
	}
	for _, e := range b.pending {
		b.emit(e.frame)
	}
	b.pending = nil
}
