// Package dedup suppresses datagrams already seen. Joining a multicast
// group on several interfaces delivers the same datagram once per
// interface; only the first copy should reach the decoder.
package dedup

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/segmentio/fasthash/fnv1a"
)

const DefaultWindow = 4096

type Deduplicator struct {
	cache *lru.Cache
}

// New returns a deduplicator remembering the last window datagrams.
// window <= 0 falls back to DefaultWindow.
func New(window int) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	cache, err := lru.New(window)
	if err != nil {
		panic(err)
	}
	return &Deduplicator{cache: cache}
}

// Seen reports whether an identical datagram was already received within
// the window, remembering this one either way.
func (d *Deduplicator) Seen(datagram []byte) bool {
	hash := fnv1a.HashBytes64(datagram)
	found, _ := d.cache.ContainsOrAdd(hash, true)
	return found
}
