// Package ratelimit provides per-IP token bucket rate limiting for gnsd's
// inbound UDP socket, gating unauthenticated traffic before it reaches
// pkg/udpsession.
//
// The IPRateLimiter maintains one token bucket per source IP and a fixed-size
// LRU-style cache to bound memory use. It is safe for concurrent use.
//
// pkg/udpio.Socket.dispatch treats every inbound datagram that misses the
// KCN-hit box path and is not a verified broadcast as a KX attempt, which forces an ECDH and a signature
// verification — asymmetric work an attacker can trigger for the cost of a
// UDP send. AllowN lets a caller charge that path more tokens than a cheap,
// already-authenticated box datagram, so a source flooding KX attempts
// exhausts its bucket well before one sending legitimate box traffic does.
package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultRate is the default allowed messages per second per source IP.
	DefaultRate = 10
	// DefaultBurst is the default burst size (token bucket depth) per source IP.
	DefaultBurst = 20
	// DefaultMaxIPs is the maximum number of source IPs tracked simultaneously.
	// When the cache is full the least-recently-used entry is evicted.
	DefaultMaxIPs = 4096
	// KXCost is the token cost pkg/udpio.Socket charges for a datagram that
	// falls through to the KX path, relative to BoxCost for one that hits
	// the KCN map. Spent against the same per-IP bucket as box traffic so a
	// source alternating between the two still drains its budget correctly.
	KXCost = 4
	// BoxCost is the token cost for a datagram the KCN map already
	// recognizes as an authenticated box.
	BoxCost = 1
)

// bucket is a token bucket for a single source IP.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// entry is a cached bucket with its IP key.
type entry struct {
	ip  string
	bkt *bucket
}

// IPRateLimiter rate-limits incoming messages on a per-source-IP basis using
// token buckets. An LRU eviction policy keeps memory bounded.
type IPRateLimiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64 // maximum token depth
	maxIPs  int
	buckets map[string]*list.Element
	lru     *list.List
}

// New creates a new IPRateLimiter with the given rate, burst, and maximum
// number of tracked IPs.
func New(rate, burst float64, maxIPs int) *IPRateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if maxIPs <= 0 {
		maxIPs = DefaultMaxIPs
	}
	return &IPRateLimiter{
		rate:    rate,
		burst:   burst,
		maxIPs:  maxIPs,
		buckets: make(map[string]*list.Element, maxIPs),
		lru:     list.New(),
	}
}

// NewDefault creates an IPRateLimiter with DefaultRate, DefaultBurst, and DefaultMaxIPs.
func NewDefault() *IPRateLimiter {
	return New(DefaultRate, DefaultBurst, DefaultMaxIPs)
}

// Allow returns true if the message from the given IP should be processed.
// It consumes BoxCost tokens from the source IP's bucket. Returns false if
// the bucket holds fewer than that (rate limit exceeded).
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.AllowN(ip, BoxCost)
}

// AllowN is Allow generalized to a caller-supplied token cost, letting
// pkg/udpio.Socket charge KXCost for datagrams that fall through to the KX
// path and BoxCost for ones that hit the KCN map.
func (l *IPRateLimiter) AllowN(ip string, cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	elem, exists := l.buckets[ip]
	if exists {
		bkt := elem.Value.(*entry).bkt
		// Refill tokens based on elapsed time
		elapsed := now.Sub(bkt.lastFill).Seconds()
		bkt.tokens += elapsed * l.rate
		if bkt.tokens > l.burst {
			bkt.tokens = l.burst
		}
		bkt.lastFill = now
		l.lru.MoveToFront(elem)

		if bkt.tokens < cost {
			return false
		}
		bkt.tokens -= cost
		return true
	}

	// New IP: evict LRU entry if at capacity
	if l.lru.Len() >= l.maxIPs {
		oldest := l.lru.Back()
		if oldest != nil {
			l.lru.Remove(oldest)
			delete(l.buckets, oldest.Value.(*entry).ip)
		}
	}

	if cost > l.burst {
		return false
	}

	// Start with burst-cost tokens (consumed cost for this message)
	bkt := &bucket{tokens: l.burst - cost, lastFill: now}
	e := &entry{ip: ip, bkt: bkt}
	elem = l.lru.PushFront(e)
	l.buckets[ip] = elem
	return true
}

// Reset clears all state. Useful for testing.
func (l *IPRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*list.Element, l.maxIPs)
	l.lru.Init()
}
