package udpsession

import (
	"container/heap"
	"net"
	"time"
)

// SenderAddress is this node's view of a peer it receives KX'd traffic
// from: one SharedSecret per completed handshake, newest at the head
//.
type SenderAddress struct {
	PeerID  string
	Addr    net.Addr
	State   PeerState
	Secrets []*SharedSecret // head-first
	LastSeen time.Time
}

// ReceiverAddress is this node's view of a peer it sends to: the
// SharedSecret list searched by handle_ack's cmac scan.
type ReceiverAddress struct {
	PeerID    string
	Addr      net.Addr
	State     PeerState
	Secrets   []*SharedSecret // head-first
	AckCredit uint32
	LastSeen  time.Time
}

// PromoteSecret moves ss to the head of the list, per consider_ss_ack /
// handle_ack's "promote ss to list head" step.
func promoteSecret(secrets []*SharedSecret, ss *SharedSecret) []*SharedSecret {
	out := make([]*SharedSecret, 0, len(secrets))
	out = append(out, ss)
	for _, s := range secrets {
		if s != ss {
			out = append(out, s)
		}
	}
	return out
}

// EnforceMaxSecrets evicts tail secrets from secrets until len <=
// MaxSecrets.
func enforceMaxSecrets(secrets []*SharedSecret) []*SharedSecret {
	if len(secrets) <= MaxSecrets {
		return secrets
	}
	return secrets[:MaxSecrets]
}

// timeoutItem is one entry in a peer or secret expiry heap, ordered by
// Deadline.
type timeoutItem struct {
	Key      string
	Deadline time.Time
	index    int
}

// TimeoutHeap is a min-heap of pending expirations, used for
// PROTO_QUEUE_TIMEOUT (idle peer eviction). ADDRESS_VALIDITY_PERIOD is not
// tracked in any heap.
type TimeoutHeap struct {
	items []*timeoutItem
	byKey map[string]*timeoutItem
}

// NewTimeoutHeap creates an empty heap.
func NewTimeoutHeap() *TimeoutHeap {
	h := &TimeoutHeap{byKey: make(map[string]*timeoutItem)}
	heap.Init(h)
	return h
}

func (h *TimeoutHeap) Len() int { return len(h.items) }
func (h *TimeoutHeap) Less(i, j int) bool {
	return h.items[i].Deadline.Before(h.items[j].Deadline)
}
func (h *TimeoutHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *TimeoutHeap) Push(x any) {
	item := x.(*timeoutItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
}
func (h *TimeoutHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

// Upsert schedules (or reschedules) key's expiry at deadline.
func (h *TimeoutHeap) Upsert(key string, deadline time.Time) {
	if item, ok := h.byKey[key]; ok {
		item.Deadline = deadline
		heap.Fix(h, item.index)
		return
	}
	item := &timeoutItem{Key: key, Deadline: deadline}
	h.byKey[key] = item
	heap.Push(h, item)
}

// Remove cancels key's pending expiry, if any.
func (h *TimeoutHeap) Remove(key string) {
	item, ok := h.byKey[key]
	if !ok {
		return
	}
	heap.Remove(h, item.index)
	delete(h.byKey, key)
}

// Expired pops and returns every key whose deadline is at or before now.
func (h *TimeoutHeap) Expired(now time.Time) []string {
	var out []string
	for h.Len() > 0 && !h.items[0].Deadline.After(now) {
		item := heap.Pop(h).(*timeoutItem)
		delete(h.byKey, item.Key)
		out = append(out, item.Key)
	}
	return out
}
