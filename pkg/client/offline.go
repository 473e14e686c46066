package client

import (
	"sync"
	"time"
)

// ConnectivityProbe reports whether the runtime currently has network
// connectivity. The client consults it before every request when
// offline support is enabled.
type ConnectivityProbe interface {
	Online() bool
}

// ManualProbe is a connectivity probe toggled by the embedding
// application, typically from its own network monitoring.
type ManualProbe struct {
	mu     sync.Mutex
	online bool
}

// NewManualProbe creates a probe that starts online.
func NewManualProbe() *ManualProbe {
	return &ManualProbe{online: true}
}

// Online reports the current connectivity state.
func (p *ManualProbe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// set updates the state and reports whether it changed.
func (p *ManualProbe) set(online bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.online != online
	p.online = online
	return changed
}

// QueuedRequest is a request deferred while offline.
type QueuedRequest struct {
	Method     string
	URL        string
	Body       []byte
	Options    RequestOptions
	Attempts   int
	EnqueuedAt time.Time
}

// offlineQueue is a FIFO list of requests deferred while offline.
//
// Replays drain in enqueue order; a request that fails during replay
// is appended to the back rather than dropped. This keeps a
// persistently failing request from blocking the queue behind it, but
// it also means such a request never resolves on its own and strict
// ordering is not preserved across failures. Setting
// Config.MaxReplayAttempts bounds how long a failing request lingers.
type offlineQueue struct {
	mu    sync.Mutex
	items []QueuedRequest
}

func (q *offlineQueue) enqueue(r QueuedRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

func (q *offlineQueue) dequeue() (QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedRequest{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

func (q *offlineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *offlineQueue) snapshot() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedRequest, len(q.items))
	copy(out, q.items)
	return out
}
