// Package devcallback keeps the last callback bodies posted to the dev-only loopback receiver
// (POST /dev/callback-receiver), so a tenant's callback URL can point back at the gateway during development.
package devcallback

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Capacity is how many entries the store keeps; older ones are overwritten.
const Capacity = 100

// Entry is one received body.
type Entry struct {
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Store holds received callback bodies. Not used in production.
type Store interface {
	// Add records body. A body that is not JSON is kept as {"_raw": "<text>"}.
	Add(body []byte)
	// List returns the stored entries, newest first.
	List() []Entry
}

// MemoryStore is a fixed-size ring buffer Store.
type MemoryStore struct {
	mu    sync.RWMutex
	ring  []Entry
	next  int
	count int
	clk   clock.Clock
}

// NewMemoryStore returns an empty store. A nil clk uses the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{ring: make([]Entry, Capacity), clk: clk}
}

// Add records body, overwriting the oldest entry once the store is full.
func (s *MemoryStore) Add(body []byte) {
	e := Entry{ReceivedAt: s.clk.Now().UTC(), Payload: normalize(body)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
}

// List returns the stored entries, newest first.
func (s *MemoryStore) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, s.count)
	for i := 1; i <= s.count; i++ {
		out = append(out, s.ring[(s.next-i+len(s.ring))%len(s.ring)])
	}
	return out
}

func normalize(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	raw, _ := json.Marshal(map[string]string{"_raw": string(body)})
	return raw
}
