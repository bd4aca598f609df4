// Package activity fans out merchant-facing events (draft listings ready,
// purchases) to WebSocket subscribers, keeping a short replay buffer per store.
package activity

import (
	"container/list"
	"sync"
	"time"
)

// Event types.
const (
	TypeDraftReady = "listing.draft_ready"
	TypePurchase   = "market.purchase"
	TypeCartAdd    = "cart.item_added"
)

// Event is one activity item.
type Event struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	StoreID   string            `json:"store_id"`
	ProductID string            `json:"product_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	At        time.Time         `json:"at"`
	Data      map[string]string `json:"data,omitempty"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(e Event) Event
}

const subscriberBuffer = 32

// Hub is an in-process Publisher with per-store subscribers.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[int64]chan Event
	history    map[string]*list.List
	maxHistory int
	nextID     int64
	nextSub    int64
	now        func() time.Time
}

// NewHub creates a Hub keeping the last maxHistory events of each store.
func NewHub(maxHistory int) *Hub {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Hub{
		subs:       make(map[string]map[int64]chan Event),
		history:    make(map[string]*list.List),
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// Publish stamps e with an id and time, records it and delivers it to the
// store's subscribers. Slow subscribers miss events rather than block.
func (h *Hub) Publish(e Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	e.ID = h.nextID
	if e.At.IsZero() {
		e.At = h.now()
	}

	l, ok := h.history[e.StoreID]
	if !ok {
		l = list.New()
		h.history[e.StoreID] = l
	}
	l.PushBack(e)
	for l.Len() > h.maxHistory {
		l.Remove(l.Front())
	}

	for _, ch := range h.subs[e.StoreID] {
		select {
		case ch <- e:
		default:
		}
	}
	return e
}

// Since returns the store's buffered events with an id greater than afterID.
func (h *Hub) Since(storeID string, afterID int64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.since(storeID, afterID)
}

func (h *Hub) since(storeID string, afterID int64) []Event {
	l, ok := h.history[storeID]
	if !ok {
		return nil
	}
	var out []Event
	for el := l.Front(); el != nil; el = el.Next() {
		if ev := el.Value.(Event); ev.ID > afterID {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe registers for a store's events. The returned replay holds the
// buffered events after afterID; cancel must be called to release the channel.
func (h *Hub) Subscribe(storeID string, afterID int64) (replay []Event, events <-chan Event, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	id := h.nextSub
	ch := make(chan Event, subscriberBuffer)
	if _, ok := h.subs[storeID]; !ok {
		h.subs[storeID] = make(map[int64]chan Event)
	}
	h.subs[storeID][id] = ch

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[storeID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, storeID)
				}
			}
			close(ch)
		})
	}
	return h.since(storeID, afterID), ch, cancel
}

// Subscribers returns how many subscribers a store has.
func (h *Hub) Subscribers(storeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[storeID])
}
