package realtime

import "sync"

// lobby is the room every authenticated connection belongs to.
const lobby = "*"

// Broker is an in-process pub/sub for encoded frames, keyed by room. Each
// connection subscribes its outbound channel to the lobby and to at most
// one game room.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

func (b *Broker) Subscribe(room string, ch chan []byte) {
	b.mu.Lock()
	if b.subs[room] == nil {
		b.subs[room] = make(map[chan []byte]struct{})
	}
	b.subs[room][ch] = struct{}{}
	b.mu.Unlock()
}

func (b *Broker) Unsubscribe(room string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[room], ch)
	if len(b.subs[room]) == 0 {
		delete(b.subs, room)
	}
	b.mu.Unlock()
}

// Publish sends data to every subscriber of room except skip, which may
// be nil.
func (b *Broker) Publish(room string, data []byte, skip chan []byte) {
	b.mu.RLock()
	for ch := range b.subs[room] {
		if ch == skip {
			continue
		}
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
