package messaging

import (
	"errors"
	"sync"
)

var ErrUnsubscribed = errors.New("subscription closed")

const subscriptionBuffer = 32

type subscription struct {
	ch chan Interaction
}

// Hub fans interactions out to the subscribers of each channel. Slow subscribers lose
// interactions instead of blocking the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

func (h *Hub) Subscribe(channelID string) (<-chan Interaction, func()) {
	sub := &subscription{ch: make(chan Interaction, subscriptionBuffer)}
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[string]map[*subscription]struct{})
	}
	if h.subs[channelID] == nil {
		h.subs[channelID] = make(map[*subscription]struct{})
	}
	h.subs[channelID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[channelID], sub)
			if len(h.subs[channelID]) == 0 {
				delete(h.subs, channelID)
			}
			close(sub.ch)
		})
	}
}

// Publish returns the number of subscribers that received the interaction.
func (h *Hub) Publish(it Interaction) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for sub := range h.subs[it.ChannelID] {
		select {
		case sub.ch <- it:
			n++
		default:
		}
	}
	return n
}

func (h *Hub) Subscribers(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channelID])
}
