// Package messagingtest provides an in-memory messaging surface for tests.
package messagingtest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/alex65536/tourney/internal/messaging"
)

type Sent struct {
	ChannelID string
	MessageID string
	Msg       messaging.Message
}

type Surface struct {
	messaging.Hub

	mu       sync.Mutex
	lastID   int
	sent     []Sent
	channels map[string]messaging.ChannelSpec
	deleted  []string
	// FailSend makes every Send return an error when set.
	FailSend bool
	onSend   []func(Sent)
}

var _ messaging.Surface = (*Surface)(nil)

func New() *Surface {
	return &Surface{channels: make(map[string]messaging.ChannelSpec)}
}

func (s *Surface) nextIDUnlocked(prefix string) string {
	s.lastID++
	return fmt.Sprintf("%v%v", prefix, s.lastID)
}

func (s *Surface) Send(ctx context.Context, channelID string, msg messaging.Message) (string, error) {
	s.mu.Lock()
	if s.FailSend {
		s.mu.Unlock()
		return "", fmt.Errorf("send failed")
	}
	sent := Sent{ChannelID: channelID, MessageID: s.nextIDUnlocked("msg"), Msg: msg.Clone()}
	s.sent = append(s.sent, sent)
	hooks := slices.Clone(s.onSend)
	s.mu.Unlock()
	for _, h := range hooks {
		h(sent)
	}
	return sent.MessageID, nil
}

func (s *Surface) Edit(ctx context.Context, channelID string, messageID string, msg messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sent {
		if s.sent[i].MessageID == messageID {
			s.sent[i].Msg = msg.Clone()
			return nil
		}
	}
	return fmt.Errorf("message %v not found", messageID)
}

func (s *Surface) CreateChannel(ctx context.Context, spec messaging.ChannelSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextIDUnlocked("chan")
	s.channels[id] = spec
	return id, nil
}

func (s *Surface) DeleteChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	s.deleted = append(s.deleted, channelID)
	return nil
}

// OnSend registers a hook called after every sent message, outside of the surface lock.
func (s *Surface) OnSend(h func(Sent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = append(s.onSend, h)
}

func (s *Surface) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

func (s *Surface) SentTo(channelID string) []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Sent
	for _, m := range s.sent {
		if m.ChannelID == channelID {
			res = append(res, m)
		}
	}
	return res
}

// FindSent returns the messages whose title or text contains the substring.
func (s *Surface) FindSent(substr string) []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Sent
	for _, m := range s.sent {
		if strings.Contains(m.Msg.Title, substr) || strings.Contains(m.Msg.Text, substr) {
			res = append(res, m)
		}
	}
	return res
}

func (s *Surface) Channels() map[string]messaging.ChannelSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make(map[string]messaging.ChannelSpec, len(s.channels))
	for k, v := range s.channels {
		res[k] = v
	}
	return res
}

func (s *Surface) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deleted)
}
