package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/websockutil"
	"golang.org/x/time/rate"
)

var ErrBadFrame = errors.New("bad frame")

type Options struct {
	Websocket      websockutil.Options `toml:"websocket"`
	OutboxSize     int                 `toml:"outbox-size"`
	Rate           float64             `toml:"rate"`
	Burst          int                 `toml:"burst"`
	CommandTimeout time.Duration       `toml:"command-timeout"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	o.Websocket.FillDefaults()
	if o.OutboxSize == 0 {
		o.OutboxSize = 256
	}
	if o.Rate == 0 {
		o.Rate = 5
	}
	if o.Burst == 0 {
		o.Burst = 10
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = 30 * time.Second
	}
}

type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) Reply
}

type client struct {
	s   *websockutil.Session
	log *slog.Logger
	out chan Event
}

// Gateway implements messaging.Surface for chat-platform bridges connected over websockets.
// Every outgoing message is broadcast to all connected bridges, and interactions sent by any
// bridge are published to the subscribers of their channel. Messages sent while no bridge is
// connected are lost.
type Gateway struct {
	messaging.Hub

	log     *slog.Logger
	o       Options
	factory *websockutil.SessionFactory
	limiter *rate.Limiter
	cmds    CommandHandler

	mu       sync.Mutex
	seq      int64
	channels map[string]messaging.ChannelSpec
	clients  map[*client]struct{}
	ctx      context.Context
	cancel   func()
	wg       sync.WaitGroup
}

var _ messaging.Surface = (*Gateway)(nil)

func New(log *slog.Logger, cmds CommandHandler, o Options) *Gateway {
	o = o.Clone()
	o.FillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		log:      log,
		o:        o,
		factory:  websockutil.NewSessionFactory(o.Websocket),
		limiter:  rate.NewLimiter(rate.Limit(o.Rate), o.Burst),
		cmds:     cmds,
		channels: make(map[string]messaging.ChannelSpec),
		clients:  make(map[*client]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (g *Gateway) Close() {
	g.cancel()
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		c.s.Close()
	}
	g.wg.Wait()
}

// Bridges returns the number of connected bridges.
func (g *Gateway) Bridges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

func (g *Gateway) broadcastUnlocked(ev Event) {
	g.seq++
	ev.Seq = g.seq
	for c := range g.clients {
		select {
		case c.out <- ev:
		default:
			c.log.Warn("bridge is too slow, dropping")
			delete(g.clients, c)
			c.s.Shutdown()
		}
	}
}

func (g *Gateway) Send(ctx context.Context, channelID string, msg messaging.Message) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}
	id := idgen.ID()
	msg = msg.Clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastUnlocked(Event{
		Op:        EventMessageCreate,
		ChannelID: channelID,
		MessageID: id,
		Message:   &msg,
	})
	return id, nil
}

func (g *Gateway) Edit(ctx context.Context, channelID string, messageID string, msg messaging.Message) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limit: %w", err)
	}
	msg = msg.Clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastUnlocked(Event{
		Op:        EventMessageUpdate,
		ChannelID: channelID,
		MessageID: messageID,
		Message:   &msg,
	})
	return nil
}

func (g *Gateway) CreateChannel(ctx context.Context, spec messaging.ChannelSpec) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}
	id := idgen.ID()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[id] = spec
	g.broadcastUnlocked(Event{
		Op:        EventChannelCreate,
		ChannelID: id,
		Channel:   &spec,
	})
	return id, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limit: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.channels, channelID)
	g.broadcastUnlocked(Event{
		Op:        EventChannelDelete,
		ChannelID: channelID,
	})
	return nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if g.ctx.Err() != nil {
		http.Error(w, "gateway closed", http.StatusServiceUnavailable)
		return
	}
	c := &client{out: make(chan Event, g.o.OutboxSize)}
	ready := make(chan struct{})
	recv := func(data []byte) error {
		<-ready
		return g.receive(c, data)
	}
	s, err := g.factory.NewSession(w, req, g.log, recv)
	if err != nil {
		return
	}
	c.s = s
	c.log = g.log.With(slog.String("session", s.Name()))
	close(ready)

	g.mu.Lock()
	g.seq++
	c.out <- Event{
		Op:       EventHello,
		Seq:      g.seq,
		Session:  s.Name(),
		Channels: maps.Clone(g.channels),
	}
	g.clients[c] = struct{}{}
	g.wg.Add(1)
	g.mu.Unlock()
	c.log.Info("bridge connected")

	go func() {
		defer g.wg.Done()
		g.pump(c)
	}()
}

func (g *Gateway) pump(c *client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		g.mu.Unlock()
		c.s.Close()
		c.s.Wait()
		c.log.Info("bridge disconnected")
	}()
	for {
		select {
		case ev := <-c.out:
			if err := c.s.WriteJSON(g.ctx, ev); err != nil {
				return
			}
		case <-c.s.Done():
			return
		case <-g.ctx.Done():
			return
		}
	}
}

func (g *Gateway) receive(c *client, data []byte) error {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	switch f.Op {
	case FrameInteraction:
		it := f.Interaction
		if it == nil || it.ChannelID == "" || it.ActorID == "" {
			return fmt.Errorf("%w: incomplete interaction", ErrBadFrame)
		}
		n := g.Publish(*it)
		c.log.Debug("interaction",
			slog.String("kind", it.Kind.String()),
			slog.String("channel_id", it.ChannelID),
			slog.Int("subscribers", n),
		)
		return nil
	case FrameCommand:
		cmd := f.Command
		if cmd == nil || cmd.Name == "" || cmd.ActorID == "" {
			return fmt.Errorf("%w: incomplete command", ErrBadFrame)
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.runCommand(c, *cmd)
		}()
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadFrame, f.Op)
	}
}

func (g *Gateway) runCommand(c *client, cmd Command) {
	log := c.log.With(slog.String("command", cmd.Name), slog.String("actor_id", cmd.ActorID))
	var reply Reply
	if g.cmds == nil {
		reply = Reply{Text: "Commands are not supported."}
	} else {
		ctx, cancel := context.WithTimeout(g.ctx, g.o.CommandTimeout)
		reply = g.cmds.HandleCommand(ctx, cmd)
		cancel()
	}
	reply.ID = cmd.ID
	log.Info("command done", slog.Bool("ok", reply.OK))

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[c]; !ok {
		return
	}
	g.seq++
	select {
	case c.out <- Event{Op: EventReply, Seq: g.seq, Reply: &reply}:
	default:
		log.Warn("could not deliver command reply, outbox full")
	}
}
