package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alex65536/tourney/internal/messaging"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCommands struct{}

func (echoCommands) HandleCommand(ctx context.Context, cmd Command) Reply {
	var args struct {
		Team string `json:"team"`
	}
	if err := json.Unmarshal(cmd.Args, &args); err != nil {
		return Reply{Text: "bad args"}
	}
	return Reply{OK: true, Text: cmd.ActorID + " registered " + args.Team}
}

func dial(t *testing.T, g *Gateway) *websocket.Conn {
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func newTestGateway(t *testing.T) *Gateway {
	g := New(slogx.DiscardLogger(), echoCommands{}, Options{Rate: 1000, Burst: 1000})
	t.Cleanup(g.Close)
	return g
}

func TestGatewayOutbound(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	chanID, err := g.CreateChannel(ctx, messaging.ChannelSpec{Name: "match-1", Members: []string{"u1"}})
	require.NoError(t, err)

	conn := dial(t, g)
	hello := readEvent(t, conn)
	assert.Equal(t, EventHello, hello.Op)
	assert.NotEmpty(t, hello.Session)
	require.Contains(t, hello.Channels, chanID)
	assert.Equal(t, "match-1", hello.Channels[chanID].Name)
	require.Eventually(t, func() bool { return g.Bridges() == 1 }, time.Second, 5*time.Millisecond)

	msgID, err := g.Send(ctx, chanID, messaging.Message{Title: "Map veto", Color: messaging.ColorInfo})
	require.NoError(t, err)
	ev := readEvent(t, conn)
	assert.Equal(t, EventMessageCreate, ev.Op)
	assert.Equal(t, msgID, ev.MessageID)
	assert.Equal(t, chanID, ev.ChannelID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "Map veto", ev.Message.Title)
	assert.Greater(t, ev.Seq, hello.Seq)

	require.NoError(t, g.Edit(ctx, chanID, msgID, messaging.Message{Title: "Veto: ban"}))
	ev = readEvent(t, conn)
	assert.Equal(t, EventMessageUpdate, ev.Op)
	assert.Equal(t, "Veto: ban", ev.Message.Title)

	require.NoError(t, g.DeleteChannel(ctx, chanID))
	ev = readEvent(t, conn)
	assert.Equal(t, EventChannelDelete, ev.Op)
	assert.Equal(t, chanID, ev.ChannelID)
}

func TestGatewayInbound(t *testing.T) {
	g := newTestGateway(t)
	conn := dial(t, g)
	_ = readEvent(t, conn)

	ch, unsub := g.Subscribe("chan1")
	defer unsub()

	require.NoError(t, conn.WriteJSON(Frame{
		Op: FrameInteraction,
		Interaction: &messaging.Interaction{
			Kind:      messaging.InteractionSelect,
			ChannelID: "chan1",
			MessageID: "m1",
			ActorID:   "u1",
			Choice:    "Metro",
		},
	}))
	select {
	case it := <-ch:
		assert.Equal(t, "Metro", it.Choice)
		assert.Equal(t, "u1", it.ActorID)
	case <-time.After(2 * time.Second):
		t.Fatal("no interaction")
	}

	require.NoError(t, conn.WriteJSON(Frame{
		Op: FrameCommand,
		Command: &Command{
			ID:      "c1",
			Name:    "register",
			ActorID: "u1",
			Args:    json.RawMessage(`{"team":"Alpha"}`),
		},
	}))
	ev := readEvent(t, conn)
	require.Equal(t, EventReply, ev.Op)
	require.NotNil(t, ev.Reply)
	assert.Equal(t, "c1", ev.Reply.ID)
	assert.True(t, ev.Reply.OK)
	assert.Equal(t, "u1 registered Alpha", ev.Reply.Text)
}

func TestGatewayBadFrame(t *testing.T) {
	g := newTestGateway(t)
	conn := dial(t, g)
	_ = readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"teleport"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	require.Eventually(t, func() bool { return g.Bridges() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSendWithoutBridges(t *testing.T) {
	g := newTestGateway(t)
	id, err := g.Send(context.Background(), "eu-announcements", messaging.Message{Title: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
