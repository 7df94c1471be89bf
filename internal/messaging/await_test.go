package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pickChoice(actor string) func(Interaction) (string, bool) {
	return func(it Interaction) (string, bool) {
		if it.Kind != InteractionSelect || it.ActorID != actor {
			return "", false
		}
		return it.Choice, true
	}
}

func TestAwait(t *testing.T) {
	var h Hub
	ch, unsub := h.Subscribe("c")
	defer unsub()

	assert.Equal(t, 1, h.Publish(Interaction{Kind: InteractionSelect, ChannelID: "c", ActorID: "stranger", Choice: "x"}))
	assert.Equal(t, 1, h.Publish(Interaction{Kind: InteractionSelect, ChannelID: "c", ActorID: "a", Choice: "mill"}))
	assert.Equal(t, 0, h.Publish(Interaction{Kind: InteractionSelect, ChannelID: "other", ActorID: "a"}))

	v, ok, err := Await(context.Background(), ch, time.Now().Add(time.Minute), pickChoice("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mill", v)
}

func TestAwaitDeadline(t *testing.T) {
	var h Hub
	ch, unsub := h.Subscribe("c")
	defer unsub()

	_, ok, err := Await(context.Background(), ch, time.Now().Add(20*time.Millisecond), pickChoice("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, usedFallback, err := AwaitOr(context.Background(), ch, time.Now().Add(-time.Second), pickChoice("a"),
		func() string { return "random" })
	require.NoError(t, err)
	assert.True(t, usedFallback)
	assert.Equal(t, "random", v)
}

func TestAwaitCancelled(t *testing.T) {
	var h Hub
	ch, unsub := h.Subscribe("c")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Await(ctx, ch, time.Now().Add(time.Minute), pickChoice("a"))
	assert.ErrorIs(t, err, context.Canceled)

	unsub()
	unsub()
	_, _, err = Await(context.Background(), ch, time.Now().Add(time.Minute), pickChoice("a"))
	assert.ErrorIs(t, err, ErrUnsubscribed)
	assert.Equal(t, 0, h.Subscribers("c"))
}

func TestColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, Color(0xff8000), c)
	assert.Equal(t, "#ff8000", c.Hex())

	assert.Equal(t, ColorDanger, Blend(ColorDanger, ColorSuccess, 0))
	assert.Equal(t, ColorSuccess, Blend(ColorDanger, ColorSuccess, 1))
	assert.Equal(t, ColorSuccess, Countdown(30, 30))
	assert.Equal(t, ColorDanger, Countdown(0, 30))

	var back Color
	require.NoError(t, back.UnmarshalText([]byte("#3498db")))
	assert.Equal(t, ColorInfo, back)
}
