package gateway

import (
	"encoding/json"

	"github.com/alex65536/tourney/internal/messaging"
)

type EventKind string

const (
	EventHello         EventKind = "hello"
	EventMessageCreate EventKind = "message_create"
	EventMessageUpdate EventKind = "message_update"
	EventChannelCreate EventKind = "channel_create"
	EventChannelDelete EventKind = "channel_delete"
	EventReply         EventKind = "reply"
)

// Event is sent from the gateway to bridges.
type Event struct {
	Op        EventKind                         `json:"op"`
	Seq       int64                             `json:"seq"`
	Session   string                            `json:"session,omitempty"`
	ChannelID string                            `json:"channel_id,omitempty"`
	MessageID string                            `json:"message_id,omitempty"`
	Message   *messaging.Message                `json:"message,omitempty"`
	Channel   *messaging.ChannelSpec            `json:"channel,omitempty"`
	Channels  map[string]messaging.ChannelSpec `json:"channels,omitempty"`
	Reply     *Reply                            `json:"reply,omitempty"`
}

type FrameKind string

const (
	FrameInteraction FrameKind = "interaction"
	FrameCommand     FrameKind = "command"
)

// Frame is sent from a bridge to the gateway.
type Frame struct {
	Op          FrameKind              `json:"op"`
	Interaction *messaging.Interaction `json:"interaction,omitempty"`
	Command     *Command               `json:"command,omitempty"`
}

// Command is a chat command typed by a user, such as team registration or check-in.
type Command struct {
	// ID is chosen by the bridge and echoed in the reply.
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	ActorID   string          `json:"actor_id"`
	ChannelID string          `json:"channel_id,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

type Reply struct {
	ID   string `json:"id"`
	OK   bool   `json:"ok"`
	Text string `json:"text"`
	Data any    `json:"data,omitempty"`
}
