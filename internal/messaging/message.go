package messaging

import (
	"context"
	"slices"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Message struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text,omitempty"`
	Color    Color    `json:"color"`
	Fields   []Field  `json:"fields,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Footer   string   `json:"footer,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

func (m Message) Clone() Message {
	m.Fields = slices.Clone(m.Fields)
	m.Choices = slices.Clone(m.Choices)
	m.Mentions = slices.Clone(m.Mentions)
	return m
}

func (m *Message) AddField(name, value string, inline bool) {
	m.Fields = append(m.Fields, Field{Name: name, Value: value, Inline: inline})
}

type ChannelSpec struct {
	Name  string `json:"name"`
	Topic string `json:"topic,omitempty"`
	// Members are the only users allowed to see the channel. Empty means public.
	Members []string `json:"members,omitempty"`
}

type InteractionKind int

const (
	InteractionUnknown InteractionKind = iota
	// InteractionSelect is a press on one of the message choices.
	InteractionSelect
	// InteractionSubmit is free-form text sent into the channel.
	InteractionSubmit
	// InteractionArtifact is an uploaded file, such as a scoreboard screenshot.
	InteractionArtifact
)

func (k InteractionKind) String() string {
	switch k {
	case InteractionSelect:
		return "select"
	case InteractionSubmit:
		return "submit"
	case InteractionArtifact:
		return "artifact"
	default:
		return "?"
	}
}

type Interaction struct {
	Kind        InteractionKind `json:"kind"`
	ChannelID   string          `json:"channel_id"`
	MessageID   string          `json:"message_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	Choice      string          `json:"choice,omitempty"`
	Text        string          `json:"text,omitempty"`
	ArtifactURL string          `json:"artifact_url,omitempty"`
}

// Surface is the chat platform as seen by the orchestrator.
type Surface interface {
	Send(ctx context.Context, channelID string, msg Message) (string, error)
	Edit(ctx context.Context, channelID string, messageID string, msg Message) error
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// Subscribe delivers interactions from the channel until the returned function is called.
	Subscribe(channelID string) (<-chan Interaction, func())
}
