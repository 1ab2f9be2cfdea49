package domain

import "time"

// FallbackGreeting is the prompt used when a message carries neither text nor caption.
const FallbackGreeting = "Привет"

// VoiceFileName is the filename attached to synthesized voice replies.
const VoiceFileName = "answer.ogg"

type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Text      string
	Caption   string // set when media (e.g. a photo) was sent with a caption
	Timestamp time.Time
}

// EffectiveText returns the prompt for this message: text, else caption,
// else FallbackGreeting.
func (m InboundMessage) EffectiveText() string {
	if m.Text != "" {
		return m.Text
	}
	if m.Caption != "" {
		return m.Caption
	}
	return FallbackGreeting
}

type ActionKind string

const (
	ActionTyping ActionKind = "typing"
	ActionText   ActionKind = "text"
	ActionPhoto  ActionKind = "photo"
	ActionVoice  ActionKind = "voice"
)

// Action is one outbound step sent back to the user.
type Action struct {
	Kind     ActionKind
	Text     string // ActionText
	PhotoURL string // ActionPhoto
	Caption  string // ActionPhoto
	Audio    []byte // ActionVoice
	FileName string // ActionVoice
}

// OutboundMessage routes an Action to the channel that received the turn.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Action  Action
}
