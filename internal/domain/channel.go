package domain

import "context"

// Channel is the interface for user-facing I/O (Telegram, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, action Action) error
}

// Sender delivers one action to a chat.
type Sender interface {
	Send(ctx context.Context, chatID string, action Action) error
}
