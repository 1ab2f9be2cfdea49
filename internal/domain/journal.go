package domain

import (
	"context"
	"time"
)

// TurnJournal records a diagnostic summary of each processed turn.
// Records are never read back into a reply.
type TurnJournal interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
	RecentTurns(ctx context.Context, limit int) ([]TurnRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// TurnRecord outcome fields hold "ok", "skipped" or a failure kind.
type TurnRecord struct {
	ID             string    `json:"id"`
	Channel        string    `json:"channel"`
	ChatID         string    `json:"chat_id"`
	PromptChars    int       `json:"prompt_chars"`
	WantsImage     bool      `json:"wants_image"`
	WantsWebSearch bool      `json:"wants_web_search"`
	Completion     string    `json:"completion"`
	Image          string    `json:"image"`
	Speech         string    `json:"speech"`
	Actions        string    `json:"actions"` // comma-separated action kinds in emission order
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
