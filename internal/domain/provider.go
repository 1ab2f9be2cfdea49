package domain

import "context"

// CompletionRequest is a single-turn prompt for the completion service.
type CompletionRequest struct {
	Prompt    string
	WebSearch bool // honoured only by backends that support search augmentation
}

// Completer produces the textual reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageGenerator returns the URL of one generated image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SpeechSynthesizer turns text into encoded audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
