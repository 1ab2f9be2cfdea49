package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	speechService = "speech"

	// MaxSpeechChars is the longest text sent for synthesis.
	MaxSpeechChars = 1000

	defaultElevenLabsBase  = "https://api.elevenlabs.io/v1"
	defaultElevenLabsVoice = "EXAVITQu4vr4xnSDxMaL"
	defaultElevenLabsModel = "eleven_multilingual_v2"
	defaultOpenAISpeechURL = "https://api.openai.com/v1"
	maxAudioBytes          = 20 << 20
)

// SpeechConfig configures the text-to-speech client.
type SpeechConfig struct {
	Provider string // "elevenlabs" | "openai"
	APIBase  string
	APIKey   string
	Model    string // e.g. "eleven_multilingual_v2" (ElevenLabs) or "tts-1" (OpenAI)
	Voice    string // ElevenLabs voice ID or OpenAI voice name
	Client   *http.Client
	Logger   *slog.Logger
}

// Speech implements domain.SpeechSynthesizer.
type Speech struct {
	provider string
	apiBase  string
	apiKey   string
	model    string
	voice    string
	client   *http.Client
	logger   *slog.Logger
}

// NewSpeech creates a text-to-speech client. ElevenLabs is the default backend.
func NewSpeech(cfg SpeechConfig) *Speech {
	if cfg.Provider == "" {
		cfg.Provider = "elevenlabs"
	}
	switch cfg.Provider {
	case "openai":
		if cfg.APIBase == "" {
			cfg.APIBase = defaultOpenAISpeechURL
		}
		if cfg.Model == "" {
			cfg.Model = "tts-1"
		}
		if cfg.Voice == "" {
			cfg.Voice = "alloy"
		}
	default:
		if cfg.APIBase == "" {
			cfg.APIBase = defaultElevenLabsBase
		}
		if cfg.Model == "" {
			cfg.Model = defaultElevenLabsModel
		}
		if cfg.Voice == "" {
			cfg.Voice = defaultElevenLabsVoice
		}
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(60 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Speech{
		provider: cfg.Provider,
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		voice:    cfg.Voice,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

func (s *Speech) Name() string { return speechService }

// Synthesize converts text to encoded audio. Text longer than
// MaxSpeechChars is cut before sending.
func (s *Speech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.apiKey == "" {
		return nil, &CallError{Service: speechService, Kind: FailureConfig, Message: "API key is not configured"}
	}
	text = TruncateRunes(text, MaxSpeechChars)

	var resp *http.Response
	var err error
	switch s.provider {
	case "elevenlabs":
		resp, err = s.postElevenLabs(ctx, text)
	case "openai":
		resp, err = s.postOpenAI(ctx, text)
	default:
		return nil, &CallError{Service: speechService, Kind: FailureConfig, Message: fmt.Sprintf("unsupported TTS provider: %s", s.provider)}
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(speechService, resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		kind := FailureTransport
		if isTimeout(ctx, err) {
			kind = FailureTimeout
		}
		return nil, &CallError{Service: speechService, Kind: kind, Err: err}
	}
	if len(audio) == 0 {
		return nil, &CallError{Service: speechService, Kind: FailureSchema, Message: "empty audio body"}
	}

	s.logger.Debug("speech synthesized", "provider", s.provider, "bytes", len(audio))
	return audio, nil
}

func (s *Speech) postElevenLabs(ctx context.Context, text string) (*http.Response, error) {
	url := fmt.Sprintf("%s/text-to-speech/%s", s.apiBase, s.voice)
	return postJSON(ctx, s.client, speechService, url, map[string]string{
		"text":     text,
		"model_id": s.model,
	}, map[string]string{
		"xi-api-key": s.apiKey,
		"Accept":     "audio/mpeg",
	})
}

func (s *Speech) postOpenAI(ctx context.Context, text string) (*http.Response, error) {
	return postJSON(ctx, s.client, speechService, s.apiBase+"/audio/speech", map[string]string{
		"model":           s.model,
		"input":           text,
		"voice":           s.voice,
		"response_format": "opus",
	}, map[string]string{
		"Authorization": "Bearer " + s.apiKey,
	})
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
