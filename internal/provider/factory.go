package provider

import (
	"log/slog"
	"net/http"

	"replybot/internal/config"
	"replybot/internal/domain"
)

// Services holds the collaborator clients built from config. Image and
// Speech are nil when disabled.
type Services struct {
	Completion *Completion
	Image      *Image
	Speech     *Speech
}

// NewServices builds the three service clients on one shared HTTP client.
// A nil client gets SharedHTTPClient's defaults.
func NewServices(cfg *config.Config, client *http.Client, logger *slog.Logger) *Services {
	if client == nil {
		client = SharedHTTPClient(defaultHTTPTimeout)
	}

	s := &Services{
		Completion: NewCompletion(CompletionConfig{
			APIKey:            cfg.Completion.APIKey,
			APIBase:           cfg.Completion.APIBase,
			Model:             cfg.Completion.Model,
			MaxTokens:         cfg.Completion.MaxTokens,
			Temperature:       cfg.Completion.Temperature,
			Timeout:           cfg.Completion.Timeout(),
			SupportsWebSearch: cfg.Completion.SupportsWebSearch,
			Client:            client,
			Logger:            logger.With("service", completionService),
		}),
	}

	if cfg.Image.Enabled {
		s.Image = NewImage(ImageConfig{
			APIKey:   cfg.Image.APIKey,
			Endpoint: cfg.Image.Endpoint,
			Size:     cfg.Image.Size,
			Client:   client,
			Logger:   logger.With("service", imageService),
		})
	} else {
		logger.Info("image generation disabled")
	}

	if cfg.Speech.Enabled {
		s.Speech = NewSpeech(SpeechConfig{
			Provider: cfg.Speech.Provider,
			APIBase:  cfg.Speech.APIBase,
			APIKey:   cfg.Speech.APIKey,
			Model:    cfg.Speech.Model,
			Voice:    cfg.Speech.Voice,
			Client:   client,
			Logger:   logger.With("service", speechService),
		})
	} else {
		logger.Info("voice replies disabled")
	}

	return s
}

// ImageGenerator returns the image client as an interface, or a nil
// interface when image generation is disabled.
func (s *Services) ImageGenerator() domain.ImageGenerator {
	if s.Image == nil {
		return nil
	}
	return s.Image
}

// SpeechSynthesizer returns the speech client as an interface, or a nil
// interface when voice replies are disabled.
func (s *Services) SpeechSynthesizer() domain.SpeechSynthesizer {
	if s.Speech == nil {
		return nil
	}
	return s.Speech
}

// Credentials reports which service keys are present, keyed by service name.
func (s *Services) Credentials() map[string]bool {
	creds := map[string]bool{completionService: s.Completion.apiKey != ""}
	if s.Image != nil {
		creds[imageService] = s.Image.apiKey != ""
	}
	if s.Speech != nil {
		creds[speechService] = s.Speech.apiKey != ""
	}
	return creds
}
