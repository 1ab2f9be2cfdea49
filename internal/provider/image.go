package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	imageService = "image"

	defaultImageEndpoint = "https://fal.run/fal-ai/flux-pro/v1.1"
	defaultImageSize     = "square_hd"
)

// Image implements domain.ImageGenerator for fal.ai synchronous endpoints.
type Image struct {
	apiKey   string
	endpoint string
	size     string
	client   *http.Client
	logger   *slog.Logger
}

type ImageConfig struct {
	APIKey   string
	Endpoint string // full model URL, e.g. https://fal.run/fal-ai/flux-pro/v1.1
	Size     string // fal image_size descriptor
	Client   *http.Client
	Logger   *slog.Logger
}

func NewImage(cfg ImageConfig) *Image {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultImageEndpoint
	}
	if cfg.Size == "" {
		cfg.Size = defaultImageSize
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Image{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		size:     cfg.Size,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

func (i *Image) Name() string { return imageService }

type imageRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size"`
}

type imageResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// Generate returns the URL of the first generated image.
func (i *Image) Generate(ctx context.Context, prompt string) (string, error) {
	if i.apiKey == "" {
		return "", &CallError{Service: imageService, Kind: FailureConfig, Message: "API key is not configured"}
	}

	resp, err := postJSON(ctx, i.client, imageService, i.endpoint, imageRequest{
		Prompt:    prompt,
		ImageSize: i.size,
	}, map[string]string{
		"Authorization": "Key " + i.apiKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(imageService, resp)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &CallError{Service: imageService, Kind: FailureSchema, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(out.Images) == 0 || out.Images[0].URL == "" {
		return "", &CallError{Service: imageService, Kind: FailureSchema, Message: "response has no images[0].url"}
	}

	i.logger.Debug("image generated", "images", len(out.Images))
	return out.Images[0].URL, nil
}
