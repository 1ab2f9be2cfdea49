package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			LogFormat:             "text",
			MaxConcurrentMessages: 5,
			RatePerMinute:         30,
			RateBurst:             10,
		},
		Telegram: TelegramConfig{
			ParseMode: "Markdown",
		},
		Completion: CompletionConfig{
			APIBase:        "https://api.deepseek.com",
			Model:          "deepseek-chat",
			MaxTokens:      1500,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		Image: ImageConfig{
			Enabled:  true,
			Endpoint: "https://fal.run/fal-ai/flux-pro/v1.1",
			Size:     "square_hd",
		},
		Speech: SpeechConfig{
			Enabled:  true,
			Provider: "elevenlabs",
			Model:    "eleven_multilingual_v2",
			Voice:    "EXAVITQu4vr4xnSDxMaL",
		},
		Triggers: TriggersConfig{
			Image:     defaultImageTriggers(),
			WebSearch: defaultWebSearchTriggers(),
		},
		Reply: ReplyConfig{
			TypingIndicator:  true,
			ImageFailureNote: true,
		},
		Journal: JournalConfig{
			Enabled:       false,
			DBPath:        "~/.replybot/journal.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9091",
			Path:    "/metrics",
		},
	}
}

func defaultImageTriggers() []string {
	return []string{
		"нарисуй", "сгенерируй", "картинку", "картинка", "арт", "flux",
		"изобрази", "фото", "рисунок",
		"draw", "generate", "picture", "image",
	}
}

func defaultWebSearchTriggers() []string {
	return []string{
		"новости", "погода", "курс", "сегодня", "сейчас", "последние",
		"news", "weather", "exchange rate", "today", "now", "latest",
	}
}
