package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

// --- Validate ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_MaxTokensRange(t *testing.T) {
	for _, n := range []int{999, 2001, 0} {
		cfg := Defaults()
		cfg.Completion.MaxTokens = n
		assert.Error(t, Validate(cfg), "maxTokens=%d", n)
	}
	for _, n := range []int{1000, 2000} {
		cfg := Defaults()
		cfg.Completion.MaxTokens = n
		assert.NoError(t, Validate(cfg), "maxTokens=%d", n)
	}
}

func TestValidate_TemperatureRange(t *testing.T) {
	for _, v := range []float64{0, -0.1, 2.1} {
		cfg := Defaults()
		cfg.Completion.Temperature = v
		assert.Error(t, Validate(cfg), "temperature=%v", v)
	}
	for _, v := range []float64{0.01, 0.7, 2} {
		cfg := Defaults()
		cfg.Completion.Temperature = v
		assert.NoError(t, Validate(cfg), "temperature=%v", v)
	}
}

func TestValidate_TimeoutCeiling(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.TimeoutSeconds = 31
	assert.Error(t, Validate(cfg))

	cfg.Completion.TimeoutSeconds = 30
	assert.NoError(t, Validate(cfg))
}

func TestValidate_InvalidEnums(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.Speech.Provider = "say"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "general.logLevel")
	assert.Contains(t, err.Error(), "speech.provider")
}

func TestValidate_MissingCredentialsAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.APIKey = ""
	cfg.Telegram.Token = ""
	assert.NoError(t, Validate(cfg))
}

func TestValidate_JournalAndMetrics(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.RetentionDays = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.retentionDays")
	assert.Contains(t, err.Error(), "metrics.listen")
}

// --- Load ---

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Completion.Model, cfg.Completion.Model)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("general: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("completion:\n  maxTokens: 50\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxTokens")
}

func TestLoad_TriggersFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "triggers:\n  image: [\"покажи\", \"draw\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"покажи", "draw"}, cfg.Triggers.Image)
	assert.Equal(t, defaultWebSearchTriggers(), cfg.Triggers.WebSearch)
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("REPLYBOT_TEST_MODEL", "deepseek-reasoner")
	t.Setenv(EnvCompletionKey, "")
	os.Unsetenv("REPLYBOT_TEST_UNSET_KEY")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "completion:\n  model: ${REPLYBOT_TEST_MODEL}\n  apiKey: ${REPLYBOT_TEST_UNSET_KEY}\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-reasoner", cfg.Completion.Model)
	assert.Empty(t, cfg.Completion.APIKey, "unresolved placeholder must read as missing")
}

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, k := range []string{EnvBotToken, EnvCompletionKey, EnvImageKey, EnvSpeechKey, EnvLogLevel, EnvTelegramAllow, EnvCompletionBase} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Defaults()
	cfg.Completion.Model = "custom-model"
	cfg.Telegram.AllowFrom = []string{"1", "2"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Completion.Model)
	assert.Equal(t, []string{"1", "2"}, loaded.Telegram.AllowFrom)
}

// --- ApplyEnv ---

func TestApplyEnv_OverridesCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.APIKey = "from-file"
	ApplyEnv(cfg, lookupFrom(map[string]string{
		EnvBotToken:      "123:abc",
		EnvCompletionKey: "sk-env",
		EnvImageKey:      "fal-env",
		EnvSpeechKey:     "xi-env",
		EnvTelegramAllow: " 10, 20 ,,",
	}))
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "sk-env", cfg.Completion.APIKey)
	assert.Equal(t, "fal-env", cfg.Image.APIKey)
	assert.Equal(t, "xi-env", cfg.Speech.APIKey)
	assert.Equal(t, []string{"10", "20"}, cfg.Telegram.AllowFrom)
}

func TestApplyEnv_EmptyKeepsFileValue(t *testing.T) {
	cfg := Defaults()
	cfg.Completion.APIKey = "from-file"
	ApplyEnv(cfg, lookupFrom(map[string]string{EnvCompletionKey: "  "}))
	assert.Equal(t, "from-file", cfg.Completion.APIKey)
}

// --- Accessors ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "completion.model")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", v)

	v, err = GetByPath(cfg, "triggers.image.0")
	require.NoError(t, err)
	assert.Equal(t, "нарисуй", v)

	_, err = GetByPath(cfg, "completion.nope")
	assert.Error(t, err)
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "completion.maxTokens", "1800"))
	assert.Equal(t, 1800, cfg.Completion.MaxTokens)

	require.NoError(t, SetByPath(cfg, "reply.typingIndicator", "false"))
	assert.False(t, cfg.Reply.TypingIndicator)

	require.NoError(t, SetByPath(cfg, "triggers.webSearch", "news, погода"))
	assert.Equal(t, []string{"news", "погода"}, cfg.Triggers.WebSearch)

	assert.Error(t, SetByPath(cfg, "", "x"))
	assert.Error(t, SetByPath(cfg, "completion.unknown", "x"))
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "1234567890:ABCDEFGH"
	cfg.Completion.APIKey = "short"
	cfg.Speech.APIKey = ""

	s := Sanitize(cfg)
	assert.Equal(t, "1234****EFGH", s.Telegram.Token)
	assert.Equal(t, "***", s.Completion.APIKey)
	assert.Empty(t, s.Speech.APIKey)
	assert.Equal(t, "1234567890:ABCDEFGH", cfg.Telegram.Token, "original must be untouched")
}

func TestListPaths_ReturnsLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	assert.Contains(t, paths, "completion.model")
	assert.Contains(t, paths, "metrics.listen")
	assert.NotContains(t, paths, "completion")
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	t.Setenv("EMPTY_VAR", "")
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")

	assert.Equal(t, `apiKey: sk-abc123`, ExpandEnvVars(`apiKey: ${TEST_API_KEY}`))
	assert.Equal(t, `port: 8080`, ExpandEnvVars(`port: ${TOTALLY_UNSET_VAR_XYZ:-8080}`))
	assert.Equal(t, `"${TOTALLY_UNSET_VAR_XYZ}"`, ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`))
	assert.Equal(t, `"fallback"`, ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`))
	assert.Equal(t, `cost: $5`, ExpandEnvVars(`cost: $5`))
}

func TestLoadRaw_KeepsPlaceholders(t *testing.T) {
	t.Setenv(EnvCompletionKey, "sk-from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "completion:\n  apiKey: ${DEEPSEEK_API_KEY}\n  model: custom\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "${DEEPSEEK_API_KEY}", cfg.Completion.APIKey)
	assert.Equal(t, "custom", cfg.Completion.Model)

	cfg, err = LoadRaw(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Completion.Model, cfg.Completion.Model)
}
