package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeech_ElevenLabs(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/EXAVITQu4vr4xnSDxMaL", r.URL.Path)
		assert.Equal(t, "xi-test", r.Header.Get("xi-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()

	s := NewSpeech(SpeechConfig{APIKey: "xi-test", APIBase: srv.URL, Logger: testLogger()})
	audio, err := s.Synthesize(context.Background(), "Hi there")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-audio"), audio)
	assert.Equal(t, "Hi there", got["text"])
	assert.Equal(t, "eleven_multilingual_v2", got["model_id"])
}

func TestSpeech_TruncatesLongText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	s := NewSpeech(SpeechConfig{APIKey: "xi-test", APIBase: srv.URL, Logger: testLogger()})
	_, err := s.Synthesize(context.Background(), strings.Repeat("ж", 3000))
	require.NoError(t, err)
	assert.Equal(t, MaxSpeechChars, utf8.RuneCountInString(got["text"]))
}

func TestSpeech_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("opus"))
	}))
	defer srv.Close()

	s := NewSpeech(SpeechConfig{Provider: "openai", APIKey: "sk-test", APIBase: srv.URL, Logger: testLogger()})
	audio, err := s.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("opus"), audio)
}

func TestSpeech_Failures(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":{"message":"invalid api key"}}`))
		}))
		defer srv.Close()

		s := NewSpeech(SpeechConfig{APIKey: "xi-test", APIBase: srv.URL, Logger: testLogger()})
		audio, err := s.Synthesize(context.Background(), "hi")
		assert.Nil(t, audio)
		assert.Equal(t, FailureStatus, KindOf(err))
	})

	t.Run("empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		s := NewSpeech(SpeechConfig{APIKey: "xi-test", APIBase: srv.URL, Logger: testLogger()})
		_, err := s.Synthesize(context.Background(), "hi")
		assert.Equal(t, FailureSchema, KindOf(err))
	})

	t.Run("missing key", func(t *testing.T) {
		s := NewSpeech(SpeechConfig{Logger: testLogger()})
		_, err := s.Synthesize(context.Background(), "hi")
		assert.Equal(t, FailureConfig, KindOf(err))
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", TruncateRunes("abc", 0))
	assert.Equal(t, "ab", TruncateRunes("abc", 2))
	assert.Equal(t, "abc", TruncateRunes("abc", 3))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "при", TruncateRunes("привет", 3))
}
