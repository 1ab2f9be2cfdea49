package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"replybot/internal/config"
)

func TestDoctorChecks_AllConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Telegram.Token = "123:abc"
	cfg.Completion.APIKey = "sk-test"
	cfg.Completion.APIBase = srv.URL
	cfg.Image.APIKey = "fal-test"
	cfg.Speech.APIKey = "xi-test"
	cfg.Journal.Enabled = true
	cfg.Journal.DBPath = filepath.Join(t.TempDir(), "journal.db")

	var out bytes.Buffer
	r := &doctorReport{out: &out}
	runDoctorChecks(context.Background(), r, cfg, false)

	assert.Equal(t, 0, r.failed, out.String())
	assert.Equal(t, 0, r.warned, out.String())
	assert.NoError(t, r.summary())
	assert.Contains(t, out.String(), "All checks passed")
}

func TestDoctorChecks_MissingCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.Speech.Enabled = false

	var out bytes.Buffer
	r := &doctorReport{out: &out}
	runDoctorChecks(context.Background(), r, cfg, true)

	// Telegram token and completion key fail, image key warns, speech disabled warns.
	assert.Equal(t, 2, r.failed, out.String())
	assert.Equal(t, 2, r.warned, out.String())
	assert.Error(t, r.summary())
	assert.Contains(t, out.String(), config.EnvCompletionKey)
}

func TestDoctorChecks_UnreachableCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Telegram.Token = "123:abc"
	cfg.Completion.APIKey = "sk-bad"
	cfg.Completion.APIBase = srv.URL
	cfg.Image.Enabled = false
	cfg.Speech.Enabled = false

	var out bytes.Buffer
	r := &doctorReport{out: &out}
	runDoctorChecks(context.Background(), r, cfg, false)
	assert.Equal(t, 1, r.failed)
	assert.Contains(t, out.String(), "invalid API key")
}
