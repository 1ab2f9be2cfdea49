package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replybot/internal/config"
	"replybot/internal/journal"
)

func TestChat_QuitDrainsTurnBeforeClosingJournal(t *testing.T) {
	reached := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached <- struct{}{}
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hi there"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("image:\n  enabled: false\nspeech:\n  enabled: false\njournal:\n  enabled: true\n  dbPath: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))
	useConfig(t, cfgPath)
	t.Setenv(config.EnvCompletionKey, "sk-test")
	t.Setenv(config.EnvCompletionBase, srv.URL)
	t.Setenv(config.EnvLogLevel, "error")

	in, input := io.Pipe()
	defer input.Close()
	var out bytes.Buffer

	cmd := chatCmd()
	cmd.SetIn(in)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	errc := make(chan error, 1)
	go func() { errc <- cmd.Execute() }()

	_, err := io.WriteString(input, "hello\n")
	require.NoError(t, err)
	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("completion API was not called")
	}

	// Quit while the turn is still waiting on the completion API.
	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("chat did not exit")
	}

	assert.Contains(t, out.String(), "Hi there")

	store, err := journal.NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	defer store.Close()
	turns, err := store.RecentTurns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "ok", turns[0].Completion)
}
