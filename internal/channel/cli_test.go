package channel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replybot/internal/bus"
	"replybot/internal/domain"
)

func TestCLISend_PrintsActions(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Out: &out, Logger: testLogger()})
	ctx := context.Background()

	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionText, Text: "Hi there"}))
	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionPhoto, PhotoURL: "https://cdn.example/cat.png", Caption: "cat"}))
	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionVoice, Audio: []byte("12345")}))

	got := out.String()
	assert.Contains(t, got, "Hi there")
	assert.Contains(t, got, "https://cdn.example/cat.png\ncat")
	assert.Contains(t, got, "[voice: 5 bytes]")
}

func TestCLISend_WritesVoiceFiles(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Out: &out, VoiceDir: dir, Logger: testLogger()})

	for i := 0; i < 2; i++ {
		require.NoError(t, cli.Send(context.Background(), "direct", domain.Action{
			Kind: domain.ActionVoice, Audio: []byte("ogg"), FileName: domain.VoiceFileName,
		}))
	}

	data, err := os.ReadFile(filepath.Join(dir, "answer.ogg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ogg"), data)
	assert.FileExists(t, filepath.Join(dir, "answer-2.ogg"))
}

func TestCLISend_TypingThenText(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Out: &out, Logger: testLogger()})
	ctx := context.Background()

	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionTyping}))
	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionText, Text: "done"}))
	require.NoError(t, cli.Stop())

	assert.Contains(t, out.String(), "done")
	assert.False(t, cli.thinking)
}

func TestCLISend_PromptFollowsLastAction(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Out: &out, Logger: testLogger()})
	ctx := context.Background()

	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionTyping}))
	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionText, Text: "Hi there"}))
	assert.True(t, strings.HasSuffix(out.String(), "Hi there\nYou> "))

	require.NoError(t, cli.Send(ctx, "direct", domain.Action{Kind: domain.ActionVoice, Audio: []byte("ogg")}))
	got := out.String()
	assert.True(t, strings.HasSuffix(got, "[voice: 3 bytes]\nYou> "))
	// The earlier prompt is cleared before the voice line is printed.
	assert.Contains(t, got, "You> \r\033[K[voice: 3 bytes]")
}

func TestCLISend_UnknownKind(t *testing.T) {
	cli := NewCLI(CLIConfig{Out: &bytes.Buffer{}, Logger: testLogger()})
	assert.Error(t, cli.Send(context.Background(), "direct", domain.Action{Kind: "sticker"}))
}

func TestCLIStart_PublishesLinesUntilQuit(t *testing.T) {
	b := bus.New(10, testLogger())
	in := strings.NewReader("hello\n\n  нарисуй кота \n/quit\nignored\n")
	cli := NewCLI(CLIConfig{In: in, Out: &bytes.Buffer{}, Logger: testLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Start(ctx, b))

	first := <-b.Subscribe()
	second := <-b.Subscribe()
	assert.Equal(t, "hello", first.Text)
	assert.Equal(t, "cli", first.Channel)
	assert.Equal(t, "нарисуй кота", second.Text)
	select {
	case m := <-b.Subscribe():
		t.Fatalf("unexpected message after /quit: %q", m.Text)
	default:
	}

	// Outbound actions for the cli channel are routed to Send.
	require.NoError(t, b.SendOutbound(domain.OutboundMessage{
		Channel: "cli", ChatID: "direct", Action: domain.Action{Kind: domain.ActionText, Text: "ok"},
	}))
}
