package bus

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	b.Publish(domain.InboundMessage{Channel: "telegram", ChatID: "1", Text: "hi"})

	msg := <-b.Subscribe()
	assert.Equal(t, "hi", msg.Text)
}

func TestBus_OutboundRouting(t *testing.T) {
	b := New(4, testLogger())
	var got []domain.OutboundMessage
	b.OnOutbound("cli", func(m domain.OutboundMessage) error {
		got = append(got, m)
		return nil
	})

	require.NoError(t, b.SendOutbound(domain.OutboundMessage{Channel: "cli", ChatID: "x", Action: domain.Action{Kind: domain.ActionText, Text: "ok"}}))
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Action.Text)

	assert.Error(t, b.SendOutbound(domain.OutboundMessage{Channel: "unknown"}))
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()

	_, ok := <-b.Subscribe()
	assert.False(t, ok)

	assert.NotPanics(t, func() { b.Publish(domain.InboundMessage{}) })
}
