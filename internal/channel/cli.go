package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"replybot/internal/domain"
)

// CLI implements domain.Channel for a terminal session. It prints each
// action and can save voice replies to a directory.
type CLI struct {
	bus      domain.MessageBus
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	voiceDir string

	mu        sync.Mutex // guards out and the spinner
	thinking  bool
	thinkStop chan struct{}
	voices    int
	prompted  bool // "You> " is the last thing on screen
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	// VoiceDir receives voice replies as files. Empty discards the audio.
	VoiceDir string
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
		voiceDir: cfg.VoiceDir,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive loop and blocks until ctx is cancelled, the
// input ends, or the user types /quit.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound(c.Name(), func(msg domain.OutboundMessage) error {
		return c.Send(ctx, msg.ChatID, msg.Action)
	})

	c.print("replybot CLI. Type your message and press Enter. Type /quit to exit.\n")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		c.mu.Lock()
		c.prompted = false
		c.mu.Unlock()

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.bus.Publish(domain.InboundMessage{
			Channel:   c.Name(),
			ChatID:    "direct",
			SenderID:  "user",
			Text:      line,
			Timestamp: time.Now(),
		})
	}
}

// Stop clears the spinner. The loop itself exits when Start returns.
func (c *CLI) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopThinkingLocked()
	return nil
}

// Send prints one action. Typing starts a spinner that the next action clears.
func (c *CLI) Send(_ context.Context, _ string, action domain.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if action.Kind == domain.ActionTyping {
		c.startThinkingLocked()
		return nil
	}
	if c.stopThinkingLocked() || c.prompted {
		_, _ = fmt.Fprint(c.out, "\r\033[K")
		c.prompted = false
	}

	var err error
	switch action.Kind {
	case domain.ActionText:
		_, err = fmt.Fprintf(c.out, "--- replybot ---\n%s\n", action.Text)
	case domain.ActionPhoto:
		_, err = fmt.Fprintf(c.out, "--- replybot [photo] ---\n%s\n%s\n", action.PhotoURL, action.Caption)
	case domain.ActionVoice:
		err = c.writeVoice(action)
	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
	if err != nil {
		return err
	}
	c.promptLocked()
	return nil
}

func (c *CLI) writeVoice(action domain.Action) error {
	if c.voiceDir == "" {
		_, err := fmt.Fprintf(c.out, "[voice: %d bytes]\n", len(action.Audio))
		return err
	}

	name := action.FileName
	if name == "" {
		name = domain.VoiceFileName
	}
	c.voices++
	if c.voices > 1 {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), c.voices, ext)
	}

	if err := os.MkdirAll(c.voiceDir, 0o755); err != nil {
		return fmt.Errorf("create voice dir: %w", err)
	}
	path := filepath.Join(c.voiceDir, name)
	if err := os.WriteFile(path, action.Audio, 0o644); err != nil {
		return fmt.Errorf("write voice file: %w", err)
	}
	_, err := fmt.Fprintf(c.out, "[voice: %s]\n", path)
	return err
}

// prompt shows the input prompt. Each reply action re-shows it, clearing the
// previous one, so it ends up after the last action of a turn.
func (c *CLI) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptLocked()
}

func (c *CLI) promptLocked() {
	_, _ = fmt.Fprint(c.out, "You> ")
	c.prompted = true
}

func (c *CLI) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.out, s)
}

func (c *CLI) startThinkingLocked() {
	if c.thinking {
		return
	}
	c.thinking = true
	stop := make(chan struct{})
	c.thinkStop = stop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.thinking {
					fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				}
				c.mu.Unlock()
				i++
			}
		}
	}()
}

func (c *CLI) stopThinkingLocked() bool {
	if !c.thinking {
		return false
	}
	c.thinking = false
	close(c.thinkStop)
	return true
}
