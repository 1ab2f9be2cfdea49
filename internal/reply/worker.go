package reply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"replybot/internal/domain"
)

const defaultConcurrency = 5

// Dispatcher consumes inbound messages from the bus and runs one turn per
// message, each on its own goroutine, with bounded concurrency.
type Dispatcher struct {
	orchestrator *Orchestrator
	bus          domain.MessageBus
	logger       *slog.Logger
	concurrency  int
	limiter      *RateLimiter
	wg           sync.WaitGroup
}

type DispatcherConfig struct {
	Orchestrator *Orchestrator
	Bus          domain.MessageBus
	Logger       *slog.Logger
	Concurrency  int          // max messages in flight (default 5)
	Limiter      *RateLimiter // optional; throttles turn starts
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		orchestrator: cfg.Orchestrator,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
		limiter:      cfg.Limiter,
	}
}

// Run blocks until ctx is cancelled or the bus is closed, then waits for
// in-flight turns to finish. Cancelling ctx stops new turns from starting
// but does not abort the ones already running.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("reply dispatcher started", "concurrency", d.concurrency)
	defer d.wg.Wait()

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reply dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, reply dispatcher stopping")
				return
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			d.wg.Add(1)
			go func(m domain.InboundMessage) {
				defer d.wg.Done()
				defer func() { <-sem }()
				d.process(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("turn panicked", "channel", msg.Channel, "chat_id", msg.ChatID, "panic", fmt.Sprint(r))
		}
	}()
	d.orchestrator.Handle(ctx, msg, busSender{bus: d.bus, channel: msg.Channel})
}

// busSender routes actions back to the channel the message came from.
type busSender struct {
	bus     domain.MessageBus
	channel string
}

func (s busSender) Send(_ context.Context, chatID string, action domain.Action) error {
	return s.bus.SendOutbound(domain.OutboundMessage{
		Channel: s.channel,
		ChatID:  chatID,
		Action:  action,
	})
}
