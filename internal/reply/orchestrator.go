// Package reply turns one inbound message into the text, photo and voice
// actions sent back to the user.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"replybot/internal/domain"
	"replybot/internal/intent"
	"replybot/internal/metrics"
	"replybot/internal/provider"
)

const (
	// ErrorMarker prefixes replies that report a failure instead of an answer.
	ErrorMarker = "⚠️ "
	// TimeoutMarker prefixes the reply sent when the completion call timed out.
	TimeoutMarker = "⏳ "

	MaxCaptionChars = 200
	MaxSpeechChars  = provider.MaxSpeechChars

	ImageFailureNote = "\n\n(не удалось сгенерировать изображение)"
)

const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	outcomeError   = "error"
)

// IsErrorReply reports whether s starts with one of the error markers.
func IsErrorReply(s string) bool {
	return strings.HasPrefix(s, ErrorMarker) || strings.HasPrefix(s, TimeoutMarker)
}

// Orchestrator runs one reply turn: completion, then optional image, then
// optional speech. Calls are strictly sequential and attempted once.
type Orchestrator struct {
	completer domain.Completer
	images    domain.ImageGenerator
	speech    domain.SpeechSynthesizer
	detector  *intent.Detector
	metrics   *metrics.Metrics
	journal   domain.TurnJournal
	logger    *slog.Logger

	typing      bool
	failureNote bool
	now         func() time.Time
}

type Config struct {
	Completer domain.Completer
	Images    domain.ImageGenerator    // nil disables image replies
	Speech    domain.SpeechSynthesizer // nil disables voice replies
	Detector  *intent.Detector
	Metrics   *metrics.Metrics   // optional
	Journal   domain.TurnJournal // optional
	Logger    *slog.Logger

	// TypingIndicator sends a typing action before the turn is processed.
	TypingIndicator bool
	// ImageFailureNote appends ImageFailureNote to the text reply when the
	// image could not be generated.
	ImageFailureNote bool
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Detector == nil {
		cfg.Detector = intent.NewDetector(nil, cfg.Logger)
	}
	return &Orchestrator{
		completer:   cfg.Completer,
		images:      cfg.Images,
		speech:      cfg.Speech,
		detector:    cfg.Detector,
		metrics:     cfg.Metrics,
		journal:     cfg.Journal,
		logger:      cfg.Logger,
		typing:      cfg.TypingIndicator,
		failureNote: cfg.ImageFailureNote,
		now:         time.Now,
	}
}

// Turn is the outcome of one processed message.
type Turn struct {
	ID      string
	Prompt  string
	Flags   intent.Flags
	Reply   string // completion reply, or the user-facing error text
	Actions []domain.Action

	CompletionErr error
	ImageErr      error
	SpeechErr     error

	imageTried  bool
	speechTried bool
	Started     time.Time
	Elapsed     time.Duration
}

// Failed reports whether the completion call failed.
func (t *Turn) Failed() bool { return t.CompletionErr != nil }

// Outcomes returns "ok", "skipped" or the failure kind for each service.
func (t *Turn) Outcomes() (completion, image, speech string) {
	return outcome(t.CompletionErr, true), outcome(t.ImageErr, t.imageTried), outcome(t.SpeechErr, t.speechTried)
}

func outcome(err error, tried bool) string {
	if !tried {
		return OutcomeSkipped
	}
	if err == nil {
		return OutcomeOK
	}
	if kind := provider.KindOf(err); kind != "" {
		return string(kind)
	}
	return outcomeError
}

// Plan runs the service calls for msg and returns the actions to emit, in
// order. It never returns an error: failures are folded into the actions.
func (o *Orchestrator) Plan(ctx context.Context, msg domain.InboundMessage) *Turn {
	turn := &Turn{
		ID:      uuid.NewString(),
		Prompt:  msg.EffectiveText(),
		Started: o.now(),
	}
	turn.Flags = o.detector.Detect(turn.Prompt)

	log := o.logger.With("turn", turn.ID, "channel", msg.Channel, "chat_id", msg.ChatID)
	log.Info("turn started",
		"prompt_len", len([]rune(turn.Prompt)),
		"wants_image", turn.Flags.WantsImage,
		"wants_web_search", turn.Flags.WantsWebSearch,
	)

	reply, err := o.complete(ctx, turn.Prompt, turn.Flags.WantsWebSearch)
	if err != nil {
		turn.CompletionErr = err
		turn.Reply = ErrorText(err)
		log.Warn("completion failed", "err", err, "kind", provider.KindOf(err))
	} else {
		turn.Reply = reply
	}

	turn.Actions = append(turn.Actions, o.primaryAction(ctx, turn, log))

	if !turn.Failed() && !IsErrorReply(turn.Reply) && o.speech != nil {
		turn.speechTried = true
		if action, ok := o.voiceAction(ctx, turn, log); ok {
			turn.Actions = append(turn.Actions, action)
		}
	}

	turn.Elapsed = o.now().Sub(turn.Started)
	return turn
}

// primaryAction produces the photo action when an image was requested and
// generated, and the text action otherwise. A failed completion still gets
// its image; the error text becomes the caption. Only a missing completion
// credential skips the image call.
func (o *Orchestrator) primaryAction(ctx context.Context, turn *Turn, log *slog.Logger) domain.Action {
	text := domain.Action{Kind: domain.ActionText, Text: turn.Reply}
	if !turn.Flags.WantsImage || o.images == nil {
		return text
	}
	if provider.KindOf(turn.CompletionErr) == provider.FailureConfig {
		return text
	}

	turn.imageTried = true
	start := o.now()
	url, err := o.images.Generate(ctx, turn.Prompt)
	o.metrics.ObserveCall("image", outcome(err, true), o.now().Sub(start))
	if err != nil {
		turn.ImageErr = err
		log.Warn("image generation failed, replying with text", "err", err, "kind", provider.KindOf(err))
		if o.failureNote {
			text.Text += ImageFailureNote
		}
		return text
	}

	return domain.Action{
		Kind:     domain.ActionPhoto,
		PhotoURL: url,
		Caption:  provider.TruncateRunes(turn.Reply, MaxCaptionChars),
	}
}

// voiceAction is best-effort: any failure is logged and the voice reply skipped.
func (o *Orchestrator) voiceAction(ctx context.Context, turn *Turn, log *slog.Logger) (domain.Action, bool) {
	start := o.now()
	audio, err := o.speech.Synthesize(ctx, provider.TruncateRunes(turn.Reply, MaxSpeechChars))
	if err == nil && len(audio) == 0 {
		err = &provider.CallError{Service: "speech", Kind: provider.FailureSchema, Message: "no audio returned"}
	}
	o.metrics.ObserveCall("speech", outcome(err, true), o.now().Sub(start))
	if err != nil {
		turn.SpeechErr = err
		log.Info("speech skipped", "err", err, "kind", provider.KindOf(err))
		return domain.Action{}, false
	}
	return domain.Action{Kind: domain.ActionVoice, Audio: audio, FileName: domain.VoiceFileName}, true
}

func (o *Orchestrator) complete(ctx context.Context, prompt string, webSearch bool) (reply string, err error) {
	start := o.now()
	defer func() {
		o.metrics.ObserveCall("completion", outcome(err, true), o.now().Sub(start))
	}()

	if o.completer == nil {
		return "", &provider.CallError{Service: "completion", Kind: provider.FailureConfig, Message: "completion service is not configured"}
	}
	reply, err = o.completer.Complete(ctx, domain.CompletionRequest{Prompt: prompt, WebSearch: webSearch})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", &provider.CallError{Service: "completion", Kind: provider.FailureSchema, Message: "empty reply"}
	}
	return reply, nil
}

// Handle plans the turn and delivers its actions through sender in order.
// A failed send is logged and does not stop later actions. A photo that
// cannot be delivered falls back to the text reply.
func (o *Orchestrator) Handle(ctx context.Context, msg domain.InboundMessage, sender domain.Sender) *Turn {
	if o.typing {
		if err := sender.Send(ctx, msg.ChatID, domain.Action{Kind: domain.ActionTyping}); err != nil {
			o.logger.Debug("typing indicator failed", "chat_id", msg.ChatID, "err", err)
		}
	}

	turn := o.Plan(ctx, msg)

	for _, action := range turn.Actions {
		err := sender.Send(ctx, msg.ChatID, action)
		if err == nil {
			o.metrics.ObserveAction(string(action.Kind))
			continue
		}
		o.metrics.ObserveSendFailure(string(action.Kind))
		o.logger.Error("send failed", "turn", turn.ID, "kind", action.Kind, "err", err)

		if action.Kind == domain.ActionPhoto {
			fallback := domain.Action{Kind: domain.ActionText, Text: turn.Reply}
			if err := sender.Send(ctx, msg.ChatID, fallback); err != nil {
				o.metrics.ObserveSendFailure(string(fallback.Kind))
				o.logger.Error("text fallback failed", "turn", turn.ID, "err", err)
			} else {
				o.metrics.ObserveAction(string(fallback.Kind))
			}
		}
	}

	o.finish(ctx, msg, turn)
	return turn
}

func (o *Orchestrator) finish(ctx context.Context, msg domain.InboundMessage, turn *Turn) {
	completion, image, speech := turn.Outcomes()
	o.metrics.ObserveTurn(completion)

	kinds := make([]string, len(turn.Actions))
	for i, a := range turn.Actions {
		kinds[i] = string(a.Kind)
	}

	o.logger.Info("turn finished",
		"turn", turn.ID,
		"completion", completion,
		"image", image,
		"speech", speech,
		"actions", strings.Join(kinds, ","),
		"elapsed", turn.Elapsed,
	)

	if o.journal == nil {
		return
	}
	rec := domain.TurnRecord{
		ID:             turn.ID,
		Channel:        msg.Channel,
		ChatID:         msg.ChatID,
		PromptChars:    len([]rune(turn.Prompt)),
		WantsImage:     turn.Flags.WantsImage,
		WantsWebSearch: turn.Flags.WantsWebSearch,
		Completion:     completion,
		Image:          image,
		Speech:         speech,
		Actions:        strings.Join(kinds, ","),
		LatencyMs:      turn.Elapsed.Milliseconds(),
		CreatedAt:      turn.Started,
	}
	if err := o.journal.RecordTurn(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("journal write failed", "turn", turn.ID, "err", err)
	}
}

// ErrorText renders a completion failure as the user-facing reply.
func ErrorText(err error) string {
	var ce *provider.CallError
	if !errors.As(err, &ce) {
		if errors.Is(err, context.DeadlineExceeded) {
			return TimeoutMarker + "Сервис ответов не ответил вовремя. Попробуйте ещё раз."
		}
		return ErrorMarker + fmt.Sprintf("Ошибка: %v", err)
	}
	switch ce.Kind {
	case provider.FailureConfig:
		return ErrorMarker + "Сервис ответов не настроен: отсутствует API-ключ."
	case provider.FailureTimeout:
		return TimeoutMarker + "Сервис ответов не ответил вовремя. Попробуйте ещё раз."
	case provider.FailureStatus:
		if ce.Message != "" {
			return ErrorMarker + fmt.Sprintf("Ошибка сервиса ответов (HTTP %d): %s", ce.StatusCode, ce.Message)
		}
		return ErrorMarker + fmt.Sprintf("Ошибка сервиса ответов (HTTP %d).", ce.StatusCode)
	case provider.FailureSchema:
		return ErrorMarker + "Сервис ответов вернул некорректный ответ."
	default:
		return ErrorMarker + "Не удалось связаться с сервисом ответов."
	}
}
