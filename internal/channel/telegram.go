package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"replybot/internal/domain"
)

const (
	telegramMaxMsgLen    = 4000
	telegramMaxRetryWait = 30 * time.Second
)

const (
	startText = "👋 Привет! Напишите мне что-нибудь, и я отвечу.\n\n" +
		"Попросите нарисовать картинку, и я пришлю изображение. /help покажет подсказку."
	helpText = "Отправьте любое сообщение, я отвечу текстом и голосом.\n\n" +
		"• \"нарисуй ...\" или \"draw ...\" пришлёт картинку\n" +
		"• \"новости\", \"погода\", \"курс\" включат поиск свежих данных\n\n" +
		"Каждое сообщение обрабатывается отдельно, история не сохраняется."
	unauthorizedText = "⛔ Доступ запрещён. Ваш ID не в списке разрешённых."
)

// telegramAPI is the subset of *tgbotapi.BotAPI used for sending.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all
	parseMode string

	bot    *tgbotapi.BotAPI
	api    telegramAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		} else if cfg.Logger != nil {
			cfg.Logger.Warn("ignoring invalid telegram user id in allow list", "value", s)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.api = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	// Turns still draining after shutdown deliver their replies.
	sendCtx := context.WithoutCancel(ctx)
	bus.OnOutbound(t.Name(), func(msg domain.OutboundMessage) error {
		return t.Send(sendCtx, msg.ChatID, msg.Action)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error { return nil }

// Send delivers one action to chatID.
func (t *Telegram) Send(ctx context.Context, chatID string, action domain.Action) error {
	if t.api == nil {
		return errors.New("telegram channel not started")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	switch action.Kind {
	case domain.ActionTyping:
		_, err := t.api.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
		return err
	case domain.ActionText:
		return t.sendText(ctx, id, action.Text)
	case domain.ActionPhoto:
		photo := tgbotapi.NewPhoto(id, tgbotapi.FileURL(action.PhotoURL))
		photo.Caption = action.Caption
		return t.send(ctx, photo)
	case domain.ActionVoice:
		name := action.FileName
		if name == "" {
			name = domain.VoiceFileName
		}
		return t.send(ctx, tgbotapi.NewVoice(id, tgbotapi.FileBytes{Name: name, Bytes: action.Audio}))
	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		t.reply(chatID, unauthorizedText)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			t.reply(chatID, startText)
			return
		case "help":
			t.reply(chatID, helpText)
			return
		}
	}

	text, caption := messageText(msg)
	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len([]rune(text)),
		"caption_len", len([]rune(caption)),
	)

	t.bus.Publish(domain.InboundMessage{
		Channel:   t.Name(),
		ChatID:    strconv.FormatInt(chatID, 10),
		SenderID:  strconv.FormatInt(userID, 10),
		Text:      text,
		Caption:   caption,
		Timestamp: time.Unix(int64(msg.Date), 0),
	})
}

// messageText returns the trimmed text and caption. Stickers, voice notes
// and other media without a caption yield two empty strings.
func messageText(msg *tgbotapi.Message) (text, caption string) {
	return strings.TrimSpace(msg.Text), strings.TrimSpace(msg.Caption)
}

func (t *Telegram) reply(chatID int64, text string) {
	if err := t.sendText(context.Background(), chatID, text); err != nil {
		t.logger.Error("telegram reply failed", "chat_id", chatID, "err", err)
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendText sends text in chunks that fit Telegram's message limit. Each
// chunk is tried with the configured parse mode first, then as plain text.
func (t *Telegram) sendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = t.parseMode

		err := t.send(ctx, msg)
		if err != nil && msg.ParseMode != "" && isParseError(err) {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			msg.ParseMode = ""
			err = t.send(ctx, msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// send delivers c, waiting once when Telegram asks the bot to slow down.
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	_, err := t.api.Send(c)
	wait, limited := retryAfter(err)
	if !limited {
		return err
	}

	t.logger.Warn("telegram rate limited, backing off", "retry_after", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	_, err = t.api.Send(c)
	return err
}

func retryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) || tgErr.Code != 429 {
		return 0, false
	}
	wait := time.Duration(tgErr.RetryAfter) * time.Second
	if wait <= 0 {
		wait = time.Second
	}
	return min(wait, telegramMaxRetryWait), true
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

// splitMessage cuts text into chunks of at most maxLen runes, preferring a
// newline in the second half of each chunk as the cut point.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cutAt := maxLen
		for i := maxLen - 1; i >= maxLen/2; i-- {
			if runes[i] == '\n' {
				cutAt = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cutAt]))
		runes = runes[cutAt:]
	}
	return chunks
}
