package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/contentcal/internal/models"
)

type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramGateway struct {
	Bot    telegramBot
	ChatID int64
	Status StatusSource

	api *tgbotapi.BotAPI
}

func NewTelegramGateway(token string, chatID int64, status StatusSource) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("[Telegram] Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:    bot,
		ChatID: chatID,
		Status: status,
		api:    bot,
	}, nil
}

func (tg *TelegramGateway) Name() string { return "telegram" }

func (tg *TelegramGateway) Notify(ctx context.Context, snap models.ProgressSnapshot) error {
	return tg.send(tg.ChatID, FormatSummary(snap))
}

// Start answers "/status <session_id>" commands until ctx is done.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	if tg.api == nil {
		return fmt.Errorf("telegram gateway has no bot connection")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.api.GetUpdatesChan(u)
	defer tg.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			tg.handle(update)
		}
	}
}

// handle answers one incoming message. Channel posts and anonymous admins
// arrive without a sender.
func (tg *TelegramGateway) handle(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	sender := "unknown"
	if msg.From != nil {
		sender = msg.From.UserName
	}
	log.Printf("[Telegram] [%s] %s", sender, msg.Text)
	if err := tg.send(msg.Chat.ID, tg.reply(msg.Text)); err != nil {
		log.Printf("[Telegram] Failed to reply: %v", err)
	}
}

func (tg *TelegramGateway) reply(text string) string {
	fields := strings.Fields(text)
	if len(fields) != 2 || fields[0] != "/status" {
		return "Usage: /status <session_id>"
	}
	if tg.Status == nil {
		return "Status lookups are not enabled."
	}
	snap, err := tg.Status.GetProgress(fields[1])
	if err != nil {
		return escape(fmt.Sprintf("Session %s: %v", fields[1], err))
	}
	return FormatSummary(snap)
}

func (tg *TelegramGateway) send(chatID int64, text string) error {
	if chatID == 0 {
		return fmt.Errorf("invalid chat ID: %d", chatID)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}
