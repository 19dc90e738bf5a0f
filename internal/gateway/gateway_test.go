package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/contentcal/internal/models"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{}, b.err
}

type fakeChannel struct {
	channel, content string
}

func (c *fakeChannel) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.channel, c.content = channelID, content
	return &discordgo.Message{}, nil
}

type fakeStatus map[string]models.ProgressSnapshot

func (f fakeStatus) GetProgress(id string) (models.ProgressSnapshot, error) {
	snap, ok := f[id]
	if !ok {
		return models.ProgressSnapshot{}, errors.New("session not found")
	}
	return snap, nil
}

var failed = models.ProgressSnapshot{
	SessionID: "s-1", Status: models.SessionFailed, CalendarType: models.CalendarWeekly,
	CurrentStep: 4, OverallProgressPct: 33, FailedStep: 4, Errors: []string{"fatal: contract violation"},
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	tg := &TelegramGateway{Bot: bot, ChatID: 42}

	if err := tg.Notify(context.Background(), failed); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(bot.sent))
	}
	if bot.sent[0].ChatID != 42 || !strings.Contains(bot.sent[0].Text, "Failed at step 4") {
		t.Errorf("Unexpected message: %+v", bot.sent[0])
	}

	if err := (&TelegramGateway{Bot: bot}).Notify(context.Background(), failed); err == nil {
		t.Error("Expected error for missing chat ID")
	}
}

func TestTelegramStatusReply(t *testing.T) {
	tg := &TelegramGateway{Status: fakeStatus{"s-1": failed}}

	if got := tg.reply("/status s-1"); !strings.Contains(got, "s-1") {
		t.Errorf("Expected summary, got %q", got)
	}
	if got := tg.reply("/status nope"); !strings.Contains(got, "not found") {
		t.Errorf("Expected not found, got %q", got)
	}
	if got := tg.reply("hello"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("Expected usage, got %q", got)
	}
}

func TestTelegramHandleWithoutSender(t *testing.T) {
	bot := &fakeBot{}
	tg := &TelegramGateway{Bot: bot, Status: fakeStatus{"s-1": failed}}

	// channel posts carry no From
	tg.handle(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "/status s-1"}})
	tg.handle(tgbotapi.Update{})

	if len(bot.sent) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(bot.sent))
	}
	if bot.sent[0].ChatID != 7 || !strings.Contains(bot.sent[0].Text, "s-1") {
		t.Errorf("Unexpected reply: %+v", bot.sent[0])
	}
}

func TestFormatSummaryEscapesMarkdown(t *testing.T) {
	snap := failed
	snap.Errors = []string{"fatal: [calendar_structure] requires missing context keys [content_pillars]"}

	got := FormatSummary(snap)
	if !strings.Contains(got, `\[calendar\_structure]`) {
		t.Errorf("Expected escaped error text, got %q", got)
	}
	if strings.Contains(got, "calendar_structure") {
		t.Errorf("Unescaped underscore left in %q", got)
	}
	if !strings.HasPrefix(got, "*Content calendar failed*") {
		t.Errorf("Expected bold header, got %q", got)
	}
}

func TestDiscordNotify(t *testing.T) {
	ch := &fakeChannel{}
	d := &DiscordGateway{Session: ch, ChannelID: "chan"}

	if err := d.Notify(context.Background(), failed); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if ch.channel != "chan" || !strings.Contains(ch.content, "failed") {
		t.Errorf("Unexpected send: %q %q", ch.channel, ch.content)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	bad := &TelegramGateway{Bot: &fakeBot{err: errors.New("blocked")}, ChatID: 1}
	good := &DiscordGateway{Session: &fakeChannel{}, ChannelID: "chan"}

	err := Multi{bad, good}.Notify(context.Background(), failed)
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Errorf("Expected telegram error, got %v", err)
	}
	if got := (Multi{bad, good}).Name(); got != "telegram,discord" {
		t.Errorf("Unexpected name %q", got)
	}
}
