package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/contentcal/internal/models"
)

type discordChannel interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordGateway struct {
	Session   discordChannel
	ChannelID string
}

func NewDiscordGateway(token, channelID string) (*DiscordGateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordGateway{Session: dg, ChannelID: channelID}, nil
}

func (d *DiscordGateway) Name() string { return "discord" }

func (d *DiscordGateway) Notify(ctx context.Context, snap models.ProgressSnapshot) error {
	if d.ChannelID == "" {
		return fmt.Errorf("discord channel not configured")
	}
	_, err := d.Session.ChannelMessageSend(d.ChannelID, FormatSummary(snap), discordgo.WithContext(ctx))
	return err
}
