// Package discord is a thin Platform Adapter (§6.1) over the Discord
// gateway, grounded in the teacher's internal/channels/discord.Channel —
// kept to connect, map events to (conversationId, text), and send replies;
// it carries none of the core's state.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
)

const maxMessageLen = 2000

// Adapter implements adapterapi.Adapter for Discord.
type Adapter struct {
	session   *discordgo.Session
	botUserID string
	handler   adapterapi.MessageHandler
}

// New constructs a Discord adapter from a bot token.
func New(token string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{session: session}, nil
}

func (a *Adapter) PlatformType() string { return "discord" }

func (a *Adapter) StreamingMode() adapterapi.StreamingMode { return adapterapi.StreamingModeBatch }

func (a *Adapter) OnMessage(handler adapterapi.MessageHandler) {
	a.handler = handler
}

func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessage)
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	a.botUserID = user.ID
	slog.Info("discord adapter connected", "username", user.Username, "id", user.ID)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	slog.Info("stopping discord adapter")
	return a.session.Close()
}

// EnsureThread is a no-op for Discord: channels are already addressable
// conversation ids, so no separate thread id needs to be created.
func (a *Adapter) EnsureThread(ctx context.Context, originalID string, mctx adapterapi.MessageContext) (string, error) {
	return originalID, nil
}

func (a *Adapter) SendMessage(ctx context.Context, conversationID, text string) error {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxMessageLen {
			cutAt := maxMessageLen
			if idx := lastNewline(text[:maxMessageLen]); idx > maxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		if _, err := a.session.ChannelMessageSend(conversationID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botUserID || m.Author.Bot {
		return
	}
	if a.handler == nil || m.Content == "" {
		return
	}
	a.handler(context.Background(), m.ChannelID, m.Content, adapterapi.MessageContext{})
}
