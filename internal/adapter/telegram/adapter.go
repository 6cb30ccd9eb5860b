// Package telegram is a thin Platform Adapter (§6.1) over the Telegram Bot
// API long-polling loop, grounded in the teacher's
// internal/channels/telegram.Channel — kept to connect, map updates to
// (conversationId, text), and send replies.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/archon/internal/adapterapi"
)

// telegramGeneralTopicID is the fixed topic id for a forum's "General"
// topic — Telegram rejects it as an explicit thread id on send.
const telegramGeneralTopicID = 1

// Adapter implements adapterapi.Adapter for Telegram.
type Adapter struct {
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	handler    adapterapi.MessageHandler
}

// New constructs a Telegram adapter from a bot token.
func New(token string) (*Adapter, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

func (a *Adapter) PlatformType() string { return "telegram" }

func (a *Adapter) StreamingMode() adapterapi.StreamingMode { return adapterapi.StreamingModeBatch }

func (a *Adapter) OnMessage(handler adapterapi.MessageHandler) {
	a.handler = handler
}

func (a *Adapter) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	a.pollCancel = cancel
	a.pollDone = make(chan struct{})

	updates, err := a.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start telegram long polling: %w", err)
	}

	slog.Info("telegram adapter connected", "username", a.bot.Username())

	go func() {
		defer close(a.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					a.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	slog.Info("stopping telegram adapter")
	if a.pollCancel != nil {
		a.pollCancel()
	}
	if a.pollDone != nil {
		select {
		case <-a.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// EnsureThread returns a composite "{chatId}:topic:{threadId}" conversation
// id when messageContext carries a forum thread, mirroring the teacher's
// localKey scheme for topic routing; otherwise returns originalID unchanged.
func (a *Adapter) EnsureThread(ctx context.Context, originalID string, mctx adapterapi.MessageContext) (string, error) {
	if mctx.ThreadContext == "" {
		return originalID, nil
	}
	return originalID + ":topic:" + mctx.ThreadContext, nil
}

func (a *Adapter) SendMessage(ctx context.Context, conversationID, text string) error {
	chatID, threadID := parseConversationID(conversationID)
	msg := tu.Message(tu.ID(chatID), text)
	if threadID != 0 && threadID != telegramGeneralTopicID {
		msg.MessageThreadID = threadID
	}
	if _, err := a.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func parseConversationID(conversationID string) (chatID int64, threadID int) {
	raw := conversationID
	if idx := indexOf(conversationID, ":topic:"); idx > 0 {
		raw = conversationID[:idx]
		if t, err := strconv.Atoi(conversationID[idx+len(":topic:"):]); err == nil {
			threadID = t
		}
	}
	chatID, _ = strconv.ParseInt(raw, 10, 64)
	return chatID, threadID
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (a *Adapter) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From != nil && msg.From.IsBot {
		return
	}
	if a.handler == nil || msg.Text == "" {
		return
	}

	conversationID := strconv.FormatInt(msg.Chat.ID, 10)
	var mctx adapterapi.MessageContext
	if msg.MessageThreadID != 0 {
		conversationID += ":topic:" + strconv.Itoa(msg.MessageThreadID)
		mctx.ThreadContext = strconv.Itoa(msg.MessageThreadID)
	}

	a.handler(ctx, conversationID, msg.Text, mctx)
}
