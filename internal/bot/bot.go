package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/generator"
	"github.com/avendel/supportbot/internal/models"
	"github.com/avendel/supportbot/internal/prompt"
	"github.com/avendel/supportbot/internal/session"
)

type Bot struct {
	api       *tgbotapi.BotAPI
	sessions  *session.Manager
	assembler *prompt.Assembler
	generator generator.Generator
	logger    *zap.Logger
}

func New(token string, sessions *session.Manager, assembler *prompt.Assembler, gen generator.Generator, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:       api,
		sessions:  sessions,
		assembler: assembler,
		generator: gen,
		logger:    logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	info := &models.DisplayInfo{
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
		LastName:  message.From.LastName,
	}
	if _, err := b.sessions.GetOrCreateSession(message.Chat.ID, message.From.ID, info); err != nil {
		b.logger.Error("Failed to resolve session",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	content, kind, image, err := b.extractContent(ctx, message)
	if err != nil {
		b.logger.Error("Failed to extract message content",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't read that message. Please try again.")
		return
	}
	if content == "" && image == nil {
		return
	}

	userMsg := models.NewMessage(models.RoleUser, content)
	userMsg.Kind = kind
	if err := b.sessions.AppendMessage(message.From.ID, userMsg); err != nil {
		b.logger.Error("Failed to append user message",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	history, err := b.sessions.GetHistory(message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load history",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	memory, err := b.sessions.GetMemory(message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load memory profile",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		memory = nil
	}

	turns := b.assembler.Assemble(history, memory)
	reply, err := b.generator.Generate(ctx, turns, image)
	if err != nil {
		b.logger.Error("Generation failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't come up with a reply. Please try again.")
		return
	}

	if err := b.sessions.AppendMessage(message.From.ID, models.NewMessage(models.RoleAssistant, reply)); err != nil {
		b.logger.Error("Failed to append reply",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	b.sendMessage(message.Chat.ID, reply)

	b.rememberExchange(ctx, message.From.ID, content, reply)
}

// rememberExchange runs best-effort memory extraction after a reply has
// already been delivered. Extraction failures never reach the user.
func (b *Bot) rememberExchange(ctx context.Context, userID int64, userMessage, reply string) {
	update, err := b.generator.ExtractMemory(ctx, userMessage, reply)
	if err != nil || update == nil {
		return
	}
	if err := b.sessions.UpdateMemory(userID, *update); err != nil {
		b.logger.Error("Failed to update memory profile",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}

// extractContent resolves the message into text content, its modality, and
// an optional image payload. Photos use the caption as content; voice
// notes are transcribed.
func (b *Bot) extractContent(ctx context.Context, message *tgbotapi.Message) (string, models.MessageKind, []byte, error) {
	switch {
	case len(message.Photo) > 0:
		// Telegram sends photos in ascending resolution; take the largest.
		fileID := message.Photo[len(message.Photo)-1].FileID
		image, err := b.downloadFile(fileID)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to download photo: %w", err)
		}
		content := message.Caption
		if content == "" {
			content = "(the user sent a photo)"
		}
		return content, models.ImageMessage, image, nil

	case message.Voice != nil:
		audio, err := b.downloadFile(message.Voice.FileID)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to download voice note: %w", err)
		}
		text, err := b.generator.Transcribe(ctx, "voice.ogg", audio)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to transcribe voice note: %w", err)
		}
		return text, models.VoiceMessage, nil, nil

	default:
		return message.Text, models.TextMessage, nil, nil
	}
}

func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "clear":
		b.handleClear(message)
	case "memory":
		b.handleMemory(message)
	case "stats":
		b.handleStats(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	info := &models.DisplayInfo{
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
		LastName:  message.From.LastName,
	}
	if _, err := b.sessions.GetOrCreateSession(message.Chat.ID, message.From.ID, info); err != nil {
		b.logger.Error("Failed to create session",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	welcome := `Hi, I'm here to listen. 💬
Tell me what's on your mind - I'll remember what matters to you between conversations.

You can send text, photos, or voice notes.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start a conversation
/help - Show this help message
/clear - Forget our current conversation
/memory - Show what I remember about you
/stats - Show bot statistics

You can send:
- Text messages
- Photos with captions
- Voice notes

I'll keep our conversation in mind and remember your interests and goals over time.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleClear(message *tgbotapi.Message) {
	if err := b.sessions.ClearHistory(message.From.ID); err != nil {
		b.logger.Error("Failed to clear history",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't clear the conversation. Please try again.")
		return
	}
	b.sendMessage(message.Chat.ID, "Done - our conversation starts fresh from here.")
}

func (b *Bot) handleMemory(message *tgbotapi.Message) {
	memory, err := b.sessions.GetMemory(message.From.ID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			b.sendMessage(message.Chat.ID, "We haven't talked yet - send me a message first!")
			return
		}
		b.logger.Error("Failed to get memory profile",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't look that up. Please try again.")
		return
	}

	response := "*What I remember about you:*\n"
	if len(memory.Interests) > 0 {
		response += fmt.Sprintf("*Interests:* %s\n", escapeMarkdown(strings.Join(memory.Interests, ", ")))
	}
	if len(memory.Goals) > 0 {
		response += fmt.Sprintf("*Goals:* %s\n", escapeMarkdown(strings.Join(memory.Goals, ", ")))
	}
	if memory.CommunicationStyle != "" {
		response += fmt.Sprintf("*Communication style:* %s\n", escapeMarkdown(memory.CommunicationStyle))
	}
	for key, value := range memory.Preferences {
		response += fmt.Sprintf("*%s:* %s\n", escapeMarkdown(key), escapeMarkdown(value.String()))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send memory message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleStats(message *tgbotapi.Message) {
	stats, err := b.sessions.GetStatistics()
	if err != nil {
		b.logger.Error("Failed to get statistics",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't look that up. Please try again.")
		return
	}

	text := fmt.Sprintf("Users: %d\nMessages: %d\nCounting since: %s",
		stats.TotalUsers,
		stats.TotalMessages,
		stats.LastReset.Format("2006-01-02"))
	b.sendMessage(message.Chat.ID, text)
}

func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
