package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/backupkeeper/internal/config"
)

// Bot API upload limit for documents.
const telegramMaxFileSize = 50 << 20

type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

// Upload sends the archive itself when allowed and small enough, and a
// notification otherwise.
func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	size := humanize.IBytes(uint64(fileInfo.Size()))

	if t.notifyOnly || !t.sendFile || fileInfo.Size() > telegramMaxFileSize {
		message := fmt.Sprintf(
			"✅ Backup Created\n\n"+
				"📁 File: %s\n"+
				"📊 Size: %s\n"+
				"🕐 Time: %s",
			remoteName,
			size,
			fileInfo.ModTime().Format(time.DateTime),
		)
		return t.Notify(ctx, message)
	}

	file := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	file.Caption = fmt.Sprintf("📦 Backup: %s (%s)", remoteName, size)

	if _, err := t.bot.Send(file); err != nil {
		return fmt.Errorf("failed to send telegram file: %w", err)
	}

	return nil
}

// Delete is a no-op: bots cannot remove messages older than 48 hours.
func (t *TelegramStorage) Delete(ctx context.Context, remoteName string) error {
	return nil
}

func (t *TelegramStorage) Notify(ctx context.Context, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
