// Package bot exposes the image analysis pipeline as Telegram commands.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/image-analysis-app/internal/pipeline"
	"github.com/raine/image-analysis-app/internal/render"
	"github.com/rs/zerolog/log"
)

// DefaultPrompt is used when /generate is sent without a prompt.
const DefaultPrompt = "dog and cat playing football"

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Steps is the pipeline as seen by the bot.
type Steps interface {
	Generate(ctx context.Context, prompt string) (*pipeline.GenerateResult, error)
	Caption(ctx context.Context) (string, error)
	Detect(ctx context.Context) (*pipeline.DetectResult, error)
}

// Bot routes Telegram commands to the pipeline. It shares the pipeline, and therefore
// the last generated image, with every other surface in the process.
type Bot struct {
	tg      BotAPI
	steps   Steps
	adminID int64
}

// NewBot creates a bot. A non-zero adminID restricts the bot to that user.
func NewBot(tg BotAPI, steps Steps, adminID int64) *Bot {
	return &Bot{tg: tg, steps: steps, adminID: adminID}
}

// HandleUpdate handles a single update from Telegram.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if b.adminID != 0 && msg.From.ID != b.adminID {
		log.Debug().Int64("userID", msg.From.ID).Msg("ignoring message from non-admin user")
		return
	}

	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, formatReplyText(MsgUsage))
		return
	}

	chatID := msg.Chat.ID
	log.Info().Int64("chatID", chatID).Str("command", msg.Command()).Msg("handling command")

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, formatReplyText(MsgUsage))
	case "generate":
		b.handleGenerate(ctx, chatID, msg.CommandArguments())
	case "caption":
		b.handleCaption(ctx, chatID)
	case "detect":
		b.handleDetect(ctx, chatID)
	default:
		b.reply(chatID, MsgUnknownCommand)
	}
}

func (b *Bot) handleGenerate(ctx context.Context, chatID int64, args string) {
	prompt := strings.TrimSpace(args)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	b.sendAction(chatID, tgbotapi.ChatUploadPhoto)
	result, err := b.steps.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Str("prompt", prompt).Msg("image generation failed")
		b.reply(chatID, formatReplyText(MsgGenerateFailed, err))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: filepath.Base(result.Path), Bytes: result.Data})
	photo.Caption = MsgGeneratedImage
	b.send(photo)
}

func (b *Bot) handleCaption(ctx context.Context, chatID int64) {
	b.sendAction(chatID, tgbotapi.ChatTyping)
	caption, err := b.steps.Caption(ctx)
	if errors.Is(err, pipeline.ErrNoImage) {
		b.reply(chatID, MsgNoImage)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("caption failed")
		b.reply(chatID, formatReplyText(MsgCaptionFailed, err))
		return
	}

	b.reply(chatID, formatReplyText(MsgCaption, caption))
}

func (b *Bot) handleDetect(ctx context.Context, chatID int64) {
	b.sendAction(chatID, tgbotapi.ChatUploadPhoto)
	result, err := b.steps.Detect(ctx)
	if errors.Is(err, pipeline.ErrNoImage) {
		b.reply(chatID, MsgNoImage)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("object detection failed")
		b.reply(chatID, formatReplyText(MsgDetectFailed, err))
		return
	}

	var buf bytes.Buffer
	if err := result.Canvas.EncodePNG(&buf); err != nil {
		b.replyWithError(chatID, fmt.Errorf("failed to encode canvas: %w", err))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "detections.png", Bytes: buf.Bytes()})
	photo.Caption = detectionSummary(result)
	b.send(photo)
}

func detectionSummary(result *pipeline.DetectResult) string {
	if len(result.Detections) == 0 {
		return MsgNoObjectsFound
	}
	lines := []string{MsgDetectionsHeader}
	for _, d := range result.Detections {
		lines = append(lines, render.LabelText(d))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithError(chatID int64, err error) {
	log.Error().Err(err).Send()
	b.reply(chatID, formatReplyText(MsgUnexpectedErr, err))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		log.Error().Err(fmt.Errorf("failed to send reply message: %w", err)).Send()
	}
}

// sendAction shows a status indicator; it expires on its own after a few seconds.
func (b *Bot) sendAction(chatID int64, action string) {
	if _, err := b.tg.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("failed to send chat action")
	}
}
