package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/image-analysis-app/config"
	"github.com/raine/image-analysis-app/internal/bot"
	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/metrics"
	"github.com/raine/image-analysis-app/internal/pipeline"
	"github.com/raine/image-analysis-app/internal/storage"
	"github.com/raine/image-analysis-app/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	logFileName      = "image-analysis-app.log"
	metricsNamespace = "imgapp"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fatalWithWait("invalid config: %v", err)
	}

	if missing := cfg.CheckRequired(); len(missing) > 0 {
		if !isInteractiveTerminal() {
			fatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
		if !runSetupWizard(missing) {
			waitOnWindows()
			os.Exit(1)
		}
		if cfg, err = config.Load(); err != nil {
			fatalWithWait("invalid config: %v", err)
		}
		if missing := cfg.CheckRequired(); len(missing) > 0 {
			fatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(metricsNamespace)
	client := inference.NewClient(cfg.HFBaseURL, cfg.HFToken).
		WithTimeout(cfg.HTTPTimeout).
		WithMetrics(collector)

	captionSource, err := newCaptionSource(ctx, cfg, client)
	if err != nil {
		fatalWithWait("failed to initialize caption backend: %v", err)
	}
	captioner := inference.NewCaptionFetcher(captionSource).
		WithAttempts(cfg.CaptionAttempts).
		WithRetryDelay(cfg.CaptionRetryDelay).
		WithMetrics(collector)

	p := pipeline.New(
		inference.NewImageGenerator(client, cfg.TextToImageModel),
		captioner,
		inference.NewObjectDetector(client, cfg.DetectionModel),
		storage.NewImageFile(cfg.ImagePath),
		pipeline.NewSession(),
	)
	log.Info().
		Str("textToImage", cfg.TextToImageModel).
		Str("captionBackend", cfg.CaptionBackend).
		Str("detection", cfg.DetectionModel).
		Str("imagePath", cfg.ImagePath).
		Msg("pipeline initialized")

	g, ctx := errgroup.WithContext(ctx)

	server := web.NewServer(p, collector, web.WithRateLimit(web.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMin,
		Burst:     cfg.RateLimitBurst,
	}))
	g.Go(func() error {
		return server.Run(ctx, cfg.ListenAddr)
	})

	if cfg.BotToken != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			fatalWithWait("failed to initialize telegram bot: %v", err)
		}
		tg.Debug = false
		log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

		bot.RegisterCommands(tg)

		g.Go(func() error {
			return runBot(ctx, tg, p, cfg.AdminTelegramID)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func newCaptionSource(ctx context.Context, cfg *config.Config, client *inference.Client) (inference.CaptionSource, error) {
	if cfg.CaptionBackend == config.CaptionBackendGemini {
		source, err := inference.NewGeminiCaptioner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("gemini caption backend initialized")
		return source, nil
	}
	return inference.NewHuggingFaceCaptioner(client, cfg.CaptionModel), nil
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, steps bot.Steps, adminID int64) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	b := bot.NewBot(tg, steps, adminID)

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
