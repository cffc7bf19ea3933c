package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/bot"
	"github.com/avendel/supportbot/internal/generator"
	"github.com/avendel/supportbot/internal/prompt"
	"github.com/avendel/supportbot/internal/session"
	"github.com/avendel/supportbot/internal/storage"
	"github.com/avendel/supportbot/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Persister
	if cfg.Session.UsePostgres {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	} else {
		logger.Info("Using file storage", zap.String("path", cfg.Session.StorePath))
		store = storage.NewFileStorage(cfg.Session.StorePath, logger)
	}
	defer store.Close()

	// Initialize session manager
	sessions := session.NewManager(store, session.Config{
		MaxHistory:  cfg.Session.MaxHistory,
		SeedMessage: cfg.Session.SeedMessage,
	}, logger)
	if err := sessions.Initialize(); err != nil {
		logger.Fatal("Failed to initialize session manager", zap.Error(err))
	}

	// Load persona document
	var persona *prompt.Persona
	if cfg.Persona.Path != "" {
		persona, err = prompt.LoadPersona(cfg.Persona.Path)
		if err != nil {
			logger.Fatal("Failed to load persona", zap.Error(err), zap.String("path", cfg.Persona.Path))
		}
	}
	assembler := prompt.NewAssembler(persona, cfg.Session.EnableUserMemory)

	// Initialize generation backend
	gen := generator.NewOpenAIGenerator(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, sessions, assembler, gen, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Periodically sweep inactive sessions
	go runSweeper(sessions, cfg.Session.SweepInterval, cfg.Session.IdleTTL, logger)

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}

func runSweeper(sessions *session.Manager, interval, idleTTL time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		deleted, err := sessions.SweepInactive(idleTTL)
		if err != nil {
			logger.Error("Inactivity sweep failed", zap.Error(err))
			continue
		}
		if deleted > 0 {
			logger.Info("Inactivity sweep finished", zap.Int("deleted", deleted))
		}
	}
}
