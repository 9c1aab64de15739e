package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"simp-tracker/backend/internal/discord"
	"simp-tracker/backend/internal/render"
	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/storage"
	"simp-tracker/backend/internal/tracker"
	"simp-tracker/backend/pkg/config"
	"simp-tracker/backend/pkg/logger"
)

// interactionSlack is added to the render timeout to bound a whole command
const interactionSlack = 5 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Discord bot...", zap.String("store_backend", cfg.StoreBackend))

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	ctx := context.Background()

	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open edge store", zap.Error(err))
	}
	defer backend.Close()

	renderer := render.New(render.Options{
		Binary:  cfg.RenderBinary,
		Format:  cfg.RenderFormat,
		Dir:     cfg.TreeFileLocation,
		Timeout: cfg.RenderTimeout,
	}, log.Named("render"))

	svc := tracker.NewService(simps.NewStore(), backend, renderer, newLimits(cfg), log.Named("tracker"))

	// Warm the cache and check the layout tool at the same time
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := svc.Bootstrap(gctx)
		return err
	})
	g.Go(func() error {
		if err := renderer.Available(); err != nil {
			log.Warn("Layout renderer not found, map will fail", zap.String("binary", cfg.RenderBinary), zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal("Failed to load simp edges", zap.Error(err))
	}

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}

	handler := discord.NewHandler(svc, cfg.IsOwner, cfg.RenderTimeout+interactionSlack, log.Named("discord"))
	dg.AddHandler(handler.HandleInteraction)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info("Discord session ready",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)),
		)
	})

	dg.Identify.Intents = botIntents()
	dg.State.TrackMembers = true

	// Open connection
	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	defer dg.Close()

	registered, err := dg.ApplicationCommandBulkOverwrite(dg.State.User.ID, cfg.DiscordGuildID, discord.Commands())
	if err != nil {
		log.Fatal("Failed to register slash commands", zap.Error(err))
	}
	log.Info("Slash commands registered",
		zap.Int("count", len(registered)),
		zap.String("guild_id", cfg.DiscordGuildID),
	)

	log.Info("Discord bot is running. Press CTRL-C to exit.")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-shutdownChan

	log.Info("Shutting down Discord bot...")
}

// botIntents covers guild metadata and the member cache used for membership
// tests. GuildMembers is privileged and must be enabled for the application.
func botIntents() discordgo.Intent {
	return discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
}

func newLimits(cfg *config.Config) tracker.Limits {
	return tracker.Limits{
		Default:   cfg.SimpLimit,
		Overrides: cfg.SimpLimitOverrides,
	}
}
