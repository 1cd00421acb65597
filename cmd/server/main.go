package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/config"
	"github.com/Idan-Levin/slack-shopping-agent/internal/agent"
	"github.com/Idan-Levin/slack-shopping-agent/internal/bridge"
	httpDelivery "github.com/Idan-Levin/slack-shopping-agent/internal/delivery/http"
	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
	"github.com/Idan-Levin/slack-shopping-agent/internal/resolver"
	"github.com/Idan-Levin/slack-shopping-agent/internal/scheduler"
	"github.com/Idan-Levin/slack-shopping-agent/internal/session"
	"github.com/Idan-Levin/slack-shopping-agent/internal/slackbot"
	"github.com/Idan-Levin/slack-shopping-agent/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting slack-shopping-agent",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("session_type", cfg.Session.Type))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Item storage
	itemStore, err := store.New(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("could not open item store", zap.Error(err))
	}
	defer itemStore.Close()

	// Conversation state
	var sessions domain.SessionStore
	switch cfg.Session.Type {
	case "redis":
		redisStore, err := session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, logger)
		if err != nil {
			logger.Fatal("could not connect to Redis", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
	default:
		sessions = session.NewMemoryStore()
	}

	// Product resolution pipeline
	validator := resolver.NewValidator(logger)
	reconciler := resolver.NewReconciler(validator, logger)
	searchChat := resolver.NewOpenAIChat(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.SearchModel)
	searcher := resolver.NewSearchClient(searchChat, reconciler, validator, logger)
	scraper := resolver.NewPageScraper(cfg.Scraper.RegionZip, logger)
	products := resolver.NewService(scraper, searcher, logger)

	// Agent
	llm := agent.NewOpenAILLM(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.AgentModel)
	toolbox := agent.NewToolbox(products, itemStore, logger)
	shopAgent := agent.New(llm, toolbox, sessions, logger)

	// Order bridge: exports the list and hands it to the purchase automation
	// when an order is placed.
	orderBridge := bridge.New(cfg.Bridge.ExportDir, cfg.Bridge.AutomationPath, logger)
	orderTrigger := func(items []domain.ShoppingItem) error {
		path, err := bridge.WriteShoppingList(cfg.Bridge.ExportDir, items)
		if err != nil {
			return err
		}
		logger.Info("exported shopping list", zap.String("path", path), zap.Int("items", len(items)))
		if cfg.Bridge.AutomationPath == "" {
			return nil
		}
		return orderBridge.Launch(ctx, path, items)
	}

	// Slack bot
	api := slack.New(cfg.Slack.BotToken)
	bot := slackbot.New(api, shopAgent, sessions, itemStore, orderTrigger, cfg.Slack.TargetChannelID, logger)

	// Weekly reminder
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(bot, cfg.Scheduler.Spec, cfg.Scheduler.Timezone, logger)
		if err != nil {
			logger.Fatal("could not create scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	// HTTP server
	handler := httpDelivery.NewHandler(bot, cfg.Slack.SigningSecret, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
}

// newLogger builds the zap logger for the given environment.
func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
