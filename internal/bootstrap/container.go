package bootstrap

import (
	"log"
	"time"

	"qa-guru-be/internal/config"
	"qa-guru-be/internal/controller"
	"qa-guru-be/internal/handler"
	"qa-guru-be/internal/pkg/logger"
	"qa-guru-be/internal/repository/memory"
	"qa-guru-be/internal/service"
	"qa-guru-be/internal/websocket"
	"qa-guru-be/pkg/agent"
	"qa-guru-be/pkg/budget"
	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/llm/factory"
	"qa-guru-be/pkg/llm/gemini"
	"qa-guru-be/pkg/matching"
	"qa-guru-be/pkg/promptcache"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	EventConsumerService service.IEventConsumerService

	// WebSockets
	TurnEventsHandler *handler.TurnEventsHandler
	WebSocketHub      *websocket.Hub
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. LLM Provider based on Config
	apiKey := cfg.Keys.GoogleGemini
	if cfg.Ai.Provider == "proxy" {
		apiKey = cfg.Keys.ProxyToken
	}
	llmProvider, err := factory.NewProvider(cfg.Ai.Provider, apiKey, cfg.Ai.ProxyBaseURL)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.Provider, cfg.Ai.Model)

	// 4. In-Memory Session Storage
	sessionRepo := memory.NewSessionRepository(time.Duration(cfg.App.SessionTTLMinutes) * time.Minute)

	// 5. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/turn_events.log")
	wsHub := websocket.NewHub(wsLogger)
	go wsHub.Run()

	// 6. Agent pipeline
	corrector := matching.NewLLMCorrector(llmProvider, cfg.Ai.Model)
	engine := matching.NewEngine(corrector, nil)
	editor := agent.NewEditor(engine, nil)

	budgetMgr := budget.NewManager(nil)
	budgetMgr.Ceiling = cfg.Budget.Ceiling
	budgetMgr.MaxHistoryTurns = cfg.Budget.MaxHistoryTurns
	budgetMgr.MaxHistoryTokens = cfg.Budget.MaxHistoryTokens
	budgetMgr.MaxSourceTokens = cfg.Budget.MaxSourceTokens

	// Server-side prompt caching only works against the direct Gemini API.
	var cacheService *promptcache.Service
	if backend, ok := llmProvider.(*gemini.GeminiProvider); ok && llmProvider.SupportsCaching() {
		ttl := time.Duration(cfg.Ai.CacheTTLMinutes) * time.Minute
		cacheService = promptcache.NewService(backend, ttl, nil)
	}

	eventPublisher := service.NewEventPublisherService(service.TurnEventsTopic, pubSub)
	loop := agent.NewLoop(
		llmProvider,
		editor,
		budgetMgr,
		cacheService,
		eventPublisher,
		nil,
		agent.Config{
			Model:           cfg.Ai.Model,
			MaxRoundTrips:   cfg.Ai.MaxRoundTrips,
			MaxOutputTokens: cfg.Ai.MaxOutputTokens,
			Temperature:     llm.Temperature(0.2),
		},
	)

	// 7. Services
	eventConsumer := service.NewEventConsumerService(pubSub, service.TurnEventsTopic, wsHub)
	chatService := service.NewChatService(sessionRepo, loop, llmProvider, wsHub, sysLogger)

	// 8. Controllers & Handlers
	chatController := controller.NewChatController(chatService, cfg.Keys.JWTSecret)
	turnEventsHandler := handler.NewTurnEventsHandler(wsHub, wsLogger, cfg.Keys.JWTSecret)

	return &Container{
		ChatController:       chatController,
		EventConsumerService: eventConsumer,
		TurnEventsHandler:    turnEventsHandler,
		WebSocketHub:         wsHub,
	}
}
