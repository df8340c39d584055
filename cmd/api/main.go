package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"

	"waaku-golang/internal/config"
	"waaku-golang/internal/handlers"
	"waaku-golang/internal/middleware"
	"waaku-golang/internal/realtime"
	"waaku-golang/internal/services"
	"waaku-golang/internal/session"
	"waaku-golang/internal/transport"
	"waaku-golang/pkg/logger"
)

const banner = `
██╗    ██╗ █████╗  █████╗ ██╗  ██╗██╗   ██╗
██║    ██║██╔══██╗██╔══██╗██║ ██╔╝██║   ██║
██║ █╗ ██║███████║███████║█████╔╝ ██║   ██║
██║███╗██║██╔══██║██╔══██║██╔═██╗ ██║   ██║
╚███╔███╔╝██║  ██║██║  ██║██║  ██╗╚██████╔╝
 ╚══╝╚══╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝
       Gateway de Sessões WhatsApp
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro de configuração: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("[API] ", logger.LevelFromString(cfg.LogLevel))
	log.Info("Iniciando gateway de sessões WhatsApp...")

	factory, err := transport.NewFactory(cfg, log)
	if err != nil {
		log.Fatalf("Falha ao inicializar transporte WhatsApp: %v", err)
	}

	hub := realtime.NewHub(cfg.Auth.APIKeyHash, cfg.CORS.Origins, log)
	manager := session.NewManager(factory.NewClient, hub, log)

	webhook := services.NewWebhookService(cfg.Webhook, log)
	chatwoot := services.NewChatwootService(cfg.Chatwoot, log)
	dispatcher := services.NewDispatcher(webhook, chatwoot, hub, manager, log)
	manager.SetMessageSink(dispatcher)

	// Snapshot entregue a cada cliente recém-conectado, depois do handshake.
	hub.SetSnapshot(func() []realtime.Message {
		now := time.Now()
		return []realtime.Message{
			{Event: "sessions:update", Data: manager.Summaries(), Timestamp: now},
			{Event: "health:update", Data: manager.HealthAll(), Timestamp: now},
		}
	})

	healthTicker := time.NewTicker(30 * time.Second)
	defer healthTicker.Stop()
	go func() {
		for range healthTicker.C {
			hub.Emit("health:update", manager.HealthAll())
		}
	}()

	router := buildRouter(cfg, log, hub, manager, dispatcher)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("Servidor escutando na porta %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Falha no servidor HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Desligando servidor...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Erro no desligamento do servidor HTTP: %v", err)
	}
	manager.Shutdown()

	log.Info("Servidor encerrado")
}

func buildRouter(
	cfg *config.Config,
	log *logger.Logger,
	hub *realtime.Hub,
	manager *session.Manager,
	dispatcher *services.Dispatcher,
) http.Handler {
	base := handlers.NewHandler(log)
	sessions := handlers.NewSessionHandler(manager, log)
	messages := handlers.NewMessageHandler(manager, dispatcher, log)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(base.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(base.MethodNotAllowed)

	// Sem autenticação: probe de vida e handshake WebSocket (que autentica
	// por conta própria, antes do upgrade).
	router.HandleFunc("/health", base.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.HandleWS)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg, log))
	api.Use(middleware.ContentTypeMiddleware())

	api.HandleFunc("/sessions", sessions.Create).Methods(http.MethodPost)
	api.HandleFunc("/sessions", sessions.List).Methods(http.MethodGet)
	api.HandleFunc("/sessions/health", sessions.HealthAll).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", sessions.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/qr", sessions.QR).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/health", sessions.HealthOne).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/restart", sessions.Restart).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/validate", messages.ValidateNumber).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/send", messages.SendMessage).Methods(http.MethodPost)

	rateLimiter := middleware.NewRateLimiter(log)

	var handler http.Handler = router
	handler = rateLimiter.Middleware()(handler)
	handler = middleware.CORSMiddleware(cfg)(handler)
	handler = middleware.LoggingMiddleware(log)(handler)
	handler = middleware.RecoveryMiddleware(log)(handler)
	return handler
}
