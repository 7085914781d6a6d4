package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatbox/internal/config"
	"github.com/zhouzirui/chatbox/internal/handler"
	"github.com/zhouzirui/chatbox/internal/handler/socket"
	"github.com/zhouzirui/chatbox/internal/logging"
	"github.com/zhouzirui/chatbox/internal/service/ai"
	"github.com/zhouzirui/chatbox/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Console("info")
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Console(cfg.Log.Level)
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	store, err := openStore(cfg.Server)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Server.DataPath).Msg("failed to open transcript store")
	}
	chatService, err := chat.NewService(store, cfg.Server.HistoryLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create chat service")
	}
	defer chatService.Close()

	router := handler.NewRouter(handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowOrigins,
		Socket:         socket.Options{TimeLayout: cfg.Client.TimeLayout},
	}, chatService, newResponder(ctx, cfg.AI, logger), logger)

	startServer(ctx, cfg.Server, router, logger)
}

func openStore(serverCfg config.ServerConfig) (chat.Store, error) {
	if serverCfg.DataPath == "" {
		return chat.NewMemoryStore(), nil
	}
	return chat.OpenPebbleStore(serverCfg.DataPath)
}

// newResponder 优先使用 Ark 模型，未配置或初始化失败时退回回显。
func newResponder(ctx context.Context, aiCfg config.AIConfig, logger zerolog.Logger) ai.Responder {
	if !aiCfg.Enabled() {
		logger.Info().Msg("Ark 凭证未配置，使用回显机器人")
		return ai.EchoResponder{}
	}

	svc, err := ai.NewService(ctx, aiCfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize AI service, falling back to echo")
		return ai.EchoResponder{}
	}
	logger.Info().Str("model", aiCfg.Model).Msg("AI service initialized successfully")
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("chat endpoint listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
