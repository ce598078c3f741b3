package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/teamforge/realtime/internal/adapters/http"
	"github.com/teamforge/realtime/internal/adapters/ws"
	"github.com/teamforge/realtime/internal/call"
	"github.com/teamforge/realtime/internal/chat"
	"github.com/teamforge/realtime/internal/config"
	"github.com/teamforge/realtime/internal/hub"
	"github.com/teamforge/realtime/internal/membership"
	"github.com/teamforge/realtime/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open record store")
	}
	defer st.Close()

	oracle := membership.NewOracle(st)

	// One hub per logical channel, like socket namespaces.
	messageHub := hub.New()
	callHub := hub.New()

	chatSvc := chat.NewService(st, oracle, messageHub)
	limiter := chat.NewRateLimiter(cfg.MsgRateLimit, cfg.MsgRateInterval)

	coord := &call.Coordinator{
		Registry: call.NewRegistry(),
		Members:  oracle,
		Users:    st,
		Send:     callHub,
	}

	messages := ws.NewMessagesController(messageHub, chatSvc, limiter)
	calls := ws.NewCallsController(callHub, coord)

	r := router.SetupRouter(ctx, cfg, st, messages, calls)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("realtime server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
