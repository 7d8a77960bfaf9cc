// Package web exposes the user-facing JSON API. Authentication is delegated
// to an upstream reverse proxy that injects the authenticated username; the
// handlers never block on remote gateway calls.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/lifecycle"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/vpnconfig"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/web/handler/account"
)

// Service represents the web service.
type Service struct {
	App *fiber.App
	cfg *config.Config
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown blocks until SIGINT/SIGTERM and then stops the http server.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	if s.cfg.Webserver.ShutDownTime > 0 {
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		if err := s.App.Shutdown(); err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped")
}

// New creates a new web service with the given configuration.
func New(cfg *config.Config, db *gorm.DB, engine *lifecycle.Engine, renderer *vpnconfig.Renderer) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Title,
		DisableStartupMessage: !cfg.DevMode,
	})

	if err := account.Handler.Init(app, db, engine, renderer); err != nil {
		log.Fatal().Err(err).Msg("failed to init account handler")
	}

	return &Service{
		App: app,
		cfg: cfg,
	}
}
