// Пакет server — HTTP-сервер Auth Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/avkuzmin/reportstore/auth-module/internal/api/handlers"
	"github.com/avkuzmin/reportstore/auth-module/internal/api/middleware"
	"github.com/avkuzmin/reportstore/auth-module/internal/config"
)

// Handlers — набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Health *handlers.HealthHandler
	Auth   *handlers.AuthHandler
	Report *handlers.ReportHandler
	Ledger *handlers.LedgerHandler
}

// Server — HTTP-сервер Auth Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// gate — middleware проверки session-токена для защищённой группы маршрутов.
// middlewares — глобальные middleware (metrics, logging), добавляются
// в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, gate *middleware.SessionAuth, middlewares ...func(http.Handler) http.Handler) *Server {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	// Служебные endpoints — без аутентификации
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	// Аутентификация — открытые маршруты
	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Get("/google/login", h.Auth.GoogleLogin)
		r.Get("/google/callback", h.Auth.GoogleCallback)
		r.Post("/google/verify", h.Auth.GoogleVerify)

		// Проверка токена — за gate: сам токен и есть аутентификация
		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware())
			r.Get("/verify", h.Auth.Verify)
		})
	})

	// Бизнес-маршруты — только с session-токеном
	router.Group(func(r chi.Router) {
		r.Use(gate.Middleware())

		r.Route("/api/reports", func(r chi.Router) {
			r.Post("/", h.Report.Create)
			r.Get("/", h.Report.List)
			r.Get("/{id}", h.Report.Get)
		})

		r.Route("/api/accounts", func(r chi.Router) {
			r.Post("/", h.Ledger.Create)
			r.Get("/", h.Ledger.List)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
