// Package devserver is a local conversation service for exercising dmsync
// end to end. It serves the same HTTP/JSON API the client consumes.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/logging"
	"github.com/tOgg1/dmsync/internal/models"
)

// Config contains server settings.
type Config struct {
	// Addr is the listen address.
	Addr string

	// PageSize is the number of items per snapshot and per older page.
	PageSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Addr: ":8000", PageSize: 20}
}

// Server serves the conversation API from a database.
type Server struct {
	config   Config
	echo     *echo.Echo
	threads  *db.ThreadRepository
	messages *db.MessageRepository
	logger   zerolog.Logger
}

// echoValidator adapts the shared struct validator to echo.
type echoValidator struct{}

func (echoValidator) Validate(i any) error {
	return models.Validator().Struct(i)
}

// New creates a Server backed by database.
func New(cfg Config, database *db.DB) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}

	s := &Server{
		config:   cfg,
		echo:     echo.New(),
		threads:  db.NewThreadRepository(database),
		messages: db.NewMessageRepository(database),
		logger:   logging.Component("devserver"),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = echoValidator{}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", logging.RedactURL(v.URI)).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error().Err(err).Str("stack", string(stack)).Msg("panic recovered")
			return nil
		},
	}))

	e.GET("/health", s.health)
	e.GET("/chats", s.listThreads)
	e.GET("/chats/:thread_id", s.getThread)
	e.GET("/chats/:thread_id/new_messages", s.newMessages)
	e.GET("/chats/:thread_id/messages", s.olderMessages)
	e.POST("/chats/:thread_id/messages", s.sendMessage)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("conversation service listening")
		errCh <- s.echo.Start(s.config.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("conversation service stopped")
	return nil
}
