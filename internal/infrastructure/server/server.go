package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/folderstore/internal/api/http"
	"github.com/GriffinCanCode/folderstore/internal/api/middleware"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/config"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

const (
	writeGuardThreshold = 3
	writeGuardCooldown  = 30 * time.Second
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	store      *filesystem.Provider
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance. A nil logger is built from
// cfg.Logging.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		lc := logging.DefaultConfig()
		if cfg.Logging.Development {
			lc = logging.DevelopmentConfig()
		}
		if cfg.Logging.Level != "" {
			lc.Level = cfg.Logging.Level
		}
		l, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing folder store",
		zap.String("port", cfg.Server.Port),
		zap.String("root", cfg.Storage.Root),
		zap.String("archive_format", cfg.Storage.ArchiveFormat),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	tracer := tracing.New("folderstore", logger.Component("tracing"))

	store, err := filesystem.NewProvider(filesystem.Options{
		Root:             cfg.Storage.Root,
		ScratchDir:       cfg.Storage.ScratchDir,
		MaxUploadBytes:   cfg.Storage.MaxUploadBytes,
		MaxExtractBytes:  cfg.Storage.MaxExtractBytes,
		CompressionLevel: cfg.Storage.CompressionLevel,
	}, logger.Component("filesystem"), metrics)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}
	defaultFormat, err := filesystem.ParseFormat(cfg.Storage.ArchiveFormat)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Component("http")))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.RequestLogger(logger.Component("access")))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Bool("global", cfg.RateLimit.Global),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		if cfg.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	// Stop accepting uploads for a while once the disk keeps reporting full
	guardLog := logger.Component("resilience")
	writeGuard := resilience.New("storage-writes", resilience.Settings{
		Threshold: writeGuardThreshold,
		Cooldown:  writeGuardCooldown,
		IsFailure: filesystem.IsDiskFull,
		OnStateChange: func(name string, from, to resilience.State) {
			guardLog.Warn("Write guard state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	handlers := apihttp.NewHandlers(store, tracer, metrics, logger.Logger, apihttp.Options{
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		DefaultFormat:  defaultFormat,
		WriteGuard:     writeGuard,
	})
	handlers.Register(router)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		store:   store,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, including
// transfers, until ctx expires. Artifacts of aborted transfers are removed by
// the transfers themselves.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return err
}
