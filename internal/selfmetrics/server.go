package selfmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ServerConfig holds configuration for the self-metrics server.
type ServerConfig struct {
	// Port is the port to listen on.
	Port int

	// Path is the path to serve metrics on.
	Path string

	// ReadTimeout is the read timeout for the server.
	ReadTimeout time.Duration

	// WriteTimeout is the write timeout for the server.
	WriteTimeout time.Duration

	// Registry is the Prometheus registry to serve. If nil, the default
	// registry is used.
	Registry *prometheus.Registry
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:         9464,
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// HealthCheck reports whether the export pipeline is healthy, with a short
// human-readable detail when it is not.
type HealthCheck func() (healthy bool, detail string)

// Health is the /healthz response body.
type Health struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Server serves the self-metrics registry and the export health probe.
type Server struct {
	config   *ServerConfig
	server   *http.Server
	logger   *zap.Logger
	health   HealthCheck
	gatherer prometheus.Gatherer
	stopOnce sync.Once
}

// NewServer creates a new self-metrics server.
func NewServer(config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if config.Registry != nil {
		gatherer = config.Registry
	}

	return &Server{
		config:   config,
		logger:   logger,
		gatherer: gatherer,
	}
}

// WithHealthCheck sets the health probe consulted by /healthz. Typically
// wired to the export circuit breaker.
func (s *Server) WithHealthCheck(check HealthCheck) *Server {
	s.health = check
	return s
}

// Handler returns the HTTP handler the server mounts, for callers that want
// to serve it on their own mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.config.Path, promhttp.HandlerFor(
		s.gatherer,
		promhttp.HandlerOpts{
			ErrorLog:            &zapErrorLogger{logger: s.logger},
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: 10,
			Timeout:             s.config.WriteTimeout,
			EnableOpenMetrics:   true,
		},
	))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := Health{Status: "ok"}
		code := http.StatusOK
		if s.health != nil {
			if healthy, detail := s.health(); !healthy {
				health = Health{Status: "degraded", Detail: detail}
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(health); err != nil {
			s.logger.Debug("failed to write health response", zap.Error(err))
		}
	})

	return mux
}

// Start starts the server and blocks until ctx is canceled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting self-metrics server",
		zap.Int("port", s.config.Port),
		zap.String("path", s.config.Path),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.logger.Info("stopping self-metrics server")
		if s.server != nil {
			stopErr = s.server.Shutdown(ctx)
		}
	})
	return stopErr
}

// zapErrorLogger adapts zap.Logger to the promhttp.Logger interface.
type zapErrorLogger struct {
	logger *zap.Logger
}

// Println implements promhttp.Logger.
func (l *zapErrorLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}
