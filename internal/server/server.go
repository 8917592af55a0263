package server

import (
	"errors"
	"net/http"

	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/handler"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server HTTP 服务
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
	addr   string
}

// New 创建 HTTP 服务并注册路由
func New(logger *zap.Logger, cfg config.ServerConfig, registry *metric.Registry, metrics *handler.MetricsHandler, health *handler.HealthHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger, registry)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestMetrics(logger, registry))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("handler panic",
				zap.String("path", c.Path()),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(middleware.CORS())

	e.GET("/local-metrics", metrics.LocalMetrics)
	e.GET("/metrics", metrics.Metrics)
	e.GET("/metrics/prometheus", metrics.Prometheus)
	e.GET("/metrics/summary", metrics.Summary)
	e.GET("/debug/memory", metrics.DebugMemory)
	e.GET("/simulate-error", metrics.SimulateError)
	e.GET("/health", health.Health)
	e.GET("/health/detailed", health.Detailed)

	return &Server{
		echo:   e,
		logger: logger,
		addr:   cfg.Addr(),
	}
}

// Handler 用于测试
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 开始监听，阻塞直到服务关闭
func (s *Server) Start() error {
	s.logger.Info("Metrics server running", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close 立即关闭监听与所有连接，不等待进行中的请求
func (s *Server) Close() error {
	return s.echo.Close()
}
