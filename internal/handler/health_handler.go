package handler

import (
	"net/http"

	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	service *service.MetricsService
}

// NewHealthHandler 创建处理器
func NewHealthHandler(logger *zap.Logger, service *service.MetricsService) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		service: service,
	}
}

// Health 存活检查，不检查任何依赖
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Detailed 详细健康检查，任一检查不通过返回 503
// GET /health/detailed
func (h *HealthHandler) Detailed(c echo.Context) error {
	report, err := h.service.Health(c.Request().Context())
	if err != nil {
		h.logger.Error("Error in detailed health check", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": metric.StatusUnhealthy,
			"error":  "Health check failed",
		})
	}

	status := http.StatusOK
	if report.Status != metric.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}
