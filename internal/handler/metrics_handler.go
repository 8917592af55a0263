package handler

import (
	"net/http"

	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/dushixiang/hostpulse/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TargetServerHeader 指定以哪个主机名返回本机指标
const TargetServerHeader = "X-Target-Server"

// MetricsHandler 指标处理器
type MetricsHandler struct {
	logger  *zap.Logger
	service *service.MetricsService
}

// NewMetricsHandler 创建处理器
func NewMetricsHandler(logger *zap.Logger, service *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{
		logger:  logger,
		service: service,
	}
}

// LocalMetrics 本机快照
// GET /local-metrics
func (h *MetricsHandler) LocalMetrics(c echo.Context) error {
	snapshot, err := h.service.Local(c.Request().Context())
	if err != nil {
		return fail(metric.ErrorKindLocalMetrics, "Failed to fetch system metrics", err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// Metrics 本机与对端的快照；带 X-Target-Server 时只返回本机
// GET /metrics
func (h *MetricsHandler) Metrics(c echo.Context) error {
	ctx := c.Request().Context()
	targetServer := c.Request().Header.Get(TargetServerHeader)

	h.logger.Info("Metrics request received",
		zap.String("targetServer", targetServer),
		zap.String("userAgent", c.Request().UserAgent()),
		zap.String("ip", c.RealIP()))

	var (
		snapshots []protocol.HostSnapshot
		err       error
	)
	if targetServer != "" {
		snapshots, err = h.service.AsHost(ctx, targetServer)
	} else {
		snapshots, err = h.service.Aggregated(ctx)
	}
	if err != nil {
		return fail(metric.ErrorKindGeneral, "Failed to fetch system metrics", err)
	}

	h.logger.Info("Metrics request completed",
		zap.String("targetServer", targetServer),
		zap.Int("metricsCount", len(snapshots)))
	return c.JSON(http.StatusOK, snapshots)
}

// Prometheus Prometheus 文本格式
// GET /metrics/prometheus
func (h *MetricsHandler) Prometheus(c echo.Context) error {
	text, err := h.service.Prometheus(c.Request().Context())
	if err != nil {
		h.logger.Error("Error serving Prometheus metrics", zap.Error(err))
		return c.String(http.StatusInternalServerError, "Error generating Prometheus metrics")
	}
	return c.Blob(http.StatusOK, metric.ContentType, []byte(text))
}

// Summary 指标摘要
// GET /metrics/summary
func (h *MetricsHandler) Summary(c echo.Context) error {
	summary, err := h.service.Summary(c.Request().Context())
	if err != nil {
		return fail(metric.ErrorKindGeneral, "Failed to generate metrics summary", err)
	}
	return c.JSON(http.StatusOK, summary)
}

// DebugMemory 原始内存数据与处理结果
// GET /debug/memory
func (h *MetricsHandler) DebugMemory(c echo.Context) error {
	debug, err := h.service.DebugMemory(c.Request().Context())
	if err != nil {
		return fail(metric.ErrorKindGeneral, "Failed to read memory info", err)
	}
	return c.JSON(http.StatusOK, debug)
}

// SimulateError 手动累加一次错误计数
// GET /simulate-error
func (h *MetricsHandler) SimulateError(c echo.Context) error {
	h.service.RecordError(metric.ErrorKindManualTest)
	h.logger.Warn("Manual test error triggered")
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"message": "Simulated error recorded",
	})
}
