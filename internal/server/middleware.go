package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dushixiang/hostpulse/internal/handler"
	"github.com/dushixiang/hostpulse/internal/metric"
	goerrors "github.com/go-errors/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorRecorder 错误计数
type ErrorRecorder interface {
	IncrementError(kind string)
}

// RequestObserver 请求指标
type RequestObserver interface {
	ObserveRequest(endpoint, method string, status int, duration time.Duration)
}

// requestMetrics 记录每个请求的次数、耗时并输出访问日志
func requestMetrics(logger *zap.Logger, observer RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			req := c.Request()
			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			status := c.Response().Status

			observer.ObserveRequest(endpoint, req.Method, status, duration)
			logger.Info("API request processed",
				zap.String("method", req.Method),
				zap.String("endpoint", endpoint),
				zap.Int("statusCode", status),
				zap.Duration("duration", duration),
				zap.String("userAgent", req.UserAgent()),
				zap.String("ip", c.RealIP()),
				zap.String("requestId", c.Response().Header().Get(echo.HeaderXRequestID)))
			return nil
		}
	}
}

// errorHandler 统一错误处理
// 堆栈只写入服务端日志，调用方只收到通用描述
func errorHandler(logger *zap.Logger, recorder ErrorRecorder) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code != http.StatusInternalServerError {
			_ = c.JSON(he.Code, map[string]interface{}{
				"error": he.Message,
			})
			return
		}

		kind := metric.ErrorKindGeneral
		message := "Internal server error"
		stack := goerrors.Wrap(err, 0).ErrorStack()
		var herr *handler.Error
		if errors.As(err, &herr) {
			kind = herr.Kind
			message = herr.Message
			stack = herr.Err.ErrorStack()
		}

		logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("kind", kind),
			zap.Error(err),
			zap.String("stack", stack))
		recorder.IncrementError(kind)

		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error": message,
		})
	}
}
