package logger

import (
	"os"
	"strings"

	"github.com/dushixiang/hostpulse/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New 初始化日志系统
// 控制台输出可读格式；配置了文件时同时以 JSON 写入滚动文件
func New(cfg config.LogConfig, hostname string) *zap.Logger {
	level := ParseLevel(cfg.Level)

	consoleEncoder := zap.NewDevelopmentEncoderConfig()
	consoleEncoder.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	consoleEncoder.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoder), zapcore.Lock(os.Stdout), level),
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(fileEncoder, rotate(cfg, cfg.File), level))
	}
	if cfg.ErrorFile != "" {
		cores = append(cores, zapcore.NewCore(fileEncoder, rotate(cfg, cfg.ErrorFile), zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(
		zap.String("service", "metrics-collector-app"),
		zap.String("hostname", hostname),
	)
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func rotate(cfg config.LogConfig, filename string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 保留的旧日志文件数
		MaxAge:     cfg.MaxAge,     // 天数
		Compress:   cfg.Compress,
	})
}
