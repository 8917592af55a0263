package app

import (
	"context"
	"os"

	"github.com/dushixiang/hostpulse/internal/collector"
	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/handler"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/scheduler"
	"github.com/dushixiang/hostpulse/internal/server"
	"github.com/dushixiang/hostpulse/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App 组装所有组件，生命周期与进程一致
type App struct {
	logger    *zap.Logger
	scheduler *scheduler.TickScheduler
	server    *server.Server
}

// New 创建应用
func New(cfg config.AppConfig, logger *zap.Logger) *App {
	registry := metric.NewRegistry(Hostname(), config.Version)
	snapshots := collector.NewSnapshotCollector(logger, collector.NewGopsutilProvider())
	aggregator := service.NewPeerAggregator(logger, registry)
	metricsService := service.NewMetricsService(logger, cfg, snapshots, registry, aggregator)

	return &App{
		logger:    logger,
		scheduler: scheduler.NewTickScheduler(logger, snapshots, registry, cfg.Collect.Interval),
		server: server.New(logger, cfg.Server, registry,
			handler.NewMetricsHandler(logger, metricsService),
			handler.NewHealthHandler(logger, metricsService)),
	}
}

// Run 启动定时采集与 HTTP 服务，ctx 取消后立即关闭
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.scheduler.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		return a.server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("正在关闭服务")
		a.scheduler.Stop()
		return a.server.Close()
	})

	return g.Wait()
}

// Hostname 本机主机名
func Hostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return hostname
}
