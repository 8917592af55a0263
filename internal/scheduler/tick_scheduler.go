package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Collector 快照来源
type Collector interface {
	Collect(ctx context.Context) (protocol.HostSnapshot, error)
}

// Recorder 指标写入方
type Recorder interface {
	Update(s protocol.HostSnapshot)
	IncrementError(kind string)
}

// TickScheduler 定时采集调度器
// 同一时刻最多只有一次采集在执行，执行中到期的 tick 直接跳过
type TickScheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	entryID   cron.EntryID
	interval  time.Duration
	collector Collector
	recorder  Recorder
	logger    *zap.Logger
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTickScheduler 创建调度器
func NewTickScheduler(logger *zap.Logger, collector Collector, recorder Recorder, interval time.Duration) *TickScheduler {
	return &TickScheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger.Sugar()}),
		)),
		interval:  interval,
		collector: collector,
		recorder:  recorder,
		logger:    logger,
	}
}

// Start 立即执行一次采集，然后按间隔调度
func (s *TickScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("启动定时采集", zap.Duration("interval", s.interval))

	// 保证首个周期到来之前注册表已有数据
	s.Tick(s.ctx)

	spec := fmt.Sprintf("@every %s", s.interval)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.Tick(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("添加 cron 任务失败: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	return nil
}

// Stop 停止调度器，不等待正在执行的采集
func (s *TickScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cron.Stop()
	s.cron.Remove(s.entryID)

	s.logger.Info("定时采集已停止")
}

// Tick 执行一次采集并写入注册表
// 已有采集在执行时返回 false；采集失败时放弃本次写入并累加错误计数
func (s *TickScheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("上一次采集尚未完成，跳过本次 tick")
		return false
	}
	defer s.running.Store(false)

	snapshot, err := s.collector.Collect(ctx)
	if err != nil {
		s.logger.Error("定时采集失败", zap.Error(err))
		s.recorder.IncrementError(metric.ErrorKindTick)
		return true
	}

	s.recorder.Update(snapshot)
	s.logger.Debug("指标已更新",
		zap.String("hostname", snapshot.Hostname),
		zap.Uint64("availableMemory", snapshot.Memory.AvailableBytes),
		zap.Uint64("totalMemory", snapshot.Memory.TotalBytes))
	return true
}

// cronLogger 将 cron 的日志接入 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
