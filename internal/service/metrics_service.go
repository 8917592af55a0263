package service

import (
	"context"
	"math"
	"time"

	"github.com/dushixiang/hostpulse/internal/collector"
	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"go.uber.org/zap"
)

// SnapshotSource 本机快照来源
type SnapshotSource interface {
	Collect(ctx context.Context) (protocol.HostSnapshot, error)
	Memory(ctx context.Context) (collector.RawMemory, protocol.MemoryInfo, error)
}

// MetricsService 指标服务
type MetricsService struct {
	logger      *zap.Logger
	source      SnapshotSource
	registry    *metric.Registry
	aggregator  *PeerAggregator
	peers       []config.PeerTarget
	peerTimeout time.Duration
}

// NewMetricsService 创建指标服务
func NewMetricsService(logger *zap.Logger, cfg config.AppConfig, source SnapshotSource, registry *metric.Registry, aggregator *PeerAggregator) *MetricsService {
	return &MetricsService{
		logger:      logger,
		source:      source,
		registry:    registry,
		aggregator:  aggregator,
		peers:       cfg.Peers,
		peerTimeout: cfg.PeerTimeout,
	}
}

// Local 采集本机快照
func (s *MetricsService) Local(ctx context.Context) (protocol.HostSnapshot, error) {
	return s.source.Collect(ctx)
}

// Aggregated 本机与可达对端的快照
func (s *MetricsService) Aggregated(ctx context.Context) ([]protocol.HostSnapshot, error) {
	local, err := s.source.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Aggregate(ctx, local, s.peers, s.peerTimeout), nil
}

// AsHost 以指定主机名返回本机快照
func (s *MetricsService) AsHost(ctx context.Context, hostname string) ([]protocol.HostSnapshot, error) {
	local, err := s.source.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return s.aggregator.AsHost(local, hostname), nil
}

// Refresh 重新采集并写入注册表，失败时保留旧值
func (s *MetricsService) Refresh(ctx context.Context) {
	snapshot, err := s.source.Collect(ctx)
	if err != nil {
		s.logger.Error("刷新 Prometheus 指标失败", zap.Error(err))
		s.registry.IncrementError(metric.ErrorKindPrometheusUpdate)
		return
	}
	s.registry.Update(snapshot)
}

// Prometheus 刷新后渲染文本格式
func (s *MetricsService) Prometheus(ctx context.Context) (string, error) {
	s.Refresh(ctx)

	text, err := s.registry.Render()
	if err != nil {
		s.registry.IncrementError(metric.ErrorKindPrometheusServe)
		return "", err
	}
	return text, nil
}

// Summary 指标摘要
func (s *MetricsService) Summary(ctx context.Context) (metric.Summary, error) {
	snapshot, err := s.source.Collect(ctx)
	if err != nil {
		return metric.Summary{}, err
	}
	return BuildSummary(snapshot, time.Now()), nil
}

// Health 详细健康检查
func (s *MetricsService) Health(ctx context.Context) (metric.HealthReport, error) {
	snapshot, err := s.source.Collect(ctx)
	if err != nil {
		return metric.HealthReport{}, err
	}
	return BuildHealthReport(snapshot, config.Version, time.Now()), nil
}

// DebugMemory 对比原始内存数据与处理后的结果
func (s *MetricsService) DebugMemory(ctx context.Context) (metric.MemoryDebug, error) {
	raw, processed, err := s.source.Memory(ctx)
	if err != nil {
		return metric.MemoryDebug{}, err
	}
	snapshot, err := s.source.Collect(ctx)
	if err != nil {
		return metric.MemoryDebug{}, err
	}
	s.registry.Update(snapshot)

	return metric.MemoryDebug{
		Raw: metric.RawMemoryView{
			Total:           raw.Total,
			Used:            raw.Used,
			Free:            raw.Free,
			Available:       raw.Available,
			AvailableExists: raw.Available != nil,
		},
		ProcessedMemory:  processed,
		FinalMetrics:     snapshot.Memory,
		PrometheusValues: s.registry.MemoryValues(snapshot.Hostname),
	}, nil
}

// RecordError 累加错误计数
func (s *MetricsService) RecordError(kind string) {
	s.registry.IncrementError(kind)
}

// BuildSummary 由快照计算摘要
func BuildSummary(s protocol.HostSnapshot, now time.Time) metric.Summary {
	return metric.Summary{
		Timestamp: now.UTC().Format(time.RFC3339),
		Hostname:  s.Hostname,
		Status:    metric.StatusHealthy,
		Summary: metric.SummaryValues{
			CPUUsagePercent:        round2(s.CPU.UsagePercent),
			MemoryUsagePercent:     round2(memoryUsedPercent(s.Memory)),
			MemoryAvailablePercent: round2(percent(s.Memory.AvailableBytes, s.Memory.TotalBytes)),
			MemoryAvailableBytes:   s.Memory.AvailableBytes,
			MemoryTotalBytes:       s.Memory.TotalBytes,
			NetworkActive:          s.Network.RxBytesPerSec > 0 || s.Network.TxBytesPerSec > 0,
			UptimeHours:            round2(float64(s.UptimeSeconds) / 3600),
			LoadAverage1m:          s.LoadAverage[0],
		},
	}
}

// BuildHealthReport 由快照计算健康状态
func BuildHealthReport(s protocol.HostSnapshot, version string, now time.Time) metric.HealthReport {
	usedPercent := memoryUsedPercent(s.Memory)

	checks := metric.HealthChecks{
		Memory: check(s.Memory.TotalBytes > 0 && usedPercent < 90),
		CPU:    check(s.CPU.UsagePercent < 80),
		Load:   check(s.LoadAverage[0] < float64(s.CPU.Cores)*2),
	}

	status := metric.StatusHealthy
	if !checks.Healthy() {
		status = metric.StatusDegraded
	}

	return metric.HealthReport{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    s.UptimeSeconds,
		Hostname:  s.Hostname,
		Version:   version,
		Checks:    checks,
		MemoryDetails: metric.MemoryDetails{
			TotalBytes:     s.Memory.TotalBytes,
			AvailableBytes: s.Memory.AvailableBytes,
			UsedBytes:      s.Memory.UsedBytes,
			FreeBytes:      s.Memory.FreeBytes,
			UsagePercent:   usedPercent,
		},
	}
}

// memoryUsedPercent 以 total-available 计算使用率，total 为 0 时返回 0
func memoryUsedPercent(m protocol.MemoryInfo) float64 {
	if m.AvailableBytes >= m.TotalBytes {
		return 0
	}
	return percent(m.TotalBytes-m.AvailableBytes, m.TotalBytes)
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func check(ok bool) string {
	if ok {
		return metric.CheckOK
	}
	return metric.CheckWarning
}
