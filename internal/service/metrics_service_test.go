package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dushixiang/hostpulse/internal/collector"
	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

type fakeSource struct {
	snapshot protocol.HostSnapshot
	raw      collector.RawMemory
	err      error
}

func (f *fakeSource) Collect(ctx context.Context) (protocol.HostSnapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeSource) Memory(ctx context.Context) (collector.RawMemory, protocol.MemoryInfo, error) {
	return f.raw, f.snapshot.Memory, f.err
}

func healthySnapshot() protocol.HostSnapshot {
	return protocol.HostSnapshot{
		Hostname: "web-1",
		CPU:      protocol.CPUInfo{Model: "Xeon", Cores: 4, UsagePercent: 20.456},
		Memory: protocol.MemoryInfo{
			TotalBytes:     1000,
			UsedBytes:      500,
			FreeBytes:      300,
			AvailableBytes: 500,
		},
		Network:       protocol.NetworkInfo{RxBytesPerSec: 0, TxBytesPerSec: 1},
		UptimeSeconds: 5400,
		LoadAverage:   [3]float64{1, 0.5, 0.2},
	}
}

func TestBuildSummary(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	summary := BuildSummary(healthySnapshot(), now)

	if summary.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("时间格式错误: %s", summary.Timestamp)
	}
	v := summary.Summary
	if v.CPUUsagePercent != 20.46 {
		t.Errorf("CPU 使用率应保留两位小数，实际 %v", v.CPUUsagePercent)
	}
	if v.MemoryUsagePercent != 50 || v.MemoryAvailablePercent != 50 {
		t.Errorf("内存百分比错误: %v %v", v.MemoryUsagePercent, v.MemoryAvailablePercent)
	}
	if v.UptimeHours != 1.5 {
		t.Errorf("运行时间应为 1.5 小时，实际 %v", v.UptimeHours)
	}
	if !v.NetworkActive {
		t.Error("发送速率大于 0 时网络应为活跃")
	}
	if v.LoadAverage1m != 1 {
		t.Errorf("1 分钟负载错误: %v", v.LoadAverage1m)
	}
}

func TestBuildSummaryZeroTotal(t *testing.T) {
	s := healthySnapshot()
	s.Memory = protocol.MemoryInfo{}
	s.Network = protocol.NetworkInfo{}

	v := BuildSummary(s, time.Now()).Summary
	if v.MemoryUsagePercent != 0 || v.MemoryAvailablePercent != 0 {
		t.Errorf("总内存为 0 时百分比应为 0: %+v", v)
	}
	if v.NetworkActive {
		t.Error("速率为 0 时网络不应活跃")
	}
}

func TestBuildHealthReport(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*protocol.HostSnapshot)
		status string
		failed string
	}{
		{"全部正常", func(s *protocol.HostSnapshot) {}, metric.StatusHealthy, ""},
		{"CPU 过高", func(s *protocol.HostSnapshot) { s.CPU.UsagePercent = 85 }, metric.StatusDegraded, "cpu"},
		{"内存过高", func(s *protocol.HostSnapshot) { s.Memory.AvailableBytes = 50 }, metric.StatusDegraded, "memory"},
		{"负载过高", func(s *protocol.HostSnapshot) { s.LoadAverage[0] = 8 }, metric.StatusDegraded, "load"},
		{"总内存为 0", func(s *protocol.HostSnapshot) { s.Memory = protocol.MemoryInfo{} }, metric.StatusDegraded, "memory"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := healthySnapshot()
			tc.mutate(&s)
			report := BuildHealthReport(s, "1.0.0", time.Now())

			if report.Status != tc.status {
				t.Errorf("状态应为 %s，实际 %s", tc.status, report.Status)
			}
			got := map[string]string{
				"cpu":    report.Checks.CPU,
				"memory": report.Checks.Memory,
				"load":   report.Checks.Load,
			}
			for name, result := range got {
				want := metric.CheckOK
				if name == tc.failed {
					want = metric.CheckWarning
				}
				if result != want {
					t.Errorf("检查项 %s 应为 %s，实际 %s", name, want, result)
				}
			}
		})
	}
}

func newTestService(source SnapshotSource, registry *metric.Registry) *MetricsService {
	cfg := config.Default()
	return NewMetricsService(zap.NewNop(), cfg, source, registry, NewPeerAggregator(zap.NewNop(), registry))
}

func TestPrometheus(t *testing.T) {
	registry := metric.NewRegistry("web-1", "1.0.0", metric.WithoutRuntimeCollectors())
	svc := newTestService(&fakeSource{snapshot: healthySnapshot()}, registry)

	text, err := svc.Prometheus(context.Background())
	if err != nil {
		t.Fatalf("Prometheus() 失败: %v", err)
	}
	if !strings.Contains(text, "system_cpu_usage_percent") {
		t.Error("渲染前应先刷新注册表")
	}
}

func TestPrometheusRefreshFailureStillRenders(t *testing.T) {
	registry := metric.NewRegistry("web-1", "1.0.0", metric.WithoutRuntimeCollectors())
	source := &fakeSource{snapshot: healthySnapshot()}
	svc := newTestService(source, registry)
	svc.Refresh(context.Background())

	source.err = errors.New("provider down")
	text, err := svc.Prometheus(context.Background())
	if err != nil {
		t.Fatalf("刷新失败时仍应渲染旧值: %v", err)
	}
	if !strings.Contains(text, `type="prometheus_update"`) {
		t.Error("刷新失败应累加 prometheus_update 错误")
	}
}

func TestPrometheusEmptyRender(t *testing.T) {
	empty := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) { return nil, nil })
	registry := metric.NewRegistry("web-1", "1.0.0", metric.WithGatherer(empty))
	svc := newTestService(&fakeSource{snapshot: healthySnapshot()}, registry)

	if _, err := svc.Prometheus(context.Background()); !errors.Is(err, metric.ErrEmptyRegistry) {
		t.Errorf("应返回 ErrEmptyRegistry，实际 %v", err)
	}
	if got := registry.ErrorCount(metric.ErrorKindPrometheusServe); got != 1 {
		t.Errorf("prometheus_serve 错误应为 1，实际 %v", got)
	}
}

func TestDebugMemory(t *testing.T) {
	registry := metric.NewRegistry("web-1", "1.0.0", metric.WithoutRuntimeCollectors())
	s := healthySnapshot()
	source := &fakeSource{
		snapshot: s,
		raw:      collector.RawMemory{Total: 1000, Used: 500, Free: 500},
	}
	svc := newTestService(source, registry)

	debug, err := svc.DebugMemory(context.Background())
	if err != nil {
		t.Fatalf("DebugMemory() 失败: %v", err)
	}
	if debug.Raw.AvailableExists || debug.Raw.Available != nil {
		t.Error("原始数据中可用内存应为缺失")
	}
	if debug.PrometheusValues["available_set"] != float64(s.Memory.AvailableBytes) {
		t.Errorf("注册表中的可用内存错误: %v", debug.PrometheusValues)
	}
}
