package metric

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ContentType Prometheus 文本格式
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// 错误类型标签
const (
	ErrorKindTick             = "tick"
	ErrorKindRemoteServer     = "remote_server"
	ErrorKindPrometheusServe  = "prometheus_serve"
	ErrorKindPrometheusUpdate = "prometheus_update"
	ErrorKindLocalMetrics     = "local_metrics"
	ErrorKindGeneral          = "general"
	ErrorKindManualTest       = "manual_test"
)

// ErrEmptyRegistry 渲染结果为空
var ErrEmptyRegistry = errors.New("no metrics available")

var loadPeriods = [3]string{"1m", "5m", "15m"}

type options struct {
	runtime  bool
	gatherer prometheus.Gatherer
}

// Option 注册表选项
type Option func(*options)

// WithoutRuntimeCollectors 不注册 Go 运行时与进程指标
func WithoutRuntimeCollectors() Option {
	return func(o *options) { o.runtime = false }
}

// WithGatherer 使用指定的 Gatherer 渲染
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// Registry 进程内唯一的指标注册表
// 所有写入都是单次原子操作，可以与 Render 并发
type Registry struct {
	hostname string
	gatherer prometheus.Gatherer

	cpuUsage        *prometheus.GaugeVec
	memoryUsage     *prometheus.GaugeVec
	memoryAvailable *prometheus.GaugeVec
	networkTraffic  *prometheus.GaugeVec
	networkSpeed    *prometheus.GaugeVec
	uptime          *prometheus.GaugeVec
	loadAverage     *prometheus.GaugeVec

	apiRequests     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	collectionErrors   *prometheus.CounterVec
	serverConnectivity *prometheus.GaugeVec
}

// NewRegistry 创建指标注册表，hostname 用于错误计数与连通性指标
func NewRegistry(hostname, version string, opts ...Option) *Registry {
	o := &options{runtime: true}
	for _, opt := range opts {
		opt(o)
	}

	reg := prometheus.NewRegistry()
	registerer := prometheus.WrapRegistererWith(prometheus.Labels{
		"app":     "system-metrics-collector-app",
		"version": version,
	}, reg)

	r := &Registry{
		hostname: hostname,
		gatherer: reg,
		cpuUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		}, []string{"hostname"}),
		memoryUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		}, []string{"hostname", "type"}),
		memoryAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_memory_available_bytes",
			Help: "Available memory in bytes",
		}, []string{"hostname"}),
		networkTraffic: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_network_bytes_total",
			Help: "Total network traffic in bytes",
		}, []string{"hostname", "direction"}),
		networkSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_network_speed_bytes_per_second",
			Help: "Current network speed in bytes per second",
		}, []string{"hostname", "direction"}),
		uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_uptime_seconds",
			Help: "System uptime in seconds",
		}, []string{"hostname"}),
		loadAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_load_average",
			Help: "System load average",
		}, []string{"hostname", "period"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		}, []string{"endpoint", "method", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"endpoint", "method"}),
		collectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of metrics collection errors",
		}, []string{"type", "hostname"}),
		serverConnectivity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "server_connectivity_status",
			Help: "Server connectivity status (1=up, 0=down)",
		}, []string{"hostname", "server_url"}),
	}

	registerer.MustRegister(
		r.cpuUsage,
		r.memoryUsage,
		r.memoryAvailable,
		r.networkTraffic,
		r.networkSpeed,
		r.uptime,
		r.loadAverage,
		r.apiRequests,
		r.requestDuration,
		r.collectionErrors,
		r.serverConnectivity,
	)
	if o.runtime {
		registerer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if o.gatherer != nil {
		r.gatherer = o.gatherer
	}
	return r
}

// Update 用最新快照覆盖主机指标
func (r *Registry) Update(s protocol.HostSnapshot) {
	host := s.Hostname

	r.cpuUsage.WithLabelValues(host).Set(s.CPU.UsagePercent)

	r.memoryUsage.WithLabelValues(host, "total").Set(float64(s.Memory.TotalBytes))
	r.memoryUsage.WithLabelValues(host, "used").Set(float64(s.Memory.UsedBytes))
	r.memoryUsage.WithLabelValues(host, "free").Set(float64(s.Memory.FreeBytes))
	r.memoryUsage.WithLabelValues(host, "available").Set(float64(s.Memory.AvailableBytes))
	r.memoryAvailable.WithLabelValues(host).Set(float64(s.Memory.AvailableBytes))

	r.networkTraffic.WithLabelValues(host, "rx").Set(float64(s.Network.RxBytesTotal))
	r.networkTraffic.WithLabelValues(host, "tx").Set(float64(s.Network.TxBytesTotal))
	r.networkSpeed.WithLabelValues(host, "rx").Set(s.Network.RxBytesPerSec)
	r.networkSpeed.WithLabelValues(host, "tx").Set(s.Network.TxBytesPerSec)

	r.uptime.WithLabelValues(host).Set(float64(s.UptimeSeconds))

	for i, period := range loadPeriods {
		r.loadAverage.WithLabelValues(host, period).Set(s.LoadAverage[i])
	}
}

// IncrementError 按错误类型累加错误计数
func (r *Registry) IncrementError(kind string) {
	r.collectionErrors.WithLabelValues(kind, r.hostname).Inc()
}

// ErrorCount 读取指定错误类型的当前计数
func (r *Registry) ErrorCount(kind string) float64 {
	m := &dto.Metric{}
	if err := r.collectionErrors.WithLabelValues(kind, r.hostname).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// SetPeerConnectivity 记录对端节点连通状态
func (r *Registry) SetPeerConnectivity(url string, up bool) {
	value := 0.0
	if up {
		value = 1
	}
	r.serverConnectivity.WithLabelValues(r.hostname, url).Set(value)
}

// ObserveRequest 记录一次 API 请求
func (r *Registry) ObserveRequest(endpoint, method string, status int, duration time.Duration) {
	r.apiRequests.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// MemoryValues 读取指定主机当前写入的内存指标
func (r *Registry) MemoryValues(host string) map[string]float64 {
	values := map[string]float64{
		"available_set": gaugeValue(r.memoryAvailable.WithLabelValues(host)),
	}
	for _, kind := range []string{"total", "used", "free"} {
		values[kind+"_set"] = gaugeValue(r.memoryUsage.WithLabelValues(host, kind))
	}
	return values
}

// Render 渲染 Prometheus 文本格式
func (r *Registry) Render() (string, error) {
	families, err := r.gatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyRegistry
	}
	return text, nil
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
