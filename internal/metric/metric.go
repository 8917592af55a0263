package metric

import "github.com/dushixiang/hostpulse/internal/protocol"

// Summary 指标摘要（用于 /metrics/summary 响应）
type Summary struct {
	Timestamp string        `json:"timestamp"` // RFC3339
	Hostname  string        `json:"hostname"`
	Status    string        `json:"status"`
	Summary   SummaryValues `json:"summary"`
}

// SummaryValues 由快照推导出的百分比与标志位，保留两位小数
type SummaryValues struct {
	CPUUsagePercent        float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent     float64 `json:"memory_usage_percent"`     // (total-available)/total
	MemoryAvailablePercent float64 `json:"memory_available_percent"` // available/total
	MemoryAvailableBytes   uint64  `json:"memory_available_bytes"`
	MemoryTotalBytes       uint64  `json:"memory_total_bytes"`
	NetworkActive          bool    `json:"network_active"` // 任一方向速率大于 0
	UptimeHours            float64 `json:"uptime_hours"`
	LoadAverage1m          float64 `json:"load_average_1m"`
}

// 健康检查结果
const (
	CheckOK      = "ok"
	CheckWarning = "warning"

	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecks 各项检查结果
type HealthChecks struct {
	Memory string `json:"memory"` // 内存使用率 < 90%
	CPU    string `json:"cpu"`    // CPU 使用率 < 80%
	Load   string `json:"load"`   // 1 分钟负载 < 2 × 核心数
}

// Healthy 所有检查均通过
func (c HealthChecks) Healthy() bool {
	return c.Memory == CheckOK && c.CPU == CheckOK && c.Load == CheckOK
}

// MemoryDetails 内存明细
type MemoryDetails struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	FreeBytes      uint64  `json:"free_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// HealthReport 详细健康检查响应
type HealthReport struct {
	Status        string        `json:"status"`
	Timestamp     string        `json:"timestamp"`
	Uptime        uint64        `json:"uptime"`
	Hostname      string        `json:"hostname"`
	Version       string        `json:"version"`
	Checks        HealthChecks  `json:"checks"`
	MemoryDetails MemoryDetails `json:"memory_details"`
}

// RawMemoryView 数据来源返回的原始内存字段
type RawMemoryView struct {
	Total           uint64  `json:"total"`
	Used            uint64  `json:"used"`
	Free            uint64  `json:"free"`
	Available       *uint64 `json:"available"`
	AvailableExists bool    `json:"availableExists"`
}

// MemoryDebug 用于排查可用内存回退逻辑（/debug/memory）
type MemoryDebug struct {
	Raw              RawMemoryView       `json:"raw_provider"`
	ProcessedMemory  protocol.MemoryInfo `json:"processed_memory"`
	FinalMetrics     protocol.MemoryInfo `json:"final_metrics"`
	PrometheusValues map[string]float64  `json:"prometheus_values"`
}
