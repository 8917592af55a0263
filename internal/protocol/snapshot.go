package protocol

// HostSnapshot 单次采集得到的主机资源快照
// 本机 /local-metrics 与对端节点之间使用同一结构传输
type HostSnapshot struct {
	Hostname      string      `json:"hostname" validate:"required"` // 主机名（唯一标识）
	OSType        string      `json:"osType"`                       // 操作系统类型及版本
	CPU           CPUInfo     `json:"cpu"`
	Memory        MemoryInfo  `json:"memory"`
	Network       NetworkInfo `json:"network"`
	UptimeSeconds uint64      `json:"uptimeSeconds"`       // 运行时间(秒)
	LoadAverage   [3]float64  `json:"loadAverage"`         // 1m / 5m / 15m
	Timestamp     int64       `json:"timestamp,omitempty"` // 采集时间(毫秒)
}

// CPUInfo CPU 数据
type CPUInfo struct {
	Model        string  `json:"model"`
	Cores        int     `json:"cores" validate:"gte=0"`
	UsagePercent float64 `json:"usagePercent" validate:"gte=0,lte=100"`
}

// MemoryInfo 内存数据(字节)
type MemoryInfo struct {
	TotalBytes     uint64 `json:"totalBytes" validate:"gt=0"`
	UsedBytes      uint64 `json:"usedBytes"`
	FreeBytes      uint64 `json:"freeBytes"`
	AvailableBytes uint64 `json:"availableBytes"` // 不会为空，缺失时使用 FreeBytes
}

// NetworkInfo 所有网卡的流量汇总
type NetworkInfo struct {
	RxBytesTotal  uint64  `json:"rxBytesTotal"`  // 累计接收字节
	TxBytesTotal  uint64  `json:"txBytesTotal"`  // 累计发送字节
	RxBytesPerSec float64 `json:"rxBytesPerSec"` // 接收速率(字节/秒)
	TxBytesPerSec float64 `json:"txBytesPerSec"` // 发送速率(字节/秒)
}

// WithHostname 返回主机名被替换后的副本
func (s HostSnapshot) WithHostname(hostname string) HostSnapshot {
	s.Hostname = hostname
	return s
}
