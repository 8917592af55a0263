package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// GopsutilProvider 基于 gopsutil 的主机数据来源
type GopsutilProvider struct {
	mu       sync.Mutex
	lastNet  map[string]net.IOCountersStat
	lastTime time.Time
}

// NewGopsutilProvider 创建 gopsutil 数据来源
func NewGopsutilProvider() *GopsutilProvider {
	return &GopsutilProvider{
		lastNet: make(map[string]net.IOCountersStat),
	}
}

// CPU 采集 CPU 型号与逻辑核心数
func (p *GopsutilProvider) CPU(ctx context.Context) (RawCPU, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return RawCPU{}, err
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return RawCPU{}, err
	}

	raw := RawCPU{Cores: cores}
	if len(infos) > 0 {
		raw.Manufacturer = infos[0].VendorID
		raw.Brand = infos[0].ModelName
	}
	return raw, nil
}

// CPULoad 自上次调用以来的 CPU 使用率
func (p *GopsutilProvider) CPULoad(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// Memory 采集内存，Available 为 0 时视为不支持
func (p *GopsutilProvider) Memory(ctx context.Context) (RawMemory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return RawMemory{}, err
	}

	raw := RawMemory{
		Total: vm.Total,
		Used:  vm.Used,
		Free:  vm.Free,
	}
	if vm.Available > 0 {
		available := vm.Available
		raw.Available = &available
	}
	return raw, nil
}

// Network 采集每个网卡的累计流量，并根据上次采样计算速率
func (p *GopsutilProvider) Network(ctx context.Context) ([]RawInterface, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastTime).Seconds()

	result := make([]RawInterface, 0, len(counters))
	current := make(map[string]net.IOCountersStat, len(counters))
	for _, c := range counters {
		iface := RawInterface{
			Name:    c.Name,
			RxBytes: c.BytesRecv,
			TxBytes: c.BytesSent,
		}
		// 计数器回绕或网卡重建时不计算速率
		if last, ok := p.lastNet[c.Name]; ok && elapsed > 0 &&
			c.BytesRecv >= last.BytesRecv && c.BytesSent >= last.BytesSent {
			rx := float64(c.BytesRecv-last.BytesRecv) / elapsed
			tx := float64(c.BytesSent-last.BytesSent) / elapsed
			iface.RxSec = &rx
			iface.TxSec = &tx
		}
		current[c.Name] = c
		result = append(result, iface)
	}

	p.lastNet = current
	p.lastTime = now
	return result, nil
}

// Host 采集主机名、系统与运行时间
func (p *GopsutilProvider) Host(ctx context.Context) (RawHost, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return RawHost{}, fmt.Errorf("host info: %w", err)
	}
	return RawHost{
		Hostname:      info.Hostname,
		OS:            info.OS,
		KernelVersion: info.KernelVersion,
		Uptime:        info.Uptime,
	}, nil
}

// LoadAverage 采集 1/5/15 分钟负载
func (p *GopsutilProvider) LoadAverage(ctx context.Context) ([3]float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{avg.Load1, avg.Load5, avg.Load15}, nil
}
