package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ErrProvider 主机数据来源调用失败
var ErrProvider = errors.New("host provider failed")

// SnapshotCollector 主机快照采集器
type SnapshotCollector struct {
	logger   *zap.Logger
	provider HostProvider
}

// NewSnapshotCollector 创建快照采集器
func NewSnapshotCollector(logger *zap.Logger, provider HostProvider) *SnapshotCollector {
	return &SnapshotCollector{
		logger:   logger,
		provider: provider,
	}
}

// Collect 并发采集所有子项，任意一项失败即整体失败
func (c *SnapshotCollector) Collect(ctx context.Context) (protocol.HostSnapshot, error) {
	var (
		rawCPU   RawCPU
		usage    float64
		memory   protocol.MemoryInfo
		network  protocol.NetworkInfo
		rawHost  RawHost
		loadAvgs [3]float64
	)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		rawCPU, err = c.provider.CPU(ctx)
		return wrapProvider("cpu", err)
	})
	p.Go(func(ctx context.Context) error {
		var err error
		usage, err = c.provider.CPULoad(ctx)
		return wrapProvider("cpu load", err)
	})
	p.Go(func(ctx context.Context) error {
		var err error
		_, memory, err = c.Memory(ctx)
		return err
	})
	p.Go(func(ctx context.Context) error {
		ifaces, err := c.provider.Network(ctx)
		if err != nil {
			return wrapProvider("network", err)
		}
		network = SumInterfaces(ifaces)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		rawHost, err = c.provider.Host(ctx)
		return wrapProvider("host", err)
	})
	p.Go(func(ctx context.Context) error {
		var err error
		loadAvgs, err = c.provider.LoadAverage(ctx)
		return wrapProvider("load", err)
	})
	if err := p.Wait(); err != nil {
		return protocol.HostSnapshot{}, err
	}

	return protocol.HostSnapshot{
		Hostname: rawHost.Hostname,
		OSType:   strings.TrimSpace(rawHost.OS + " " + rawHost.KernelVersion),
		CPU: protocol.CPUInfo{
			Model:        strings.TrimSpace(rawCPU.Manufacturer + " " + rawCPU.Brand),
			Cores:        rawCPU.Cores,
			UsagePercent: usage,
		},
		Memory:        memory,
		Network:       network,
		UptimeSeconds: rawHost.Uptime,
		LoadAverage:   loadAvgs,
		Timestamp:     time.Now().UnixMilli(),
	}, nil
}

// Memory 返回原始内存数据以及应用可用内存回退规则后的结果
func (c *SnapshotCollector) Memory(ctx context.Context) (RawMemory, protocol.MemoryInfo, error) {
	raw, err := c.provider.Memory(ctx)
	if err != nil {
		return RawMemory{}, protocol.MemoryInfo{}, wrapProvider("memory", err)
	}

	info := protocol.MemoryInfo{
		TotalBytes: raw.Total,
		UsedBytes:  raw.Used,
		FreeBytes:  raw.Free,
	}
	if raw.Available == nil || *raw.Available == 0 {
		info.AvailableBytes = raw.Free
		c.logger.Debug("可用内存缺失，使用空闲内存代替",
			zap.Uint64("free", raw.Free),
			zap.Bool("availableExists", raw.Available != nil))
	} else {
		info.AvailableBytes = *raw.Available
	}
	return raw, info, nil
}

// SumInterfaces 汇总所有网卡的流量与速率，缺失的速率按 0 计
func SumInterfaces(ifaces []RawInterface) protocol.NetworkInfo {
	var total protocol.NetworkInfo
	for _, iface := range ifaces {
		total.RxBytesTotal += iface.RxBytes
		total.TxBytesTotal += iface.TxBytes
		if iface.RxSec != nil {
			total.RxBytesPerSec += *iface.RxSec
		}
		if iface.TxSec != nil {
			total.TxBytesPerSec += *iface.TxSec
		}
	}
	return total
}

func wrapProvider(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, what, err)
}
