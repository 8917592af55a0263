package collector

import "context"

// HostProvider 主机原始数据来源
type HostProvider interface {
	CPU(ctx context.Context) (RawCPU, error)
	CPULoad(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (RawMemory, error)
	Network(ctx context.Context) ([]RawInterface, error)
	Host(ctx context.Context) (RawHost, error)
	LoadAverage(ctx context.Context) ([3]float64, error)
}

// RawCPU CPU 静态信息
type RawCPU struct {
	Manufacturer string
	Brand        string
	Cores        int
}

// RawMemory 内存原始数据
// Available 为 nil 表示当前系统不提供该字段
type RawMemory struct {
	Total     uint64
	Used      uint64
	Free      uint64
	Available *uint64
}

// RawInterface 单个网卡的计数
// 速率为 nil 表示尚无法计算（例如首次采样）
type RawInterface struct {
	Name    string
	RxBytes uint64
	TxBytes uint64
	RxSec   *float64
	TxSec   *float64
}

// RawHost 主机信息
type RawHost struct {
	Hostname      string
	OS            string
	KernelVersion string
	Uptime        uint64
}
