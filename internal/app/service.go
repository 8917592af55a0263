package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/logger"
	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// program 实现 service.Interface
type program struct {
	cfg    config.AppConfig
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// Start 启动服务，不阻塞
func (p *program) Start(s service.Service) error {
	p.logger.Info("hostpulse 服务启动中", zap.String("addr", p.cfg.Server.Addr()))

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := New(p.cfg, p.logger).Run(ctx); err != nil {
			p.logger.Error("服务运行出错", zap.Error(err))
		}
	}()
	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	p.logger.Info("hostpulse 服务停止中")
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	p.logger.Info("hostpulse 服务已停止")
	return nil
}

// ServiceManager 系统服务管理器
type ServiceManager struct {
	program *program
	service service.Service
}

// NewServiceManager 创建服务管理器，args 为服务管理器拉起进程时的命令行参数
func NewServiceManager(cfg config.AppConfig, args []string) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	svcConfig := &service.Config{
		Name:        "hostpulse",
		DisplayName: "Hostpulse",
		Description: "主机指标采集与暴露服务",
		Arguments:   args,
		Executable:  execPath,
		Option: service.KeyValue{
			// systemd
			"Restart":    "always",
			"RestartSec": "10",
			"KillMode":   "process",

			// windows
			"OnFailure":    "restart",
			"RestartDelay": 10000,

			// launchd
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	prg := &program{
		cfg:    cfg,
		logger: logger.New(cfg.Log, Hostname()),
	}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{program: prg, service: s}, nil
}

// Actions 支持的服务控制动作，顺序与 service.ControlAction 一致
func Actions() []string {
	actions := service.ControlAction
	return actions[:]
}

// Control 执行服务控制动作；卸载前先尝试停止
func (m *ServiceManager) Control(action string) error {
	if action == "uninstall" {
		_ = m.service.Stop()
	}
	return service.Control(m.service, action)
}

var statusText = map[service.Status]string{
	service.StatusUnknown: "unknown",
	service.StatusRunning: "running",
	service.StatusStopped: "stopped",
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}
	return StatusText(status), nil
}

// StatusText 服务状态描述
func StatusText(status service.Status) string {
	if text, ok := statusText[status]; ok {
		return text
	}
	return fmt.Sprintf("status(%d)", status)
}

// Run 运行服务；由服务管理器拉起时交给 service.Run，否则前台运行直到收到中断信号
func (m *ServiceManager) Run() error {
	if !service.Interactive() {
		return m.service.Run()
	}
	defer func() { _ = m.program.logger.Sync() }()

	m.program.logger.Info("配置加载成功",
		zap.String("addr", m.program.cfg.Server.Addr()),
		zap.Duration("collect_interval", m.program.cfg.Collect.Interval),
		zap.Int("peers", len(m.program.cfg.Peers)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := New(m.program.cfg, m.program.logger).Run(ctx); err != nil {
		return err
	}
	m.program.logger.Info("收到中断信号，服务已停止")
	return nil
}
