package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	Version            = "1.0.0"
	DefaultPort        = 3000
	DefaultInterval    = 15 * time.Second
	DefaultPeerTimeout = 5 * time.Second
)

// AppConfig 应用配置，启动后不再变化
type AppConfig struct {
	Server      ServerConfig  `yaml:"server"`
	Collect     CollectConfig `yaml:"collect"`
	Peers       []PeerTarget  `yaml:"peers" validate:"dive"`
	PeerTimeout time.Duration `yaml:"peerTimeout" validate:"gt=0"` // 单个对端请求超时
	Log         LogConfig     `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// CollectConfig 定时采集配置
type CollectConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gte=1s"` // cron @every 的最小粒度为 1s
}

// PeerTarget 对端节点的 /local-metrics 地址
type PeerTarget struct {
	URL string `yaml:"url" validate:"required,http_url"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`      // 全部日志
	ErrorFile  string `yaml:"errorFile"` // 仅 error 级别
	MaxSize    int    `yaml:"maxSize"`   // MB
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"` // 天
	Compress   bool   `yaml:"compress"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default 默认配置
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultPort,
		},
		Collect: CollectConfig{
			Interval: DefaultInterval,
		},
		PeerTimeout: DefaultPeerTimeout,
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load 依次应用默认值、配置文件（可选）和环境变量，然后校验
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	c.Server.Port = envInt("PORT", c.Server.Port)
	c.Server.Host = env("HOST", c.Server.Host)
	c.Collect.Interval = envDuration("COLLECT_INTERVAL", c.Collect.Interval)
	c.PeerTimeout = envDuration("PEER_TIMEOUT", c.PeerTimeout)
	c.Log.Level = strings.ToLower(env("LOG_LEVEL", c.Log.Level))
	c.Log.File = env("LOG_FILE", c.Log.File)
	c.Log.ErrorFile = env("LOG_ERROR_FILE", c.Log.ErrorFile)

	if urls := strings.TrimSpace(os.Getenv("PEER_URLS")); urls != "" {
		c.Peers = ParsePeers(urls)
	}
}

// Validate 校验配置
func (c AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParsePeers 解析逗号分隔的对端地址列表，保持原有顺序
func ParsePeers(s string) []PeerTarget {
	var peers []PeerTarget
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		peers = append(peers, PeerTarget{URL: part})
	}
	return peers
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
