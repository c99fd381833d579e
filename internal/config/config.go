// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括合约参数、行情连接、输出设置等。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Symbols 用户配置的合约列表
	Symbols []SymbolConfig `yaml:"symbols"`
	// Metadata 元数据 API 配置
	Metadata MetadataConfig `yaml:"metadata"`
	// WS WebSocket 连接配置
	WS WSConfig `yaml:"ws"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// SymbolConfig 单个合约的配置
// 增量与精度是解释原始价格/数量的参考数据，必须显式给出
type SymbolConfig struct {
	// Input 交易所侧合约标识，如 tBTCUSD
	Input string `yaml:"input"`
	// Canon 统一合约标识，如 BTCUSD；为空时由 Input 去除前缀派生
	Canon string `yaml:"canon"`
	// MaxDepth 每侧保留的最优档位数量上限，0 表示不限制
	MaxDepth int `yaml:"max_depth"`
	// PriceIncrement 最小价格变动单位（必须为正数）
	PriceIncrement float64 `yaml:"price_increment"`
	// QuantityIncrement 最小数量变动单位（必须为正数）
	QuantityIncrement float64 `yaml:"quantity_increment"`
	// PriceDecimals 价格展示精度（小数位数，不能为负）
	PriceDecimals int `yaml:"price_decimals"`
	// QuantityDecimals 数量展示精度（小数位数，不能为负）
	QuantityDecimals int `yaml:"quantity_decimals"`
}

// CanonOrDerived 返回统一合约标识
// Canon 为空时从 Input 派生：去掉交易所前缀 t/f
func (s *SymbolConfig) CanonOrDerived() string {
	if s.Canon != "" {
		return s.Canon
	}
	input := s.Input
	if len(input) > 1 && (input[0] == 't' || input[0] == 'f') {
		return input[1:]
	}
	return input
}

// MetadataConfig 元数据 API 配置
type MetadataConfig struct {
	// URL 合约元数据 API 地址
	URL string `yaml:"url"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// WSConfig WebSocket 连接配置
type WSConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs 心跳响应超时（毫秒）
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// BookLen 订阅的逐笔订单簿长度: 1, 25, 100, 250
	BookLen int `yaml:"book_len"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// SnapshotsEnabled 是否输出订单簿快照文件
	SnapshotsEnabled bool `yaml:"snapshots_enabled"`
	// SnapshotIntervalMs 快照输出间隔（毫秒）
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms"`
	// SnapshotDepth 快照输出的档位深度，0 表示全部保留档位
	SnapshotDepth int `yaml:"snapshot_depth"`
	// MetricsEnabled 是否输出指标文件
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsIntervalMs 指标输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析 YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	cfg.setDefaults()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	// 应用默认值
	if c.App.Name == "" {
		c.App.Name = "mbo-book-cache"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// 元数据 API 默认超时
	if c.Metadata.TimeoutMs == 0 {
		c.Metadata.TimeoutMs = 10000 // 10 秒
	}

	// WebSocket 默认配置
	if c.WS.PingIntervalMs == 0 {
		c.WS.PingIntervalMs = 15000 // 15 秒
	}
	if c.WS.PongTimeoutMs == 0 {
		c.WS.PongTimeoutMs = 10000 // 10 秒
	}
	if c.WS.ReadTimeoutMs == 0 {
		c.WS.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.WS.BookLen == 0 {
		c.WS.BookLen = 100
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.SnapshotIntervalMs == 0 {
		c.Output.SnapshotIntervalMs = 5000 // 5 秒
	}
	if c.Output.MetricsIntervalMs == 0 {
		c.Output.MetricsIntervalMs = 10000 // 10 秒
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证合约配置
	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: 至少需要配置一个合约")
	}
	for i, sym := range c.Symbols {
		if sym.Input == "" {
			errs = append(errs, fmt.Sprintf("symbols[%d].input: 合约标识不能为空", i))
		}
		if sym.PriceIncrement <= 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d].price_increment: 价格增量必须为正数，当前值: %v", i, sym.PriceIncrement))
		}
		if sym.QuantityIncrement <= 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d].quantity_increment: 数量增量必须为正数，当前值: %v", i, sym.QuantityIncrement))
		}
		if sym.PriceDecimals < 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d].price_decimals: 价格精度不能为负数", i))
		}
		if sym.QuantityDecimals < 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d].quantity_decimals: 数量精度不能为负数", i))
		}
		if sym.MaxDepth < 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d].max_depth: 深度上限不能为负数", i))
		}
	}

	// 验证 WebSocket 配置
	if c.WS.URL == "" {
		errs = append(errs, "ws.url: WebSocket 地址不能为空")
	}
	switch c.WS.BookLen {
	case 1, 25, 100, 250:
	default:
		errs = append(errs, fmt.Sprintf("ws.book_len: 订单簿长度必须为 1/25/100/250，当前值: %d", c.WS.BookLen))
	}

	// 验证输出配置
	if c.Output.SnapshotIntervalMs <= 0 {
		errs = append(errs, "output.snapshot_interval_ms: 快照间隔必须为正数")
	}
	if c.Output.MetricsIntervalMs <= 0 {
		errs = append(errs, "output.metrics_interval_ms: 指标间隔必须为正数")
	}
	if c.Output.SnapshotDepth < 0 {
		errs = append(errs, "output.snapshot_depth: 快照深度不能为负数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// GetSymbolInputs 获取所有配置的合约标识
// 返回: 交易所侧合约标识列表
func (c *Config) GetSymbolInputs() []string {
	inputs := make([]string, len(c.Symbols))
	for i, sym := range c.Symbols {
		inputs[i] = sym.Input
	}
	return inputs
}
