// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// createValidConfig 创建一个有效的配置用于测试
func createValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "test",
			LogLevel: "info",
		},
		Symbols: []SymbolConfig{
			{
				Input:             "tBTCUSD",
				PriceIncrement:    0.01,
				QuantityIncrement: 0.00000001,
				PriceDecimals:     2,
				QuantityDecimals:  8,
			},
		},
		Metadata: MetadataConfig{
			URL:       "https://api-pub.bitfinex.com/v2/conf/pub:info:pair",
			TimeoutMs: 10000,
		},
		WS: WSConfig{
			URL:            "wss://api-pub.bitfinex.com/ws/2",
			PingIntervalMs: 15000,
			PongTimeoutMs:  10000,
			ReadTimeoutMs:  30000,
			BookLen:        100,
		},
		Output: OutputConfig{
			Dir:                "./output",
			SnapshotsEnabled:   true,
			SnapshotIntervalMs: 5000,
			SnapshotDepth:      25,
			MetricsEnabled:     true,
			MetricsIntervalMs:  10000,
			BufferSize:         1000,
		},
	}
}

// TestConfigValidation_SymbolIncrements 测试合约增量验证
// 属性: 价格/数量增量必须为正数
func TestConfigValidation_SymbolIncrements(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: 价格增量 <= 0 应验证失败
	properties.Property("价格增量非正数应验证失败", prop.ForAll(
		func(inc float64) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].PriceIncrement = inc
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, 0),
	))

	// 属性: 数量增量 <= 0 应验证失败
	properties.Property("数量增量非正数应验证失败", prop.ForAll(
		func(inc float64) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].QuantityIncrement = inc
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, 0),
	))

	// 属性: 增量为正数应通过验证
	properties.Property("正数增量应通过验证", prop.ForAll(
		func(priceInc, qtyInc float64) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].PriceIncrement = priceInc
			cfg.Symbols[0].QuantityIncrement = qtyInc
			return cfg.Validate() == nil
		},
		gen.Float64Range(0.00000001, 1000),
		gen.Float64Range(0.00000001, 1000),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_SymbolPrecision 测试精度与深度验证
// 属性: 小数位数和深度上限不能为负数
func TestConfigValidation_SymbolPrecision(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: 价格精度为负数应验证失败
	properties.Property("价格精度为负数应验证失败", prop.ForAll(
		func(decimals int) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].PriceDecimals = decimals
			return cfg.Validate() != nil
		},
		gen.IntRange(-100, -1),
	))

	// 属性: 数量精度为负数应验证失败
	properties.Property("数量精度为负数应验证失败", prop.ForAll(
		func(decimals int) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].QuantityDecimals = decimals
			return cfg.Validate() != nil
		},
		gen.IntRange(-100, -1),
	))

	// 属性: 深度上限为负数应验证失败
	properties.Property("深度上限为负数应验证失败", prop.ForAll(
		func(depth int) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].MaxDepth = depth
			return cfg.Validate() != nil
		},
		gen.IntRange(-100, -1),
	))

	// 属性: 深度上限非负应通过验证（0 表示不限制）
	properties.Property("非负深度上限应通过验证", prop.ForAll(
		func(depth int) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].MaxDepth = depth
			return cfg.Validate() == nil
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_Symbols 测试合约配置验证
func TestConfigValidation_Symbols(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: 空合约列表应验证失败
	properties.Property("空合约列表应验证失败", prop.ForAll(
		func(_ int) bool {
			cfg := createValidConfig()
			cfg.Symbols = []SymbolConfig{}
			return cfg.Validate() != nil
		},
		gen.Int(), // 占位生成器
	))

	// 属性: 合约标识为空字符串应验证失败
	properties.Property("空合约标识应验证失败", prop.ForAll(
		func(_ int) bool {
			cfg := createValidConfig()
			cfg.Symbols[0].Input = ""
			return cfg.Validate() != nil
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_BookLen 测试订单簿长度白名单
// Bitfinex 只接受 1/25/100/250 四档订阅长度
func TestConfigValidation_BookLen(t *testing.T) {
	valid := []int{1, 25, 100, 250}
	for _, v := range valid {
		cfg := createValidConfig()
		cfg.WS.BookLen = v
		if err := cfg.Validate(); err != nil {
			t.Errorf("BookLen=%d 应通过验证: %v", v, err)
		}
	}

	invalid := []int{-1, 2, 50, 99, 101, 500, 1000}
	for _, v := range invalid {
		cfg := createValidConfig()
		cfg.WS.BookLen = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("BookLen=%d 应验证失败", v)
		}
	}
}

// TestConfigValidation_LogLevel 测试日志级别白名单
func TestConfigValidation_LogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
		cfg := createValidConfig()
		cfg.App.LogLevel = lvl
		if err := cfg.Validate(); err != nil {
			t.Errorf("LogLevel=%q 应通过验证: %v", lvl, err)
		}
	}

	for _, lvl := range []string{"trace", "fatal", "verbose", ""} {
		cfg := createValidConfig()
		cfg.App.LogLevel = lvl
		if err := cfg.Validate(); err == nil {
			t.Errorf("LogLevel=%q 应验证失败", lvl)
		}
	}
}

// TestConfigValidation_Output 测试输出配置验证
func TestConfigValidation_Output(t *testing.T) {
	cfg := createValidConfig()
	cfg.Output.SnapshotIntervalMs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("快照间隔为 0 应验证失败")
	}

	cfg = createValidConfig()
	cfg.Output.MetricsIntervalMs = -1
	if err := cfg.Validate(); err == nil {
		t.Error("指标间隔为负数应验证失败")
	}

	cfg = createValidConfig()
	cfg.Output.SnapshotDepth = -5
	if err := cfg.Validate(); err == nil {
		t.Error("快照深度为负数应验证失败")
	}

	// 0 表示全部保留档位
	cfg = createValidConfig()
	cfg.Output.SnapshotDepth = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("快照深度为 0 应通过验证: %v", err)
	}
}

// TestSetDefaults 测试默认值填充
func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	if cfg.App.Name != "mbo-book-cache" {
		t.Errorf("App.Name = %s, want mbo-book-cache", cfg.App.Name)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel = %s, want info", cfg.App.LogLevel)
	}
	if cfg.Metadata.TimeoutMs != 10000 {
		t.Errorf("Metadata.TimeoutMs = %d, want 10000", cfg.Metadata.TimeoutMs)
	}
	if cfg.WS.PingIntervalMs != 15000 {
		t.Errorf("WS.PingIntervalMs = %d, want 15000", cfg.WS.PingIntervalMs)
	}
	if cfg.WS.BookLen != 100 {
		t.Errorf("WS.BookLen = %d, want 100", cfg.WS.BookLen)
	}
	if cfg.Output.Dir != "./output" {
		t.Errorf("Output.Dir = %s, want ./output", cfg.Output.Dir)
	}
	if cfg.Output.SnapshotIntervalMs != 5000 {
		t.Errorf("Output.SnapshotIntervalMs = %d, want 5000", cfg.Output.SnapshotIntervalMs)
	}
	if cfg.Output.BufferSize != 1000 {
		t.Errorf("Output.BufferSize = %d, want 1000", cfg.Output.BufferSize)
	}
}

// TestCanonOrDerived 测试统一合约标识派生
func TestCanonOrDerived(t *testing.T) {
	tests := []struct {
		input    string
		canon    string
		expected string
	}{
		{"tBTCUSD", "", "BTCUSD"},
		{"fUSD", "", "USD"},
		{"tETHUSD", "ETH-USD", "ETH-USD"}, // 显式 Canon 优先
		{"BTCUSD", "", "BTCUSD"},          // 无前缀原样返回
		{"t", "", "t"},                    // 过短不派生
	}

	for _, tt := range tests {
		s := SymbolConfig{Input: tt.input, Canon: tt.canon}
		if got := s.CanonOrDerived(); got != tt.expected {
			t.Errorf("CanonOrDerived(%q, %q) = %q, want %q", tt.input, tt.canon, got, tt.expected)
		}
	}
}

// TestLoad_ValidFile 测试从有效文件加载配置
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-cache
  log_level: debug

symbols:
  - input: tBTCUSD
    max_depth: 100
    price_increment: 0.01
    quantity_increment: 0.00000001
    price_decimals: 2
    quantity_decimals: 8
  - input: tETHUSD
    canon: ETHUSD
    price_increment: 0.01
    quantity_increment: 0.00000001
    price_decimals: 2
    quantity_decimals: 8

metadata:
  url: https://api-pub.bitfinex.com/v2/conf/pub:info:pair
  timeout_ms: 10000

ws:
  url: wss://api-pub.bitfinex.com/ws/2
  ping_interval_ms: 15000
  pong_timeout_ms: 10000
  read_timeout_ms: 30000
  book_len: 250

output:
  dir: ./output
  snapshots_enabled: true
  snapshot_interval_ms: 5000
  snapshot_depth: 25
  metrics_enabled: true
  metrics_interval_ms: 10000
  buffer_size: 1000
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-cache" {
		t.Errorf("App.Name = %s, want test-cache", cfg.App.Name)
	}
	if len(cfg.Symbols) != 2 {
		t.Errorf("len(Symbols) = %d, want 2", len(cfg.Symbols))
	}
	if cfg.Symbols[0].MaxDepth != 100 {
		t.Errorf("Symbols[0].MaxDepth = %d, want 100", cfg.Symbols[0].MaxDepth)
	}
	if cfg.WS.BookLen != 250 {
		t.Errorf("WS.BookLen = %d, want 250", cfg.WS.BookLen)
	}
}

// TestLoad_MissingIncrements 测试缺失增量的配置应加载失败
func TestLoad_MissingIncrements(t *testing.T) {
	content := `
symbols:
  - input: tBTCUSD

ws:
  url: wss://api-pub.bitfinex.com/ws/2
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	if _, err := Load(tmpFile); err == nil {
		t.Error("缺失增量的配置应加载失败")
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	if _, err := Load(tmpFile); err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}

// TestGetSymbolInputs 测试获取合约标识列表
func TestGetSymbolInputs(t *testing.T) {
	cfg := &Config{
		Symbols: []SymbolConfig{
			{Input: "tBTCUSD"},
			{Input: "tETHUSD"},
			{Input: "fUSD"},
		},
	}

	inputs := cfg.GetSymbolInputs()
	if len(inputs) != 3 {
		t.Errorf("len(inputs) = %d, want 3", len(inputs))
	}
	if inputs[0] != "tBTCUSD" {
		t.Errorf("inputs[0] = %s, want tBTCUSD", inputs[0])
	}
}
