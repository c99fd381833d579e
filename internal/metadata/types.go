// Package metadata 负责从交易所获取合约元数据并构建参考数据。
package metadata

// PairInfo 单个合约的交易参数
// 字段映射来自 Bitfinex conf API 响应（pub:info:pair）
type PairInfo struct {
	// Pair 合约标识，如 BTCUSD
	Pair string
	// MinOrderSize 最小下单数量
	MinOrderSize float64
	// MaxOrderSize 最大下单数量
	MaxOrderSize float64
}
