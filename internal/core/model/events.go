// Package model 定义订单簿缓存引擎使用的核心数据结构。
package model

import "math"

// MBOUpdate 单笔订单的逐笔更新
// 既是归一化后输入存储层的操作，也是快照/差量提取的输出形态
type MBOUpdate struct {
	// OrderID 订单标识（交易所内唯一的不透明字符串）
	OrderID string `json:"order_id"`
	// Side 订单方向
	Side Side `json:"side"`
	// Price 价格
	Price float64 `json:"price"`
	// Quantity 数量（modify 时为修改后的绝对数量）
	Quantity float64 `json:"quantity"`
	// Action 操作类型: create/modify/cancel
	Action Action `json:"action"`
}

// MarketByOrderUpdate 一个批次的逐笔订单更新及其来源信息
// 由外部解码层产出，经归一化器处理后进入存储层
type MarketByOrderUpdate struct {
	// Exchange 交易所标识
	Exchange string `json:"exchange"`
	// Symbol 交易对标识
	Symbol string `json:"symbol"`
	// Bids 买方向更新列表
	Bids []MBOUpdate `json:"bids"`
	// Asks 卖方向更新列表
	Asks []MBOUpdate `json:"asks"`
	// UpdateType 批次类型: snapshot/incremental
	UpdateType UpdateType `json:"update_type"`
	// StreamID 行情流标识
	StreamID uint16 `json:"stream_id"`
	// ExchangeTimeUnixNs 交易所事件时间（纳秒）
	ExchangeTimeUnixNs int64 `json:"exchange_time_unix_ns"`
	// ExchangeSequence 交易所序列号（接受的更新必须单调递增）
	ExchangeSequence int64 `json:"exchange_sequence"`
	// Checksum 交易所提供的校验和（0 表示未提供）
	Checksum uint32 `json:"checksum,omitempty"`
}

// ReferenceData 合约参考数据（元数据）
// 在订单簿创建时固定增量、精度与深度上限
type ReferenceData struct {
	// Exchange 交易所标识
	Exchange string `json:"exchange"`
	// Symbol 交易对标识
	Symbol string `json:"symbol"`
	// MaxDepth 每侧保留的最优档位数量上限（0 表示不限制）
	MaxDepth uint16 `json:"max_depth"`
	// PriceIncrement 最小价格变动单位（浮点与整数表示之间的换算因子）
	PriceIncrement float64 `json:"price_increment"`
	// QuantityIncrement 最小数量变动单位
	QuantityIncrement float64 `json:"quantity_increment"`
	// PriceDecimals 价格展示精度（小数位数）
	PriceDecimals int `json:"price_decimals"`
	// QuantityDecimals 数量展示精度（小数位数）
	QuantityDecimals int `json:"quantity_decimals"`
}

// Layer 聚合档位行
// 第 i 行对应买卖双方各自第 i 优的价格档位；某侧档位不足时该侧字段为零值
type Layer struct {
	// BidPrice 买方价格
	BidPrice float64 `json:"bid_price"`
	// BidQuantity 买方聚合数量（内部累加溢出时为 +Inf）
	BidQuantity float64 `json:"bid_quantity"`
	// BidOrders 买方订单数
	BidOrders int `json:"bid_orders"`
	// AskPrice 卖方价格
	AskPrice float64 `json:"ask_price"`
	// AskQuantity 卖方聚合数量（内部累加溢出时为 +Inf）
	AskQuantity float64 `json:"ask_quantity"`
	// AskOrders 卖方订单数
	AskOrders int `json:"ask_orders"`
}

// Position 订单的队列位置
// 订单不存在时三个字段均为 NaN（缺失不是 0，而是“无数据”）
type Position struct {
	// Quantity 订单自身数量
	Quantity float64 `json:"quantity"`
	// Before 同档位中排在该订单之前的数量合计（FIFO 优先级）
	Before float64 `json:"before"`
	// Total 档位总数量
	Total float64 `json:"total"`
}

// EmptyPosition 返回全 NaN 的队列位置
// 用于订单不存在时的返回值
func EmptyPosition() Position {
	nan := math.NaN()
	return Position{Quantity: nan, Before: nan, Total: nan}
}

// Found 判断队列位置是否有效（订单存在）
func (p Position) Found() bool {
	return !math.IsNaN(p.Quantity)
}
