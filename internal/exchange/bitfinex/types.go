// Package bitfinex 实现 Bitfinex 交易所逐笔订单簿（raw book, prec=R0）的接入。
package bitfinex

// 配置标志位
// 通过 conf 事件启用，可按位或组合
const (
	// FlagSeqAll 为每条消息附加序列号
	FlagSeqAll = 65536
	// FlagChecksum 周期性推送订单簿校验和帧
	FlagChecksum = 131072
)

// ConfRequest 连接配置请求
// 发送形如 {"event":"conf","flags":196608}
type ConfRequest struct {
	// Event 事件类型，固定为 "conf"
	Event string `json:"event"`
	// Flags 标志位组合
	Flags int `json:"flags"`
}

// SubscribeRequest 订阅请求
// 发送形如 {"event":"subscribe","channel":"book","symbol":"tBTCUSD","prec":"R0","len":"100"}
type SubscribeRequest struct {
	// Event 事件类型，固定为 "subscribe"
	Event string `json:"event"`
	// Channel 频道名，固定为 "book"
	Channel string `json:"channel"`
	// Symbol 交易所侧合约标识，如 tBTCUSD
	Symbol string `json:"symbol"`
	// Prec 精度等级，R0 表示逐笔订单（非聚合）
	Prec string `json:"prec"`
	// Len 订单簿长度: "1", "25", "100", "250"
	Len string `json:"len"`
}

// PingRequest 心跳请求
type PingRequest struct {
	// Event 事件类型，固定为 "ping"
	Event string `json:"event"`
	// Cid 客户端请求标识，原样出现在 pong 中
	Cid int64 `json:"cid"`
}

// EventMessage 服务端事件消息（JSON 对象形态）
// 数据帧为 JSON 数组形态，由 Parser 处理
type EventMessage struct {
	// Event 事件类型: info, subscribed, unsubscribed, pong, error, conf
	Event string `json:"event"`
	// Channel 频道名
	Channel string `json:"channel"`
	// ChanID 频道标识，数据帧以它开头
	ChanID int64 `json:"chanId"`
	// Symbol 交易所侧合约标识
	Symbol string `json:"symbol"`
	// Pair 合约对，如 BTCUSD
	Pair string `json:"pair"`
	// Prec 精度等级
	Prec string `json:"prec"`
	// Code 状态码（info/error 事件）
	Code int `json:"code"`
	// Msg 错误描述
	Msg string `json:"msg"`
	// Version 协议版本（info 事件）
	Version int `json:"version"`
	// Cid 客户端请求标识（pong 事件）
	Cid int64 `json:"cid"`
}

// info 事件状态码
const (
	// CodeReconnect 服务端要求重连
	CodeReconnect = 20051
	// CodeMaintenanceStart 进入维护模式，暂停推送
	CodeMaintenanceStart = 20060
	// CodeMaintenanceEnd 维护结束，应重新订阅
	CodeMaintenanceEnd = 20061
)

// IsEventMessage 判断是否为事件消息（JSON 对象形态）
func IsEventMessage(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b == '{'
		}
	}
	return false
}

// ConnectionMetrics 连接指标
type ConnectionMetrics struct {
	// UpdatesPerSec 每秒更新批次数
	UpdatesPerSec float64 `json:"updates_per_sec"`
	// LastMessageAgeMs 最后一条消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// ChecksumFrames 收到的校验和帧数
	ChecksumFrames int64 `json:"checksum_frames"`
	// WsRttMs 心跳往返时延（毫秒）
	WsRttMs int64 `json:"ws_rtt_ms"`
}
