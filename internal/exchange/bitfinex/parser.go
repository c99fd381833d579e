package bitfinex

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"mbo-book-cache/internal/core/model"
)

// exchangeName 解码结果中记录的交易所标识
const exchangeName = "bitfinex"

// FrameKind 数据帧类别
type FrameKind int

const (
	// FrameUnknown 无法识别的帧
	FrameUnknown FrameKind = iota
	// FrameBook 订单簿数据帧（快照或增量）
	FrameBook
	// FrameHeartbeat 心跳帧
	FrameHeartbeat
	// FrameChecksum 校验和帧
	FrameChecksum
)

// channelInfo 频道与合约的映射信息
type channelInfo struct {
	// input 交易所侧合约标识，如 tBTCUSD
	input string
	// canon 统一合约标识，如 BTCUSD
	canon string
}

// Parser Bitfinex 逐笔订单簿消息解析器
// 数据帧以频道标识开头，须先通过订阅确认注册频道映射
//
// R0 逐笔帧的条目形如 [ORDER_ID, PRICE, AMOUNT]：
//   - AMOUNT 符号表示方向（正为买、负为卖），绝对值为数量
//   - PRICE 为 0 表示撤单，否则表示挂单或改单
//
// 交易所不区分新增与修改，统一产出 create，由归一化器对账补全。
type Parser struct {
	// mu 保护频道映射表
	mu sync.RWMutex
	// channels 频道标识 → 合约映射
	channels map[int64]channelInfo
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{
		channels: make(map[int64]channelInfo),
	}
}

// RegisterChannel 注册频道映射
// 在收到订阅确认事件后调用
// 参数 chanID: 频道标识
// 参数 input: 交易所侧合约标识
// 参数 canon: 统一合约标识
func (p *Parser) RegisterChannel(chanID int64, input, canon string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[chanID] = channelInfo{input: input, canon: canon}
}

// Reset 清空频道映射
// 重连后频道标识会重新分配，必须在重新订阅前调用
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = make(map[int64]channelInfo)
}

// lookupChannel 查询频道映射
func (p *Parser) lookupChannel(chanID int64) (channelInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.channels[chanID]
	return info, ok
}

// Parse 解析一条数据帧（JSON 数组形态）
// 帧格式:
//   - 快照: [CHAN_ID, [[ID,PRICE,AMOUNT],...], SEQ]
//   - 增量: [CHAN_ID, [ID,PRICE,AMOUNT], SEQ]
//   - 心跳: [CHAN_ID, "hb", SEQ]
//   - 校验: [CHAN_ID, "cs", CHECKSUM, SEQ]
//
// 参数 data: 原始消息字节
// 参数 recvNs: 本地接收时间（纳秒）；R0 帧不携带交易所时间戳，以接收时间代替
// 返回: 解析出的更新批次（心跳帧为 nil）、帧类别和可能的错误
func (p *Parser) Parse(data []byte, recvNs int64) (*model.MarketByOrderUpdate, FrameKind, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, FrameUnknown, fmt.Errorf("解析数据帧失败: %w", err)
	}
	if len(elems) < 2 {
		return nil, FrameUnknown, fmt.Errorf("数据帧元素不足: %d", len(elems))
	}

	var chanID int64
	if err := json.Unmarshal(elems[0], &chanID); err != nil {
		return nil, FrameUnknown, fmt.Errorf("解析频道标识失败: %w", err)
	}

	info, ok := p.lookupChannel(chanID)
	if !ok {
		return nil, FrameUnknown, fmt.Errorf("未注册的频道: %d", chanID)
	}

	// 字符串载荷: 心跳或校验和帧
	if len(elems[1]) > 0 && elems[1][0] == '"' {
		var kind string
		if err := json.Unmarshal(elems[1], &kind); err != nil {
			return nil, FrameUnknown, fmt.Errorf("解析帧类型失败: %w", err)
		}
		switch kind {
		case "hb":
			return nil, FrameHeartbeat, nil
		case "cs":
			return p.parseChecksum(elems, info, chanID, recvNs)
		default:
			return nil, FrameUnknown, fmt.Errorf("未知帧类型: %s", kind)
		}
	}

	return p.parseBook(elems, info, chanID, recvNs)
}

// parseChecksum 解析校验和帧 [CHAN_ID, "cs", CHECKSUM, SEQ]
// 交易所校验和为带符号 32 位整数，按位转换为 uint32 保存
func (p *Parser) parseChecksum(elems []json.RawMessage, info channelInfo, chanID, recvNs int64) (*model.MarketByOrderUpdate, FrameKind, error) {
	if len(elems) < 3 {
		return nil, FrameChecksum, fmt.Errorf("校验和帧元素不足: %d", len(elems))
	}
	var cs int32
	if err := json.Unmarshal(elems[2], &cs); err != nil {
		return nil, FrameChecksum, fmt.Errorf("解析校验和失败: %w", err)
	}

	u := &model.MarketByOrderUpdate{
		Exchange:           exchangeName,
		Symbol:             info.canon,
		StreamID:           uint16(chanID),
		ExchangeTimeUnixNs: recvNs,
		Checksum:           uint32(cs),
	}
	if len(elems) > 3 {
		if err := json.Unmarshal(elems[3], &u.ExchangeSequence); err != nil {
			return nil, FrameChecksum, fmt.Errorf("解析序列号失败: %w", err)
		}
	}
	return u, FrameChecksum, nil
}

// parseBook 解析订单簿数据帧
// 载荷第一个元素是数组则为快照，否则为单条增量
func (p *Parser) parseBook(elems []json.RawMessage, info channelInfo, chanID, recvNs int64) (*model.MarketByOrderUpdate, FrameKind, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(elems[1], &payload); err != nil {
		return nil, FrameBook, fmt.Errorf("解析订单簿载荷失败: %w", err)
	}

	u := &model.MarketByOrderUpdate{
		Exchange:           exchangeName,
		Symbol:             info.canon,
		UpdateType:         model.UpdateTypeIncremental,
		StreamID:           uint16(chanID),
		ExchangeTimeUnixNs: recvNs,
	}
	if len(elems) > 2 {
		if err := json.Unmarshal(elems[2], &u.ExchangeSequence); err != nil {
			return nil, FrameBook, fmt.Errorf("解析序列号失败: %w", err)
		}
	}

	// 快照: 载荷为条目数组的数组
	if len(payload) > 0 && len(payload[0]) > 0 && payload[0][0] == '[' {
		u.UpdateType = model.UpdateTypeSnapshot
		for _, raw := range payload {
			if err := appendEntry(u, raw); err != nil {
				return nil, FrameBook, err
			}
		}
		return u, FrameBook, nil
	}

	// 增量: 载荷即单个条目
	if err := appendEntry(u, elems[1]); err != nil {
		return nil, FrameBook, err
	}
	return u, FrameBook, nil
}

// appendEntry 解析单个条目 [ORDER_ID, PRICE, AMOUNT] 并追加到对应方向
// 数量为 0 或价格为负的条目视为非法
func appendEntry(u *model.MarketByOrderUpdate, raw json.RawMessage) error {
	var triple [3]json.Number
	if err := json.Unmarshal(raw, &triple); err != nil {
		return fmt.Errorf("解析订单条目失败: %w", err)
	}

	price, err := triple[1].Float64()
	if err != nil {
		return fmt.Errorf("解析价格失败: %w", err)
	}
	amount, err := triple[2].Float64()
	if err != nil {
		return fmt.Errorf("解析数量失败: %w", err)
	}
	if amount == 0 || price < 0 {
		return fmt.Errorf("非法订单条目: price=%v amount=%v", price, amount)
	}

	entry := model.MBOUpdate{
		OrderID: triple[0].String(),
	}
	if amount > 0 {
		entry.Side = model.SideBuy
	} else {
		entry.Side = model.SideSell
	}

	if price == 0 {
		// 价格为 0 表示该订单离场
		entry.Action = model.ActionCancel
	} else {
		entry.Action = model.ActionCreate
		entry.Price = price
		entry.Quantity = math.Abs(amount)
	}

	if entry.Side == model.SideBuy {
		u.Bids = append(u.Bids, entry)
	} else {
		u.Asks = append(u.Asks, entry)
	}
	return nil
}
