// Package normalize 将嘈杂的逐笔订单更新流归一化为最小的内部一致操作序列。
// 负责批内去重、序列号回退丢弃、快照重同步时的隐式撤单合成，
// 并输出供下游消费的干净 MBOUpdate 列表。
package normalize

import (
	"math"

	"mbo-book-cache/internal/core/book"
	"mbo-book-cache/internal/core/model"
	"mbo-book-cache/internal/stats/integrity"
)

// dedupeKey 批内去重签名
type dedupeKey struct {
	orderID string
	action  model.Action
}

// liveState 批次处理期间单个订单标识的有效状态
// 由簿内状态播种，随本批已产出的操作即时演进，
// 使同批次内针对同一订单的复合操作也能正确对账
type liveState struct {
	side     model.Side
	price    float64
	quantity float64
	// live 为 false 表示本批已为该订单产出撤单
	live bool
}

// batchView 批次处理期间的有效状态视图
type batchView struct {
	book   book.MarketByOrder
	states map[string]liveState
}

// lookup 查询订单的有效状态
// 优先取批内演进状态，未触达的订单从簿内双侧播种
func (v *batchView) lookup(orderID string) (liveState, bool) {
	if st, ok := v.states[orderID]; ok {
		return st, true
	}
	for _, s := range []model.Side{model.SideBuy, model.SideSell} {
		if o, ok := v.book.FindOrder(s, orderID); ok {
			st := liveState{side: s, price: o.Price, quantity: o.Quantity, live: true}
			v.states[orderID] = st
			return st, true
		}
	}
	return liveState{}, false
}

// set 记录批内产出操作后的订单状态
func (v *batchView) set(orderID string, st liveState) {
	v.states[orderID] = st
}

// Normalizer 更新归一化器
// 包装单个订单簿缓存，把可能乱序、含重复的原始更新流
// 转换为存储层可直接消费的干净操作序列。单写者，无内部锁。
type Normalizer struct {
	// book 被维护的订单簿缓存
	book book.MarketByOrder
	// counters 咨询性状况计数器（回退/重复/未知订单/校验和不一致）
	counters *integrity.Counters

	// scratchBids/scratchAsks 快照差量比对的复用缓冲
	scratchBids []model.MBOUpdate
	scratchAsks []model.MBOUpdate
}

// New 创建归一化器
// 参数 b: 被维护的订单簿缓存
// 参数 counters: 完整性计数器（可为 nil，nil 时不计数）
func New(b book.MarketByOrder, counters *integrity.Counters) *Normalizer {
	if counters == nil {
		counters = &integrity.Counters{}
	}
	return &Normalizer{book: b, counters: counters}
}

// Book 返回被维护的订单簿缓存
func (n *Normalizer) Book() book.MarketByOrder {
	return n.book
}

// Counters 返回完整性计数器
func (n *Normalizer) Counters() *integrity.Counters {
	return n.counters
}

// Normalize 归一化并应用一个原始更新批次
// 参数 u: 原始更新批次（可能含重复、陈旧序列号、与簿内状态不一致的操作）
// 参数 bids/asks: 输出缓冲，写入归一化后的干净操作序列（会被清空复用）
// 返回: 归一化后的更新、是否被应用（序列号回退丢弃时为 false）、结构性错误
// 序列号回退与校验和不一致属咨询性状况，走计数器上报，不产生错误返回
func (n *Normalizer) Normalize(u model.MarketByOrderUpdate, bids, asks *[]model.MBOUpdate) (model.MarketByOrderUpdate, bool, error) {
	*bids = (*bids)[:0]
	*asks = (*asks)[:0]

	// 序列号必须严格递增，回退或重复的批次整体丢弃
	if u.ExchangeSequence != 0 && n.book.ExchangeSequence() != 0 &&
		u.ExchangeSequence <= n.book.ExchangeSequence() {
		n.counters.SequenceRegression()
		return model.MarketByOrderUpdate{}, false, nil
	}

	seen := make(map[dedupeKey]struct{}, len(u.Bids)+len(u.Asks))
	view := &batchView{book: n.book, states: make(map[string]liveState)}

	if u.UpdateType == model.UpdateTypeSnapshot {
		n.snapshotSide(model.SideBuy, u.Bids, seen, view, bids)
		n.snapshotSide(model.SideSell, u.Asks, seen, view, asks)
	} else {
		n.normalizeIncremental(model.SideBuy, u.Bids, seen, view, bids)
		n.normalizeIncremental(model.SideSell, u.Asks, seen, view, asks)
	}

	normalized := model.MarketByOrderUpdate{
		Exchange:           n.book.Exchange(),
		Symbol:             n.book.Symbol(),
		Bids:               *bids,
		Asks:               *asks,
		UpdateType:         u.UpdateType,
		StreamID:           u.StreamID,
		ExchangeTimeUnixNs: u.ExchangeTimeUnixNs,
		ExchangeSequence:   u.ExchangeSequence,
		Checksum:           u.Checksum,
	}
	if normalized.UpdateType == model.UpdateTypeUndefined {
		normalized.UpdateType = model.UpdateTypeIncremental
	}

	if err := n.book.Apply(normalized); err != nil {
		return model.MarketByOrderUpdate{}, false, err
	}

	if u.UpdateType == model.UpdateTypeSnapshot {
		n.counters.SnapshotApplied()
	}
	n.counters.UpdateApplied()

	// 校验和验证：不一致仅计数，纠正需要由调用方触发快照重同步
	if u.Checksum != 0 && n.book.Checksum() != u.Checksum {
		n.counters.ChecksumMismatch()
	}

	return normalized, true, nil
}

// normalizeIncremental 归一化单侧增量条目
// 与有效状态比对，把噪声操作修正为一致操作:
// 已存在订单的 create 降级为 modify，未知订单的 modify 升级为 create，
// 未知订单的 cancel 丢弃并计数，无实际变化的条目直接省略。
// 引用对侧在用标识的 create 丢弃——跨侧迁移在下一批次收敛，
// 否则买侧先于卖侧应用的批次顺序会产生标识冲突。
func (n *Normalizer) normalizeIncremental(side model.Side, entries []model.MBOUpdate, seen map[dedupeKey]struct{}, view *batchView, out *[]model.MBOUpdate) {
	for _, e := range entries {
		if !e.Action.Valid() || e.OrderID == "" {
			continue
		}
		key := dedupeKey{orderID: e.OrderID, action: e.Action}
		if _, dup := seen[key]; dup {
			n.counters.DuplicateDropped()
			continue
		}
		seen[key] = struct{}{}

		st, tracked := view.lookup(e.OrderID)
		liveHere := tracked && st.live && st.side == side
		liveOther := tracked && st.live && st.side != side

		switch e.Action {
		case model.ActionCreate:
			n.emitUpsert(side, e, liveHere, liveOther, st, view, out)

		case model.ActionModify:
			if liveOther {
				n.counters.UnknownOrderDropped()
				continue
			}
			if !liveHere {
				// 未知订单的修改视为迟到的新建
				if e.Quantity > 0 {
					n.emitCreate(side, e, view, out)
				} else {
					n.counters.UnknownOrderDropped()
				}
				continue
			}
			if e.Quantity <= 0 {
				n.emitCancel(side, e.OrderID, view, out)
				continue
			}
			if n.unchanged(st, e) {
				continue
			}
			n.emitModify(side, e, view, out)

		case model.ActionCancel:
			if !liveHere {
				n.counters.UnknownOrderDropped()
				continue
			}
			n.emitCancel(side, e.OrderID, view, out)
		}
	}
}

// emitUpsert 处理 create 语义的条目（含快照条目）
// 已存在降级为修改，对侧在用丢弃，数量非正的未知标识省略
func (n *Normalizer) emitUpsert(side model.Side, e model.MBOUpdate, liveHere, liveOther bool, st liveState, view *batchView, out *[]model.MBOUpdate) {
	if liveOther {
		n.counters.DuplicateDropped()
		return
	}
	if liveHere {
		if e.Quantity <= 0 {
			n.emitCancel(side, e.OrderID, view, out)
			return
		}
		if n.unchanged(st, e) {
			return
		}
		n.emitModify(side, e, view, out)
		return
	}
	if e.Quantity <= 0 {
		return
	}
	n.emitCreate(side, e, view, out)
}

// emitCreate 产出 create 并演进有效状态
func (n *Normalizer) emitCreate(side model.Side, e model.MBOUpdate, view *batchView, out *[]model.MBOUpdate) {
	*out = append(*out, n.entry(side, e, model.ActionCreate))
	view.set(e.OrderID, liveState{side: side, price: e.Price, quantity: e.Quantity, live: true})
}

// emitModify 产出 modify 并演进有效状态
func (n *Normalizer) emitModify(side model.Side, e model.MBOUpdate, view *batchView, out *[]model.MBOUpdate) {
	*out = append(*out, n.entry(side, e, model.ActionModify))
	view.set(e.OrderID, liveState{side: side, price: e.Price, quantity: e.Quantity, live: true})
}

// emitCancel 产出 cancel 并演进有效状态
func (n *Normalizer) emitCancel(side model.Side, orderID string, view *batchView, out *[]model.MBOUpdate) {
	*out = append(*out, model.MBOUpdate{OrderID: orderID, Side: side, Action: model.ActionCancel})
	view.set(orderID, liveState{side: side, live: false})
}

// snapshotSide 处理全量快照的单侧
// 快照是权威状态：簿内存在而快照缺失的订单合成隐式撤单，
// 快照条目与有效状态的差异转换为最小 create/modify 序列。
func (n *Normalizer) snapshotSide(side model.Side, entries []model.MBOUpdate, seen map[dedupeKey]struct{}, view *batchView, out *[]model.MBOUpdate) {
	// 快照中声明存在的订单集合
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.OrderID == "" || e.Action == model.ActionCancel || e.Quantity <= 0 {
			continue
		}
		present[e.OrderID] = struct{}{}
	}

	// 隐式撤单：簿内存在但快照未提及的订单
	scratch := n.scratchFor(side)
	*scratch = (*scratch)[:0]
	var other []model.MBOUpdate
	if side == model.SideBuy {
		n.book.ExtractOrders(scratch, &other, 0)
	} else {
		n.book.ExtractOrders(&other, scratch, 0)
	}
	implicit := 0
	for _, cur := range *scratch {
		if _, ok := present[cur.OrderID]; !ok {
			n.emitCancel(side, cur.OrderID, view, out)
			implicit++
		}
	}
	if implicit > 0 {
		n.counters.ImplicitCancel(implicit)
	}

	// 快照条目与有效状态比对，生成最小 create/modify 序列
	for _, e := range entries {
		if e.OrderID == "" || e.Action == model.ActionCancel || e.Quantity <= 0 {
			continue
		}
		key := dedupeKey{orderID: e.OrderID, action: e.Action}
		if _, dup := seen[key]; dup {
			n.counters.DuplicateDropped()
			continue
		}
		seen[key] = struct{}{}

		st, tracked := view.lookup(e.OrderID)
		liveHere := tracked && st.live && st.side == side
		liveOther := tracked && st.live && st.side != side
		n.emitUpsert(side, e, liveHere, liveOther, st, view, out)
	}
}

// scratchFor 按方向取快照比对缓冲
func (n *Normalizer) scratchFor(side model.Side) *[]model.MBOUpdate {
	if side == model.SideBuy {
		return &n.scratchBids
	}
	return &n.scratchAsks
}

// entry 构造归一化条目（统一填充方向与操作）
func (n *Normalizer) entry(side model.Side, e model.MBOUpdate, action model.Action) model.MBOUpdate {
	return model.MBOUpdate{
		OrderID:  e.OrderID,
		Side:     side,
		Price:    e.Price,
		Quantity: e.Quantity,
		Action:   action,
	}
}

// unchanged 判断条目与有效状态是否完全相同（按增量取整后比较）
func (n *Normalizer) unchanged(st liveState, e model.MBOUpdate) bool {
	return n.sameTick(st.price, e.Price, n.book.PriceIncrement()) &&
		n.sameTick(st.quantity, e.Quantity, n.book.QuantityIncrement())
}

// sameTick 按换算因子取整后判等
func (n *Normalizer) sameTick(a, b, increment float64) bool {
	if increment <= 0 {
		return a == b
	}
	return math.Round(a/increment) == math.Round(b/increment)
}

// CreateSnapshot 由当前簿内状态生成归一化的全量快照
// 用于在不重放历史的情况下（重新）同步下游消费者
// 参数 bids/asks: 输出缓冲，写入每一笔挂单的 create 条目（会被清空复用）
// 返回: 携带当前来源信息与校验和的快照更新
func (n *Normalizer) CreateSnapshot(bids, asks *[]model.MBOUpdate) model.MarketByOrderUpdate {
	n.book.ExtractOrders(bids, asks, 0)
	return model.MarketByOrderUpdate{
		Exchange:           n.book.Exchange(),
		Symbol:             n.book.Symbol(),
		Bids:               *bids,
		Asks:               *asks,
		UpdateType:         model.UpdateTypeSnapshot,
		StreamID:           n.book.StreamID(),
		ExchangeTimeUnixNs: n.book.ExchangeTimeUnixNs(),
		ExchangeSequence:   n.book.ExchangeSequence(),
		Checksum:           n.book.Checksum(),
	}
}
