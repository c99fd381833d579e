// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"fmt"
	"math"

	"github.com/tidwall/btree"

	"mbo-book-cache/internal/core/model"
)

// MarketByOrder 单合约订单簿缓存的能力集合
// 单写者同步结构：引擎内部无锁，同一合约的写入必须由单一逻辑线程串行执行；
// 读查询与写入的交错顺序由调用方保证。不同合约完全独立。
type MarketByOrder interface {
	// 元数据访问

	// Exchange 交易所标识
	Exchange() string
	// Symbol 交易对标识
	Symbol() string
	// MaxDepth 每侧保留的最优档位数量上限（0 表示不限制）
	MaxDepth() uint16
	// PriceIncrement 最小价格变动单位
	PriceIncrement() float64
	// QuantityIncrement 最小数量变动单位
	QuantityIncrement() float64
	// PriceDecimals 价格展示精度
	PriceDecimals() int
	// QuantityDecimals 数量展示精度
	QuantityDecimals() int

	// 最近更新来源

	// StreamID 最近一次更新的行情流标识
	StreamID() uint16
	// ExchangeTimeUnixNs 最近一次更新的交易所时间（纳秒）
	ExchangeTimeUnixNs() int64
	// ExchangeSequence 最近一次接受的交易所序列号（单调不减）
	ExchangeSequence() int64

	// Checksum 当前可见状态的确定性校验和
	// 覆盖 max_depth 限定内的档位；档位内与订单顺序无关，档位间按侧与价格顺序相关
	Checksum() uint32

	// 存储操作

	// ApplyReferenceData 设置/校验参考数据
	// 增量非正或精度为负时返回 ErrConfiguration
	ApplyReferenceData(ref model.ReferenceData) error
	// ApplySequential 应用一个已排序、已一致的更新批次
	// modify/cancel 引用不存在的订单时返回 ErrUnknownOrder（上游数据流损坏信号）
	ApplySequential(bids, asks []model.MBOUpdate) error
	// Apply 应用一个已归一化的更新（含来源信息）
	Apply(u model.MarketByOrderUpdate) error
	// Size 返回每侧订单数 (bids, asks)
	Size() (int, int)
	// Empty 双侧均无订单时为 true
	Empty() bool
	// Clear 丢弃全部档位与订单，重置校验和与来源信息
	Clear()

	// 提取操作

	// ExtractOrders 提取逐笔订单快照
	// 参数 maxDepth: 0 表示全部保留档位，否则取 min(maxDepth, 簿内深度上限)
	ExtractOrders(bids, asks *[]model.MBOUpdate, maxDepth int)
	// ExtractPriceLevel 提取指定价格档位的全部订单（档位不存在时输出为空）
	ExtractPriceLevel(out *[]model.MBOUpdate, side model.Side, price float64)
	// ExtractLayers 提取聚合档位行
	// 数量溢出时以 +Inf 上报，调用方须视其为“超出可表示精度”
	ExtractLayers(out *[]model.Layer, maxDepth int)

	// 查询操作

	// Exists 判断价格档位是否存在
	Exists(side model.Side, price float64) bool
	// FindIndex 返回价格档位的名次（0 = 最优价）与是否存在
	// 不存在时名次未定义，调用方必须检查第二个返回值
	FindIndex(side model.Side, price float64) (int, bool)
	// TotalQuantity 档位数量合计；档位不存在时返回 NaN（缺失不是 0）
	TotalQuantity(side model.Side, price float64) float64
	// AccumulatedQuantity 从最优价到 price 的累计数量（excludingPrice 为 true 时不含 price 本档）
	// price 无对应档位时返回 NaN
	AccumulatedQuantity(side model.Side, price float64, excludingPrice bool) float64
	// FindOrder 按订单标识查找订单；未找到时第一个返回值未定义
	FindOrder(side model.Side, orderID string) (model.MBOUpdate, bool)
	// QueuePosition 订单的队列位置；订单不存在时三个字段均为 NaN
	QueuePosition(side model.Side, orderID string) model.Position
}

// sideBook 单侧档位集合
// 树内排序为“最优价在前”：买侧价格降序，卖侧价格升序
type sideBook struct {
	side model.Side
	tree *btree.BTreeG[*priceLevel]
}

// newSideBook 创建单侧档位集合
func newSideBook(side model.Side) sideBook {
	less := func(a, b *priceLevel) bool {
		if side == model.SideBuy {
			return a.priceTicks > b.priceTicks
		}
		return a.priceTicks < b.priceTicks
	}
	return sideBook{side: side, tree: btree.NewBTreeG(less)}
}

// find 按价格 tick 查找档位
func (s *sideBook) find(priceTicks int64) (*priceLevel, bool) {
	return s.tree.Get(&priceLevel{priceTicks: priceTicks})
}

// core 订单簿缓存的共享实现
// 有界/无界两个具体变体都在它之上构建
type core struct {
	exchange string
	symbol   string

	maxDepth          uint16
	priceIncrement    float64
	quantityIncrement float64
	priceDecimals     int
	quantityDecimals  int

	streamID           uint16
	exchangeTimeUnixNs int64
	exchangeSequence   int64

	bids sideBook
	asks sideBook
	// orders 订单标识到订单的索引（标识在双侧范围内唯一）
	orders map[string]*order

	bidOrders int
	askOrders int

	checksum      uint32
	checksumDirty bool
}

// unboundedBook 无深度上限变体（max_depth = 0）
type unboundedBook struct {
	*core
}

// boundedBook 有界深度变体（max_depth > 0）
// 每次结构性变更后裁剪完全落在上限之外的最差档位
type boundedBook struct {
	*core
}

// ApplySequential 应用批次并执行深度裁剪
func (b *boundedBook) ApplySequential(bids, asks []model.MBOUpdate) error {
	if err := b.core.ApplySequential(bids, asks); err != nil {
		return err
	}
	b.core.trimDepth()
	return nil
}

// Apply 应用已归一化更新并执行深度裁剪
func (b *boundedBook) Apply(u model.MarketByOrderUpdate) error {
	if err := b.core.ApplySequential(u.Bids, u.Asks); err != nil {
		return err
	}
	b.core.trimDepth()
	b.core.setProvenance(u)
	return nil
}

// New 根据参考数据创建订单簿缓存
// 变体（有界/无界深度）在构建时选定，而非运行时继承分派
// 参数 ref: 合约参考数据
// 返回: 订单簿缓存；参考数据无效时返回 ErrConfiguration
func New(ref model.ReferenceData) (MarketByOrder, error) {
	if err := validateReferenceData(ref); err != nil {
		return nil, err
	}

	c := &core{
		exchange:          ref.Exchange,
		symbol:            ref.Symbol,
		maxDepth:          ref.MaxDepth,
		priceIncrement:    ref.PriceIncrement,
		quantityIncrement: ref.QuantityIncrement,
		priceDecimals:     ref.PriceDecimals,
		quantityDecimals:  ref.QuantityDecimals,
		bids:              newSideBook(model.SideBuy),
		asks:              newSideBook(model.SideSell),
		orders:            make(map[string]*order),
	}

	if ref.MaxDepth > 0 {
		return &boundedBook{core: c}, nil
	}
	return &unboundedBook{core: c}, nil
}

// validateReferenceData 校验参考数据合法性
// 返回: 非法时返回包装后的 ErrConfiguration
func validateReferenceData(ref model.ReferenceData) error {
	if !(ref.PriceIncrement > 0) {
		return fmt.Errorf("%w: price_increment 必须为正数，当前值: %v", ErrConfiguration, ref.PriceIncrement)
	}
	if !(ref.QuantityIncrement > 0) {
		return fmt.Errorf("%w: quantity_increment 必须为正数，当前值: %v", ErrConfiguration, ref.QuantityIncrement)
	}
	if ref.PriceDecimals < 0 {
		return fmt.Errorf("%w: price_decimals 不能为负数，当前值: %d", ErrConfiguration, ref.PriceDecimals)
	}
	if ref.QuantityDecimals < 0 {
		return fmt.Errorf("%w: quantity_decimals 不能为负数，当前值: %d", ErrConfiguration, ref.QuantityDecimals)
	}
	return nil
}

// 元数据访问

func (c *core) Exchange() string           { return c.exchange }
func (c *core) Symbol() string             { return c.symbol }
func (c *core) MaxDepth() uint16           { return c.maxDepth }
func (c *core) PriceIncrement() float64    { return c.priceIncrement }
func (c *core) QuantityIncrement() float64 { return c.quantityIncrement }
func (c *core) PriceDecimals() int         { return c.priceDecimals }
func (c *core) QuantityDecimals() int      { return c.quantityDecimals }

// 最近更新来源

func (c *core) StreamID() uint16          { return c.streamID }
func (c *core) ExchangeTimeUnixNs() int64 { return c.exchangeTimeUnixNs }
func (c *core) ExchangeSequence() int64   { return c.exchangeSequence }

// ApplyReferenceData 设置/校验参考数据
// 深度类别（有界/无界）在构建时已选定，之后不可跨类别变更；
// 增量变更会使已有订单的整数表示失效，因此仅允许在空簿上修改增量。
func (c *core) ApplyReferenceData(ref model.ReferenceData) error {
	if err := validateReferenceData(ref); err != nil {
		return err
	}
	if (c.maxDepth == 0) != (ref.MaxDepth == 0) {
		return fmt.Errorf("%w: 深度类别不可变更（当前 max_depth=%d，新值 %d）", ErrConfiguration, c.maxDepth, ref.MaxDepth)
	}
	if !c.Empty() && (ref.PriceIncrement != c.priceIncrement || ref.QuantityIncrement != c.quantityIncrement) {
		return fmt.Errorf("%w: 非空订单簿不允许修改增量", ErrConfiguration)
	}

	if ref.Exchange != "" {
		c.exchange = ref.Exchange
	}
	if ref.Symbol != "" {
		c.symbol = ref.Symbol
	}
	c.priceIncrement = ref.PriceIncrement
	c.quantityIncrement = ref.QuantityIncrement
	c.priceDecimals = ref.PriceDecimals
	c.quantityDecimals = ref.QuantityDecimals

	if ref.MaxDepth > 0 && ref.MaxDepth != c.maxDepth {
		c.maxDepth = ref.MaxDepth
		c.trimDepth()
	}
	return nil
}

// Apply 应用一个已归一化的更新（含来源信息）
// 输入应来自归一化器或已顺序一致的上游
func (c *core) Apply(u model.MarketByOrderUpdate) error {
	if err := c.ApplySequential(u.Bids, u.Asks); err != nil {
		return err
	}
	c.setProvenance(u)
	return nil
}

// setProvenance 记录最近一次更新的来源信息
func (c *core) setProvenance(u model.MarketByOrderUpdate) {
	c.streamID = u.StreamID
	if u.ExchangeTimeUnixNs != 0 {
		c.exchangeTimeUnixNs = u.ExchangeTimeUnixNs
	}
	if u.ExchangeSequence > c.exchangeSequence {
		c.exchangeSequence = u.ExchangeSequence
	}
}

// Size 返回每侧订单数 (bids, asks)
func (c *core) Size() (int, int) {
	return c.bidOrders, c.askOrders
}

// Empty 双侧均无订单时为 true
func (c *core) Empty() bool {
	return c.bidOrders == 0 && c.askOrders == 0
}

// Clear 丢弃全部档位与订单，重置校验和与来源信息
// 用于断线重连等显式重置边界
func (c *core) Clear() {
	c.bids = newSideBook(model.SideBuy)
	c.asks = newSideBook(model.SideSell)
	c.orders = make(map[string]*order)
	c.bidOrders = 0
	c.askOrders = 0
	c.checksum = 0
	c.checksumDirty = false
	c.streamID = 0
	c.exchangeTimeUnixNs = 0
	c.exchangeSequence = 0
}

// sideOf 按方向取单侧集合
func (c *core) sideOf(side model.Side) *sideBook {
	if side == model.SideBuy {
		return &c.bids
	}
	return &c.asks
}

// priceTicksOf 价格转整数表示
func (c *core) priceTicksOf(price float64) int64 {
	return int64(math.Round(price / c.priceIncrement))
}

// priceOf 整数表示转价格
func (c *core) priceOf(ticks int64) float64 {
	return float64(ticks) * c.priceIncrement
}

// qtyTicksOf 数量转整数表示
// 超出 int64 可表示范围时饱和并返回溢出标记
func (c *core) qtyTicksOf(qty float64) (int64, bool) {
	r := math.Round(qty / c.quantityIncrement)
	if r >= float64(math.MaxInt64) {
		return math.MaxInt64, true
	}
	return int64(r), false
}

// qtyOf 整数表示转数量
func (c *core) qtyOf(ticks int64) float64 {
	return float64(ticks) * c.quantityIncrement
}
