// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"math"

	"mbo-book-cache/internal/core/model"
)

// Exists 判断价格档位是否存在
func (c *core) Exists(side model.Side, price float64) bool {
	_, found := c.sideOf(side).find(c.priceTicksOf(price))
	return found
}

// FindIndex 返回价格档位的名次与是否存在
// 名次 0 = 最优价；档位不存在时名次未定义（返回 0, false），调用方必须检查标志位
func (c *core) FindIndex(side model.Side, price float64) (int, bool) {
	pt := c.priceTicksOf(price)
	idx := 0
	found := false
	c.sideOf(side).tree.Scan(func(lvl *priceLevel) bool {
		if lvl.priceTicks == pt {
			found = true
			return false
		}
		idx++
		return true
	})
	if !found {
		return 0, false
	}
	return idx, true
}

// TotalQuantity 档位数量合计
// 返回: 合计数量；档位不存在时为 NaN——缺失不是 0，而是“无数据”
func (c *core) TotalQuantity(side model.Side, price float64) float64 {
	lvl, found := c.sideOf(side).find(c.priceTicksOf(price))
	if !found {
		return math.NaN()
	}
	return lvl.quantity(c.quantityIncrement)
}

// AccumulatedQuantity 从最优价到 price 的累计数量
// 参数 excludingPrice: 为 true 时不含 price 本档
// 返回: 累计数量；price 无对应档位时为 NaN；累加溢出时为 +Inf
func (c *core) AccumulatedQuantity(side model.Side, price float64, excludingPrice bool) float64 {
	pt := c.priceTicksOf(price)
	s := c.sideOf(side)
	if _, found := s.find(pt); !found {
		return math.NaN()
	}

	var sumTicks int64
	overflow := false
	s.tree.Scan(func(lvl *priceLevel) bool {
		if lvl.priceTicks == pt {
			if !excludingPrice {
				sum, ovf := addTicks(sumTicks, lvl.totalQtyTicks)
				sumTicks = sum
				overflow = overflow || ovf || lvl.overflow
			}
			return false
		}
		sum, ovf := addTicks(sumTicks, lvl.totalQtyTicks)
		sumTicks = sum
		overflow = overflow || ovf || lvl.overflow
		return true
	})

	if overflow {
		return math.Inf(1)
	}
	return c.qtyOf(sumTicks)
}

// FindOrder 按订单标识查找订单
// 返回: 订单的 MBOUpdate 表示与是否存在；未找到时第一个返回值未定义
func (c *core) FindOrder(side model.Side, orderID string) (model.MBOUpdate, bool) {
	o, ok := c.orders[orderID]
	if !ok || o.side != side {
		return model.MBOUpdate{}, false
	}
	return model.MBOUpdate{
		OrderID:  o.id,
		Side:     o.side,
		Price:    c.priceOf(o.priceTicks),
		Quantity: c.qtyOf(o.qtyTicks),
		Action:   model.ActionCreate,
	}, true
}

// QueuePosition 订单的队列位置
// 返回: 订单自身数量、同档位中排在其前的数量合计（FIFO 优先级）、档位总数量；
// 订单不存在时三个字段均为 NaN
func (c *core) QueuePosition(side model.Side, orderID string) model.Position {
	o, ok := c.orders[orderID]
	if !ok || o.side != side {
		return model.EmptyPosition()
	}

	lvl, found := c.sideOf(side).find(o.priceTicks)
	if !found {
		return model.EmptyPosition()
	}

	var beforeTicks int64
	beforeOverflow := false
	for _, cur := range lvl.orders {
		if cur == o {
			break
		}
		sum, ovf := addTicks(beforeTicks, cur.qtyTicks)
		beforeTicks = sum
		beforeOverflow = beforeOverflow || ovf
	}

	before := c.qtyOf(beforeTicks)
	if beforeOverflow {
		before = math.Inf(1)
	}
	return model.Position{
		Quantity: c.qtyOf(o.qtyTicks),
		Before:   before,
		Total:    lvl.quantity(c.quantityIncrement),
	}
}
