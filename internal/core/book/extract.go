// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"mbo-book-cache/internal/core/model"
)

// effectiveDepth 计算提取深度
// 参数 maxDepth: 0 表示全部保留档位，否则与簿内深度上限取较小值
// 返回: 档位数量上限，0 表示不限制
func (c *core) effectiveDepth(maxDepth int) int {
	if maxDepth <= 0 {
		return int(c.maxDepth)
	}
	if c.maxDepth > 0 && int(c.maxDepth) < maxDepth {
		return int(c.maxDepth)
	}
	return maxDepth
}

// ExtractOrders 提取逐笔订单快照
// 输出按“最优价在前、档位内到达顺序”排列，条目操作类型为 create
func (c *core) ExtractOrders(bids, asks *[]model.MBOUpdate, maxDepth int) {
	depth := c.effectiveDepth(maxDepth)
	*bids = c.extractSide((*bids)[:0], &c.bids, depth)
	*asks = c.extractSide((*asks)[:0], &c.asks, depth)
}

// extractSide 提取单侧订单
func (c *core) extractSide(out []model.MBOUpdate, s *sideBook, depth int) []model.MBOUpdate {
	n := 0
	s.tree.Scan(func(lvl *priceLevel) bool {
		if depth > 0 && n >= depth {
			return false
		}
		for _, o := range lvl.orders {
			out = append(out, model.MBOUpdate{
				OrderID:  o.id,
				Side:     o.side,
				Price:    lvl.price,
				Quantity: c.qtyOf(o.qtyTicks),
				Action:   model.ActionCreate,
			})
		}
		n++
		return true
	})
	return out
}

// ExtractPriceLevel 提取指定价格档位的全部订单
// 档位不存在时输出为空
func (c *core) ExtractPriceLevel(out *[]model.MBOUpdate, side model.Side, price float64) {
	*out = (*out)[:0]
	lvl, found := c.sideOf(side).find(c.priceTicksOf(price))
	if !found {
		return
	}
	for _, o := range lvl.orders {
		*out = append(*out, model.MBOUpdate{
			OrderID:  o.id,
			Side:     o.side,
			Price:    lvl.price,
			Quantity: c.qtyOf(o.qtyTicks),
			Action:   model.ActionCreate,
		})
	}
}

// ExtractLayers 提取聚合档位行
// 第 i 行对应买卖双方各自第 i 优的档位，某侧档位不足时该侧字段为零值；
// 档位数量累加溢出时以 +Inf 上报，调用方须视其为“超出可表示精度”而非真实市场数量
func (c *core) ExtractLayers(out *[]model.Layer, maxDepth int) {
	depth := c.effectiveDepth(maxDepth)
	*out = (*out)[:0]

	type row struct {
		price    float64
		quantity float64
		orders   int
	}
	gather := func(s *sideBook) []row {
		var rows []row
		s.tree.Scan(func(lvl *priceLevel) bool {
			if depth > 0 && len(rows) >= depth {
				return false
			}
			rows = append(rows, row{
				price:    lvl.price,
				quantity: lvl.quantity(c.quantityIncrement),
				orders:   len(lvl.orders),
			})
			return true
		})
		return rows
	}

	bidRows := gather(&c.bids)
	askRows := gather(&c.asks)

	n := len(bidRows)
	if len(askRows) > n {
		n = len(askRows)
	}
	for i := 0; i < n; i++ {
		var layer model.Layer
		if i < len(bidRows) {
			layer.BidPrice = bidRows[i].price
			layer.BidQuantity = bidRows[i].quantity
			layer.BidOrders = bidRows[i].orders
		}
		if i < len(askRows) {
			layer.AskPrice = askRows[i].price
			layer.AskQuantity = askRows[i].quantity
			layer.AskOrders = askRows[i].orders
		}
		*out = append(*out, layer)
	}
}
