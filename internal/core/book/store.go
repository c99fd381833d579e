// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"fmt"

	"mbo-book-cache/internal/core/model"
)

// ApplySequential 应用一个已排序、已一致的更新批次
// create 在档位队尾插入新订单（档位不存在则按排序位置创建）；
// modify 价格不变时原地替换数量、保留队列位置，价格变化时等价于 cancel+create；
// cancel 移除订单，档位变空时立即删除档位。
// 返回: modify/cancel 引用不存在订单时为 ErrUnknownOrder，create 重复标识时为 ErrDuplicateOrder
func (c *core) ApplySequential(bids, asks []model.MBOUpdate) error {
	for i := range bids {
		if err := c.applyOne(model.SideBuy, bids[i]); err != nil {
			return err
		}
	}
	for i := range asks {
		if err := c.applyOne(model.SideSell, asks[i]); err != nil {
			return err
		}
	}
	return nil
}

// applyOne 应用单条更新
// 参数 side: 批次所属方向（条目自带的 Side 字段以批次为准）
func (c *core) applyOne(side model.Side, u model.MBOUpdate) error {
	switch u.Action {
	case model.ActionCreate:
		return c.createOrder(side, u)
	case model.ActionModify:
		return c.modifyOrder(side, u)
	case model.ActionCancel:
		return c.cancelOrder(side, u)
	default:
		return fmt.Errorf("%w: 未知操作 %q (order_id=%s)", ErrInvalidUpdate, u.Action, u.OrderID)
	}
}

// createOrder 新建订单并入队档位队尾
func (c *core) createOrder(side model.Side, u model.MBOUpdate) error {
	if u.OrderID == "" {
		return fmt.Errorf("%w: create 缺少订单标识", ErrInvalidUpdate)
	}
	if _, ok := c.orders[u.OrderID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, u.OrderID)
	}
	if !(u.Quantity > 0) {
		return fmt.Errorf("%w: create 数量必须为正数 (order_id=%s, quantity=%v)", ErrInvalidUpdate, u.OrderID, u.Quantity)
	}

	pt := c.priceTicksOf(u.Price)
	qt, ovf := c.qtyTicksOf(u.Quantity)

	o := &order{
		id:         u.OrderID,
		side:       side,
		priceTicks: pt,
		qtyTicks:   qt,
	}

	s := c.sideOf(side)
	lvl, found := s.find(pt)
	if !found {
		lvl = &priceLevel{priceTicks: pt, price: c.priceOf(pt)}
		s.tree.Set(lvl)
	}
	lvl.enqueue(o)
	if ovf {
		lvl.overflow = true
	}

	c.orders[u.OrderID] = o
	c.addCount(side, 1)
	c.checksumDirty = true
	return nil
}

// modifyOrder 修改订单数量
// 价格不变时原地替换、保留队列位置；价格变化时移到新档位队尾（cancel+create 语义）；
// 修改后数量非正视为撤单。
func (c *core) modifyOrder(side model.Side, u model.MBOUpdate) error {
	o, ok := c.orders[u.OrderID]
	if !ok || o.side != side {
		return fmt.Errorf("%w: modify %s 侧 %s", ErrUnknownOrder, side, u.OrderID)
	}

	if !(u.Quantity > 0) {
		return c.cancelOrder(side, model.MBOUpdate{OrderID: u.OrderID, Action: model.ActionCancel})
	}

	// 价格为 0 表示本次修改不涉及价格变化
	pt := o.priceTicks
	if u.Price != 0 {
		pt = c.priceTicksOf(u.Price)
	}
	qt, ovf := c.qtyTicksOf(u.Quantity)
	s := c.sideOf(side)

	if pt == o.priceTicks {
		lvl, found := s.find(pt)
		if !found {
			// 订单索引与档位树不一致，属内部损坏
			return fmt.Errorf("%w: modify 订单所在档位缺失 (order_id=%s)", ErrUnknownOrder, u.OrderID)
		}
		lvl.setQuantity(o, qt)
		if ovf {
			lvl.overflow = true
		}
		c.checksumDirty = true
		return nil
	}

	// 价格变化: 从旧档位移除，移入新档位队尾
	c.unlink(s, o)
	o.priceTicks = pt
	o.qtyTicks = qt

	lvl, found := s.find(pt)
	if !found {
		lvl = &priceLevel{priceTicks: pt, price: c.priceOf(pt)}
		s.tree.Set(lvl)
	}
	lvl.enqueue(o)
	if ovf {
		lvl.overflow = true
	}
	c.checksumDirty = true
	return nil
}

// cancelOrder 撤销订单
// 档位变空时立即删除档位
func (c *core) cancelOrder(side model.Side, u model.MBOUpdate) error {
	o, ok := c.orders[u.OrderID]
	if !ok || o.side != side {
		return fmt.Errorf("%w: cancel %s 侧 %s", ErrUnknownOrder, side, u.OrderID)
	}

	c.unlink(c.sideOf(side), o)
	delete(c.orders, u.OrderID)
	c.addCount(side, -1)
	c.checksumDirty = true
	return nil
}

// unlink 将订单从其所在档位移除，空档位随即从树中删除
func (c *core) unlink(s *sideBook, o *order) {
	lvl, found := s.find(o.priceTicks)
	if !found {
		return
	}
	lvl.remove(o)
	if len(lvl.orders) == 0 {
		s.tree.Delete(lvl)
	}
}

// addCount 调整单侧订单计数
func (c *core) addCount(side model.Side, delta int) {
	if side == model.SideBuy {
		c.bidOrders += delta
	} else {
		c.askOrders += delta
	}
}

// trimDepth 裁剪完全落在深度上限之外的最差档位
// 仅驱逐插入后整体位于 top max_depth 之外的档位，上限内的订单绝不被驱逐
func (c *core) trimDepth() {
	if c.maxDepth == 0 {
		return
	}
	c.trimSide(&c.bids)
	c.trimSide(&c.asks)
}

// trimSide 裁剪单侧超出上限的最差档位
func (c *core) trimSide(s *sideBook) {
	for s.tree.Len() > int(c.maxDepth) {
		lvl, ok := s.tree.PopMax()
		if !ok {
			return
		}
		for _, o := range lvl.orders {
			delete(c.orders, o.id)
			c.addCount(s.side, -1)
		}
		c.checksumDirty = true
	}
}
