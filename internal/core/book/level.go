// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"mbo-book-cache/internal/core/model"
)

// order 单笔挂单的内部表示
// 创建后除数量（modify）外不可变，直到被移除
type order struct {
	// id 订单标识（双侧范围内唯一）
	id string
	// side 订单方向
	side model.Side
	// priceTicks 价格的整数表示（price / price_increment，四舍五入）
	priceTicks int64
	// qtyTicks 数量的整数表示（quantity / quantity_increment，四舍五入）
	qtyTicks int64
}

// priceLevel 单个价格档位
// orders 按到达顺序排列（先到先成交的队列优先级）
// 不变量: 档位存在则至少含 1 笔订单，空档位立即从树中删除
type priceLevel struct {
	// priceTicks 价格的整数表示（树的排序键）
	priceTicks int64
	// price 价格的浮点表示
	price float64
	// orders 档位内订单队列（到达顺序 = 队列优先级）
	orders []*order
	// totalQtyTicks 档位数量合计（int64 tick 累加器，溢出时饱和）
	totalQtyTicks int64
	// overflow 数量累加是否已超出 int64 可表示范围
	// 置位后对外数量上报为 +Inf
	overflow bool
	// hash 档位内订单哈希的异或折叠
	// 异或使档位内哈希与订单顺序无关，单笔增删改可 O(1) 增量维护
	hash uint64
}

// orderHash 计算单笔订单的校验哈希
// 覆盖订单标识与数量 tick，FNV-64a
func orderHash(id string, qtyTicks int64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(qtyTicks))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// addTicks 带饱和的 tick 加法
// 返回: 和与是否溢出；溢出时饱和在 math.MaxInt64
func addTicks(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return math.MaxInt64, true
	}
	return a + b, false
}

// enqueue 将订单追加到档位队尾
// 维护数量合计（含溢出饱和）与档位哈希
func (l *priceLevel) enqueue(o *order) {
	l.orders = append(l.orders, o)
	sum, ovf := addTicks(l.totalQtyTicks, o.qtyTicks)
	l.totalQtyTicks = sum
	if ovf {
		l.overflow = true
	}
	l.hash ^= orderHash(o.id, o.qtyTicks)
}

// remove 将订单从档位中移除（保持其余订单的相对顺序）
// 返回: 是否找到并移除
func (l *priceLevel) remove(o *order) bool {
	for i, cur := range l.orders {
		if cur == o {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			l.hash ^= orderHash(o.id, o.qtyTicks)
			if l.overflow {
				// 溢出后合计不可逆向递减，重扫恢复精确值
				l.recomputeTotals()
			} else {
				l.totalQtyTicks -= o.qtyTicks
			}
			return true
		}
	}
	return false
}

// setQuantity 原地修改订单数量，不改变队列位置
func (l *priceLevel) setQuantity(o *order, qtyTicks int64) {
	l.hash ^= orderHash(o.id, o.qtyTicks)
	old := o.qtyTicks
	o.qtyTicks = qtyTicks
	l.hash ^= orderHash(o.id, o.qtyTicks)

	if l.overflow {
		l.recomputeTotals()
		return
	}
	l.totalQtyTicks -= old
	sum, ovf := addTicks(l.totalQtyTicks, qtyTicks)
	l.totalQtyTicks = sum
	if ovf {
		l.overflow = true
	}
}

// recomputeTotals 重扫档位恢复数量合计与溢出标记
// 仅在溢出标记置位后的增删改路径触发
func (l *priceLevel) recomputeTotals() {
	l.totalQtyTicks = 0
	l.overflow = false
	for _, o := range l.orders {
		sum, ovf := addTicks(l.totalQtyTicks, o.qtyTicks)
		l.totalQtyTicks = sum
		if ovf {
			l.overflow = true
		}
	}
}

// quantity 档位数量合计的浮点表示
// 参数 qtyIncrement: 数量换算因子
// 返回: 合计数量；累加溢出时为 +Inf（表示超出可表示精度，并非真实市场数量）
func (l *priceLevel) quantity(qtyIncrement float64) float64 {
	if l.overflow {
		return math.Inf(1)
	}
	return float64(l.totalQtyTicks) * qtyIncrement
}
