// Package book 实现单合约的 market-by-order 订单簿缓存。
package book

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum 当前可见状态的确定性校验和
// 覆盖范围与交易所校验和一致：max_depth 限定内的档位（无界时为全部档位）。
// 档位哈希（订单哈希的异或）随每次增删改 O(1) 增量维护；
// 跨档位折叠采用脏标记延迟重算，均摊到每次更新为常数代价。
// 与外部提供值不一致时由调用方上报并触发快照重同步，引擎绝不自行纠正。
func (c *core) Checksum() uint32 {
	if c.checksumDirty {
		c.checksum = c.computeChecksum()
		c.checksumDirty = false
	}
	return c.checksum
}

// computeChecksum 按“买侧最优到最差、再卖侧最优到最差”的顺序折叠档位哈希
// 折叠输入包含价格 tick，使结果对档位价格顺序敏感
func (c *core) computeChecksum() uint32 {
	h := crc32.NewIEEE()
	var buf [16]byte

	fold := func(s *sideBook) {
		depth := 0
		s.tree.Scan(func(lvl *priceLevel) bool {
			if c.maxDepth > 0 && depth >= int(c.maxDepth) {
				return false
			}
			binary.LittleEndian.PutUint64(buf[:8], uint64(lvl.priceTicks))
			binary.LittleEndian.PutUint64(buf[8:], lvl.hash)
			_, _ = h.Write(buf[:])
			depth++
			return true
		})
	}

	fold(&c.bids)
	fold(&c.asks)
	return h.Sum32()
}
