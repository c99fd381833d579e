// Package normalize 归一化器测试
package normalize

import (
	"testing"

	"mbo-book-cache/internal/core/book"
	"mbo-book-cache/internal/core/model"
	"mbo-book-cache/internal/stats/integrity"
)

// testRef 构造测试用参考数据
func testRef() model.ReferenceData {
	return model.ReferenceData{
		Exchange:          "bitfinex",
		Symbol:            "BTCUSD",
		PriceIncrement:    0.01,
		QuantityIncrement: 0.01,
		PriceDecimals:     2,
		QuantityDecimals:  2,
	}
}

// newTestNormalizer 创建归一化器及其订单簿与计数器
func newTestNormalizer(t *testing.T) (*Normalizer, book.MarketByOrder, *integrity.Counters) {
	t.Helper()
	b, err := book.New(testRef())
	if err != nil {
		t.Fatalf("book.New: %v", err)
	}
	counters := &integrity.Counters{}
	return New(b, counters), b, counters
}

// entry 构造原始条目
func entry(id string, side model.Side, price, qty float64, action model.Action) model.MBOUpdate {
	return model.MBOUpdate{OrderID: id, Side: side, Price: price, Quantity: qty, Action: action}
}

// mustNormalize 归一化并断言被应用
func mustNormalize(t *testing.T, n *Normalizer, u model.MarketByOrderUpdate) model.MarketByOrderUpdate {
	t.Helper()
	var bids, asks []model.MBOUpdate
	out, applied, err := n.Normalize(u, &bids, &asks)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !applied {
		t.Fatal("更新未被应用")
	}
	return out
}

// TestNormalizer_SequenceRegression 序列号回退的批次整体丢弃
// 簿内状态不变，通过计数器上报而不产生错误
func TestNormalizer_SequenceRegression(t *testing.T) {
	n, b, counters := newTestNormalizer(t)

	mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)},
		ExchangeSequence: 10,
	})
	csBefore := b.Checksum()

	for _, seq := range []int64{10, 5} {
		var bids, asks []model.MBOUpdate
		_, applied, err := n.Normalize(model.MarketByOrderUpdate{
			Bids:             []model.MBOUpdate{entry("O2", model.SideBuy, 99, 1, model.ActionCreate)},
			ExchangeSequence: seq,
		}, &bids, &asks)
		if err != nil {
			t.Fatalf("Normalize(seq=%d): %v", seq, err)
		}
		if applied {
			t.Fatalf("seq=%d 的回退批次被应用", seq)
		}
	}

	if b.Checksum() != csBefore {
		t.Fatal("回退批次改变了簿内状态")
	}
	if got := counters.Snapshot().SequenceRegressions; got != 2 {
		t.Fatalf("SequenceRegressions = %d, want 2", got)
	}
	if b.ExchangeSequence() != 10 {
		t.Fatalf("ExchangeSequence = %d, want 10", b.ExchangeSequence())
	}
}

// TestNormalizer_BatchDeduplication 批内 (order_id, action) 去重
func TestNormalizer_BatchDeduplication(t *testing.T) {
	n, b, counters := newTestNormalizer(t)

	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids: []model.MBOUpdate{
			entry("O1", model.SideBuy, 100, 5, model.ActionCreate),
			entry("O1", model.SideBuy, 100, 5, model.ActionCreate), // 重复
		},
		ExchangeSequence: 1,
	})

	if len(out.Bids) != 1 {
		t.Fatalf("归一化后条目数 = %d, want 1", len(out.Bids))
	}
	if got := counters.Snapshot().DuplicatesDropped; got != 1 {
		t.Fatalf("DuplicatesDropped = %d, want 1", got)
	}
	if got := b.TotalQuantity(model.SideBuy, 100); got != 5 {
		t.Fatalf("TotalQuantity = %v, want 5", got)
	}
}

// TestNormalizer_CreateOfKnownOrder 已存在订单的 create 降级为 modify
// Bitfinex R0 不区分新建与修改，统一由归一化器对账
func TestNormalizer_CreateOfKnownOrder(t *testing.T) {
	n, b, _ := newTestNormalizer(t)

	mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)},
		ExchangeSequence: 1,
	})

	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 3, model.ActionCreate)},
		ExchangeSequence: 2,
	})

	if len(out.Bids) != 1 || out.Bids[0].Action != model.ActionModify {
		t.Fatalf("归一化结果 = %+v, want 单条 modify", out.Bids)
	}
	if got := b.TotalQuantity(model.SideBuy, 100); got != 3 {
		t.Fatalf("TotalQuantity = %v, want 3", got)
	}

	// 完全相同的重复 create 整体省略
	out = mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 3, model.ActionCreate)},
		ExchangeSequence: 3,
	})
	if len(out.Bids) != 0 {
		t.Fatalf("无变化条目未被省略: %+v", out.Bids)
	}
}

// TestNormalizer_ModifyOfUnknownOrder 未知订单的 modify 升级为 create
func TestNormalizer_ModifyOfUnknownOrder(t *testing.T) {
	n, b, counters := newTestNormalizer(t)

	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Asks:             []model.MBOUpdate{entry("O1", model.SideSell, 101, 2, model.ActionModify)},
		ExchangeSequence: 1,
	})
	if len(out.Asks) != 1 || out.Asks[0].Action != model.ActionCreate {
		t.Fatalf("归一化结果 = %+v, want 单条 create", out.Asks)
	}
	if got := b.TotalQuantity(model.SideSell, 101); got != 2 {
		t.Fatalf("TotalQuantity = %v, want 2", got)
	}

	// 未知订单且数量非正的 modify 丢弃并计数
	out = mustNormalize(t, n, model.MarketByOrderUpdate{
		Asks:             []model.MBOUpdate{entry("O2", model.SideSell, 101, 0, model.ActionModify)},
		ExchangeSequence: 2,
	})
	if len(out.Asks) != 0 {
		t.Fatalf("非法 modify 未被丢弃: %+v", out.Asks)
	}
	if got := counters.Snapshot().UnknownOrdersDropped; got != 1 {
		t.Fatalf("UnknownOrdersDropped = %d, want 1", got)
	}
}

// TestNormalizer_CancelOfUnknownOrder 未知订单的 cancel 丢弃并计数
func TestNormalizer_CancelOfUnknownOrder(t *testing.T) {
	n, _, counters := newTestNormalizer(t)

	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("ghost", model.SideBuy, 0, 0, model.ActionCancel)},
		ExchangeSequence: 1,
	})
	if len(out.Bids) != 0 {
		t.Fatalf("未知撤单未被丢弃: %+v", out.Bids)
	}
	if got := counters.Snapshot().UnknownOrdersDropped; got != 1 {
		t.Fatalf("UnknownOrdersDropped = %d, want 1", got)
	}
}

// TestNormalizer_ModifyToZeroBecomesCancel 数量归零的 modify 转为 cancel
func TestNormalizer_ModifyToZeroBecomesCancel(t *testing.T) {
	n, b, _ := newTestNormalizer(t)

	mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)},
		ExchangeSequence: 1,
	})
	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 0, model.ActionModify)},
		ExchangeSequence: 2,
	})

	if len(out.Bids) != 1 || out.Bids[0].Action != model.ActionCancel {
		t.Fatalf("归一化结果 = %+v, want 单条 cancel", out.Bids)
	}
	if !b.Empty() {
		t.Fatal("归零后订单簿应为空")
	}
}

// TestNormalizer_SnapshotResync 快照是权威状态
// 簿内存在而快照缺失的订单合成隐式撤单，差异转为最小 create/modify 序列
func TestNormalizer_SnapshotResync(t *testing.T) {
	n, b, counters := newTestNormalizer(t)

	mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids: []model.MBOUpdate{
			entry("keep", model.SideBuy, 100, 5, model.ActionCreate),
			entry("gone", model.SideBuy, 99, 3, model.ActionCreate),
		},
		ExchangeSequence: 1,
	})

	// 快照: keep 数量变化，gone 消失，fresh 新增
	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids: []model.MBOUpdate{
			entry("keep", model.SideBuy, 100, 7, model.ActionCreate),
			entry("fresh", model.SideBuy, 98, 1, model.ActionCreate),
		},
		UpdateType:       model.UpdateTypeSnapshot,
		ExchangeSequence: 2,
	})

	if out.UpdateType != model.UpdateTypeSnapshot {
		t.Fatalf("UpdateType = %v, want snapshot", out.UpdateType)
	}

	// 归一化序列: cancel(gone) + modify(keep) + create(fresh)
	actions := map[string]model.Action{}
	for _, e := range out.Bids {
		actions[e.OrderID] = e.Action
	}
	if actions["gone"] != model.ActionCancel {
		t.Errorf("gone 的操作 = %v, want cancel", actions["gone"])
	}
	if actions["keep"] != model.ActionModify {
		t.Errorf("keep 的操作 = %v, want modify", actions["keep"])
	}
	if actions["fresh"] != model.ActionCreate {
		t.Errorf("fresh 的操作 = %v, want create", actions["fresh"])
	}

	// 簿内状态与快照一致
	if b.Exists(model.SideBuy, 99) {
		t.Error("gone 所在档位仍存在")
	}
	if got := b.TotalQuantity(model.SideBuy, 100); got != 7 {
		t.Errorf("keep 档位数量 = %v, want 7", got)
	}
	if got := b.TotalQuantity(model.SideBuy, 98); got != 1 {
		t.Errorf("fresh 档位数量 = %v, want 1", got)
	}

	stats := counters.Snapshot()
	if stats.ImplicitCancels != 1 {
		t.Errorf("ImplicitCancels = %d, want 1", stats.ImplicitCancels)
	}
	if stats.SnapshotsApplied != 1 {
		t.Errorf("SnapshotsApplied = %d, want 1", stats.SnapshotsApplied)
	}
}

// TestNormalizer_ChecksumMismatch 校验和不一致仅计数，不中断更新循环
func TestNormalizer_ChecksumMismatch(t *testing.T) {
	n, b, counters := newTestNormalizer(t)

	// 在同配置的影子簿上预演，取应用后的真实校验和
	shadow, err := book.New(testRef())
	if err != nil {
		t.Fatalf("book.New: %v", err)
	}
	if err := shadow.ApplySequential([]model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)}, nil); err != nil {
		t.Fatalf("shadow: %v", err)
	}

	var bids, asks []model.MBOUpdate
	_, applied, err := n.Normalize(model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)},
		ExchangeSequence: 1,
		Checksum:         shadow.Checksum() + 1, // 必然不一致
	}, &bids, &asks)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !applied {
		t.Fatal("更新应被应用")
	}
	if got := counters.Snapshot().ChecksumMismatches; got != 1 {
		t.Fatalf("ChecksumMismatches = %d, want 1", got)
	}
	if b.Empty() {
		t.Fatal("校验和不一致不应阻止应用")
	}
}

// TestNormalizer_CreateSnapshot 由簿内状态生成可重放的全量快照
func TestNormalizer_CreateSnapshot(t *testing.T) {
	n, b, _ := newTestNormalizer(t)

	mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids: []model.MBOUpdate{
			entry("B1", model.SideBuy, 100, 5, model.ActionCreate),
			entry("B2", model.SideBuy, 99, 3, model.ActionCreate),
		},
		Asks: []model.MBOUpdate{
			entry("A1", model.SideSell, 101, 2, model.ActionCreate),
		},
		StreamID:         7,
		ExchangeSequence: 42,
	})

	var bids, asks []model.MBOUpdate
	snap := n.CreateSnapshot(&bids, &asks)

	if snap.UpdateType != model.UpdateTypeSnapshot {
		t.Fatalf("UpdateType = %v, want snapshot", snap.UpdateType)
	}
	if snap.ExchangeSequence != 42 || snap.StreamID != 7 {
		t.Fatalf("来源信息 = seq %d stream %d, want 42/7", snap.ExchangeSequence, snap.StreamID)
	}
	if snap.Checksum != b.Checksum() {
		t.Fatalf("快照校验和 = %d, want %d", snap.Checksum, b.Checksum())
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("快照条目数 = %d/%d, want 2/1", len(snap.Bids), len(snap.Asks))
	}

	// 快照可重放到同配置空簿，得到相同校验和
	replay, err := book.New(testRef())
	if err != nil {
		t.Fatalf("book.New: %v", err)
	}
	if err := replay.ApplySequential(snap.Bids, snap.Asks); err != nil {
		t.Fatalf("重放失败: %v", err)
	}
	if replay.Checksum() != b.Checksum() {
		t.Fatalf("重放校验和 = %d, want %d", replay.Checksum(), b.Checksum())
	}
}

// TestNormalizer_OutputIdentity 归一化输出携带簿内合约标识
func TestNormalizer_OutputIdentity(t *testing.T) {
	n, _, _ := newTestNormalizer(t)

	out := mustNormalize(t, n, model.MarketByOrderUpdate{
		Bids:             []model.MBOUpdate{entry("O1", model.SideBuy, 100, 5, model.ActionCreate)},
		ExchangeSequence: 1,
		// 上游未标注批次类型时按增量处理
	})

	if out.Exchange != "bitfinex" || out.Symbol != "BTCUSD" {
		t.Errorf("标识 = %s/%s, want bitfinex/BTCUSD", out.Exchange, out.Symbol)
	}
	if out.UpdateType != model.UpdateTypeIncremental {
		t.Errorf("UpdateType = %v, want incremental", out.UpdateType)
	}
}
