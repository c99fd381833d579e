// Package integrity 维护订单簿数据完整性的咨询性计数器。
// 序列号回退、批内重复、未知订单丢弃、校验和不一致等状况
// 不中断调用方的更新循环，通过计数器旁路上报。
package integrity

import "sync/atomic"

// Counters 完整性计数器
// 写入方为归一化器所在的单一 goroutine，读取方（指标输出）可并发快照
type Counters struct {
	// updatesApplied 已接受并应用的更新批次数
	updatesApplied atomic.Int64
	// snapshotsApplied 已应用的全量快照数
	snapshotsApplied atomic.Int64
	// sequenceRegressions 因序列号未递增而丢弃的更新批次数
	sequenceRegressions atomic.Int64
	// duplicatesDropped 批内按 (order_id, action) 去重丢弃的条目数
	duplicatesDropped atomic.Int64
	// unknownOrdersDropped 引用未知订单而丢弃的撤单/修改条目数
	unknownOrdersDropped atomic.Int64
	// implicitCancels 快照重同步时合成的隐式撤单数
	implicitCancels atomic.Int64
	// checksumMismatches 与外部校验和不一致的次数
	checksumMismatches atomic.Int64
}

// Stats 计数器快照
type Stats struct {
	// UpdatesApplied 已接受并应用的更新批次数
	UpdatesApplied int64 `json:"updates_applied"`
	// SnapshotsApplied 已应用的全量快照数
	SnapshotsApplied int64 `json:"snapshots_applied"`
	// SequenceRegressions 序列号回退丢弃数
	SequenceRegressions int64 `json:"sequence_regressions"`
	// DuplicatesDropped 批内重复丢弃数
	DuplicatesDropped int64 `json:"duplicates_dropped"`
	// UnknownOrdersDropped 未知订单丢弃数
	UnknownOrdersDropped int64 `json:"unknown_orders_dropped"`
	// ImplicitCancels 合成隐式撤单数
	ImplicitCancels int64 `json:"implicit_cancels"`
	// ChecksumMismatches 校验和不一致次数
	ChecksumMismatches int64 `json:"checksum_mismatches"`
}

// UpdateApplied 记录一次已应用的更新批次
func (c *Counters) UpdateApplied() { c.updatesApplied.Add(1) }

// SnapshotApplied 记录一次已应用的全量快照
func (c *Counters) SnapshotApplied() { c.snapshotsApplied.Add(1) }

// SequenceRegression 记录一次序列号回退丢弃
func (c *Counters) SequenceRegression() { c.sequenceRegressions.Add(1) }

// DuplicateDropped 记录一条批内重复丢弃
func (c *Counters) DuplicateDropped() { c.duplicatesDropped.Add(1) }

// UnknownOrderDropped 记录一条未知订单丢弃
func (c *Counters) UnknownOrderDropped() { c.unknownOrdersDropped.Add(1) }

// ImplicitCancel 记录若干条合成隐式撤单
func (c *Counters) ImplicitCancel(n int) { c.implicitCancels.Add(int64(n)) }

// ChecksumMismatch 记录一次校验和不一致
func (c *Counters) ChecksumMismatch() { c.checksumMismatches.Add(1) }

// Snapshot 返回计数器快照
func (c *Counters) Snapshot() Stats {
	return Stats{
		UpdatesApplied:       c.updatesApplied.Load(),
		SnapshotsApplied:     c.snapshotsApplied.Load(),
		SequenceRegressions:  c.sequenceRegressions.Load(),
		DuplicatesDropped:    c.duplicatesDropped.Load(),
		UnknownOrdersDropped: c.unknownOrdersDropped.Load(),
		ImplicitCancels:      c.implicitCancels.Load(),
		ChecksumMismatches:   c.checksumMismatches.Load(),
	}
}
