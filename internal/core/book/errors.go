// Package book 实现单合约的 market-by-order 订单簿缓存。
// 存储层跟踪双侧每一笔挂单，提供快照/差量提取、聚合查询与校验和计算。
package book

import "errors"

// 错误分类
// 结构性损坏（参考数据无效、订单不存在）在检测点同步返回给调用方；
// 咨询性状况（序列号回退、校验和不一致、精度溢出）通过计数器与哨兵值旁路上报。
var (
	// ErrConfiguration 参考数据无效（非正增量、负精度、深度类别冲突）
	// 对订单簿构建是致命错误，调用方必须提供修正后的元数据
	ErrConfiguration = errors.New("参考数据无效")

	// ErrUnknownOrder modify/cancel 引用了指定侧不存在的订单
	// 表明上游数据流损坏，上报给调用方而非静默忽略
	ErrUnknownOrder = errors.New("订单不存在")

	// ErrDuplicateOrder create 引用了已存在的订单标识
	// 订单标识在双侧范围内必须唯一
	ErrDuplicateOrder = errors.New("订单已存在")

	// ErrInvalidUpdate 更新条目本身非法（未知操作、非正数量的新建）
	ErrInvalidUpdate = errors.New("更新条目无效")
)
