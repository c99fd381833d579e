// Package model 定义订单簿缓存引擎使用的核心数据结构。
// 包含买卖方向、操作类型、逐笔订单更新、聚合档位等核心类型。
package model

// Side 订单方向
type Side uint8

const (
	// SideUndefined 未定义方向（非法输入的回退值）
	SideUndefined Side = iota
	// SideBuy 买方向（bid）
	SideBuy
	// SideSell 卖方向（ask）
	SideSell
)

// sideNames Side 到字符串的映射表
// 枚举集合固定且很小，使用手写表而非反射
var sideNames = [...]string{
	SideUndefined: "undefined",
	SideBuy:       "buy",
	SideSell:      "sell",
}

// String 返回方向的字符串表示
func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return "undefined"
}

// Valid 判断方向是否为有效值（buy 或 sell）
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// SideFromString 从字符串构造 Side
// 参数 s: 方向字符串，如 "buy"、"sell"
// 返回: 对应的 Side；无法识别时返回 SideUndefined，绝不静默截断
func SideFromString(s string) Side {
	switch s {
	case "buy", "bid":
		return SideBuy
	case "sell", "ask":
		return SideSell
	default:
		return SideUndefined
	}
}

// Action 订单更新操作类型
type Action uint8

const (
	// ActionUndefined 未定义操作（非法输入的回退值）
	ActionUndefined Action = iota
	// ActionCreate 新建订单
	ActionCreate
	// ActionModify 修改订单数量（价格不变时保留队列位置）
	ActionModify
	// ActionCancel 撤销订单
	ActionCancel
)

// actionNames Action 到字符串的映射表
var actionNames = [...]string{
	ActionUndefined: "undefined",
	ActionCreate:    "create",
	ActionModify:    "modify",
	ActionCancel:    "cancel",
}

// String 返回操作类型的字符串表示
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "undefined"
}

// Valid 判断操作类型是否为有效值
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionModify || a == ActionCancel
}

// ActionFromString 从字符串构造 Action
// 参数 s: 操作字符串，如 "create"、"modify"、"cancel"
// 返回: 对应的 Action；无法识别时返回 ActionUndefined
func ActionFromString(s string) Action {
	switch s {
	case "create":
		return ActionCreate
	case "modify":
		return ActionModify
	case "cancel":
		return ActionCancel
	default:
		return ActionUndefined
	}
}

// UpdateType 更新批次类型
// 区分全量快照与增量更新，决定归一化器是否合成隐式撤单
type UpdateType uint8

const (
	// UpdateTypeUndefined 未定义类型
	UpdateTypeUndefined UpdateType = iota
	// UpdateTypeSnapshot 全量快照（权威状态，缺失的订单视为已撤销）
	UpdateTypeSnapshot
	// UpdateTypeIncremental 增量更新
	UpdateTypeIncremental
)

// updateTypeNames UpdateType 到字符串的映射表
var updateTypeNames = [...]string{
	UpdateTypeUndefined:   "undefined",
	UpdateTypeSnapshot:    "snapshot",
	UpdateTypeIncremental: "incremental",
}

// String 返回更新类型的字符串表示
func (u UpdateType) String() string {
	if int(u) < len(updateTypeNames) {
		return updateTypeNames[u]
	}
	return "undefined"
}

// UpdateTypeFromString 从字符串构造 UpdateType
// 返回: 对应的 UpdateType；无法识别时返回 UpdateTypeUndefined
func UpdateTypeFromString(s string) UpdateType {
	switch s {
	case "snapshot":
		return UpdateTypeSnapshot
	case "incremental":
		return UpdateTypeIncremental
	default:
		return UpdateTypeUndefined
	}
}
