// Package backoff 实现带抖动的指数退避。
// 用于行情连接断开后的重连等待，避免对交易所端点造成重连风暴。
package backoff

import (
	"math/rand"
	"time"
)

// maxShift 指数上限，防止位移溢出
// 2^16 秒已远超任何合理的 max 配置
const maxShift = 16

// Backoff 指数退避计算器
// 非并发安全，每条连接各持有一个实例
type Backoff struct {
	// base 首次等待时间
	base time.Duration
	// max 等待时间上限
	max time.Duration
	// jitter 抖动比例，0.2 表示在 ±20% 内随机浮动
	jitter float64
	// attempt 连续失败次数
	attempt int
}

// New 创建退避计算器
// 参数 base: 首次等待时间
// 参数 max: 等待时间上限
// 参数 jitter: 抖动比例（0-1）
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{base: base, max: max, jitter: jitter}
}

// NewDefault 创建默认退避计算器
// 首次 1s，上限 30s，抖动 ±20%
func NewDefault() *Backoff {
	return New(time.Second, 30*time.Second, 0.2)
}

// Next 返回下一次重试前的等待时间
// 等待时间为 base * 2^attempt 截断到 max，再施加抖动
func (b *Backoff) Next() time.Duration {
	shift := b.attempt
	if shift > maxShift {
		shift = maxShift
	}
	delay := b.base << shift
	if delay > b.max || delay <= 0 {
		delay = b.max
	}

	if b.jitter > 0 {
		// 在 [1-jitter, 1+jitter] 内均匀取因子
		factor := 1 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}

	b.attempt++
	return delay
}

// Reset 清零失败次数
// 连接建立成功后调用
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 返回当前连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
