package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mbo-book-cache/internal/config"
	"mbo-book-cache/internal/core/model"
	"mbo-book-cache/internal/util/backoff"
	"mbo-book-cache/internal/util/timeutil"
)

// Client Bitfinex WebSocket 客户端
// 连接地址: wss://api-pub.bitfinex.com/ws/2
// 订阅频道: book（prec=R0 逐笔）
// 心跳机制: JSON ping/pong 事件
type Client struct {
	// cfg WebSocket 配置
	cfg *config.WSConfig
	// refs 参考数据表，以交易所侧合约标识为键
	refs map[string]model.ReferenceData
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser
	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁
	connMu sync.Mutex
	// updateCh 更新批次输出通道
	updateCh chan *model.MarketByOrderUpdate
	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastMsgTime 最后消息时间
	lastMsgTime int64
	// lastPingSentNs 上次发送 ping 的时间（纳秒）
	lastPingSentNs int64
	// lastPongRecvNs 上次收到 pong 的时间（纳秒）
	lastPongRecvNs int64
	// updateCount 更新计数（用于计算 QPS）
	updateCount int64
	// backoff 重连退避
	backoff *backoff.Backoff
	// closed 是否已关闭
	closed int32

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewClient 创建 Bitfinex WebSocket 客户端
// 参数 cfg: WebSocket 配置
// 参数 refs: 参考数据表，键为交易所侧合约标识（如 tBTCUSD）
// 参数 logger: 日志记录器
func NewClient(cfg *config.WSConfig, refs map[string]model.ReferenceData, logger *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		refs:     refs,
		logger:   logger.Named("bitfinex"),
		parser:   NewParser(),
		updateCh: make(chan *model.MarketByOrderUpdate, 1000),
		backoff:  backoff.NewDefault(),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "mbo-book-cache/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("连接 Bitfinex WebSocket 失败: %w", err)
	}

	c.conn = conn
	c.backoff.Reset()
	c.logger.Info("Bitfinex WebSocket 连接成功", zap.String("url", c.cfg.URL))

	return nil
}

// Subscribe 配置连接并订阅所有合约的逐笔订单簿
// 先发送 conf 事件启用序列号和校验和推送，再逐个订阅 book 频道
// 频道标识由订阅确认事件分配，在 readLoop 中注册到解析器
func (c *Client) Subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}

	// 重连后频道标识会重新分配，旧映射必须作废
	c.parser.Reset()

	conf := ConfRequest{
		Event: "conf",
		Flags: FlagSeqAll | FlagChecksum,
	}
	if err := c.writeJSON(conf); err != nil {
		return fmt.Errorf("发送连接配置失败: %w", err)
	}

	for input := range c.refs {
		req := SubscribeRequest{
			Event:   "subscribe",
			Channel: "book",
			Symbol:  input,
			Prec:    "R0",
			Len:     fmt.Sprintf("%d", c.cfg.BookLen),
		}
		if err := c.writeJSON(req); err != nil {
			return fmt.Errorf("发送订阅请求失败: %w", err)
		}
	}

	c.logger.Info("Bitfinex 订阅请求已发送", zap.Int("symbols", len(c.refs)))
	return nil
}

// writeJSON 序列化并发送一条消息
// 调用方必须持有 connMu
func (c *Client) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Run 启动客户端主循环
// 包含读取循环和心跳循环
func (c *Client) Run(ctx context.Context) {
	// 启动心跳 goroutine
	go c.heartbeatLoop(ctx)

	// 启动指标统计 goroutine
	go c.metricsLoop(ctx)

	// 读取循环
	c.readLoop(ctx)
}

// readLoop 读取循环
// 持续读取 WebSocket 消息并解析
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			// 尝试重连
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("读取 Bitfinex 消息失败", zap.Error(err))
			c.incrementReconnectCount()
			c.reconnect(ctx)
			continue
		}

		// 更新最后消息时间
		nowNs := timeutil.NowNano()
		atomic.StoreInt64(&c.lastMsgTime, nowNs)

		// 事件消息（JSON 对象形态）
		if IsEventMessage(data) {
			c.handleEvent(data, nowNs)
			continue
		}

		// 数据帧（JSON 数组形态）
		update, kind, err := c.parser.Parse(data, nowNs)
		if err != nil {
			c.incrementParseErrorCount()
			c.maybeLogParseError(err, data)
			continue
		}

		switch kind {
		case FrameBook:
			atomic.AddInt64(&c.updateCount, 1)
			select {
			case c.updateCh <- update:
			default:
				c.logger.Warn("Bitfinex updateCh 已满，丢弃更新批次")
			}
		case FrameChecksum:
			// 交易所校验和的算法与本引擎不同，仅作为活跃度指标计数
			c.metricsMu.Lock()
			c.metrics.ChecksumFrames++
			c.metricsMu.Unlock()
		case FrameHeartbeat:
			// 心跳帧仅刷新 lastMsgTime
		}
	}
}

// handleEvent 处理事件消息
// 订阅确认时注册频道映射；info 事件可能要求重连
func (c *Client) handleEvent(data []byte, nowNs int64) {
	var ev EventMessage
	if err := json.Unmarshal(data, &ev); err != nil {
		c.incrementParseErrorCount()
		c.maybeLogParseError(err, data)
		return
	}

	switch ev.Event {
	case "subscribed":
		ref, ok := c.refs[ev.Symbol]
		if !ok {
			c.logger.Warn("收到未配置合约的订阅确认", zap.String("symbol", ev.Symbol))
			return
		}
		c.parser.RegisterChannel(ev.ChanID, ev.Symbol, ref.Symbol)
		c.logger.Info("Bitfinex 订阅确认",
			zap.Int64("chan_id", ev.ChanID),
			zap.String("symbol", ev.Symbol),
			zap.String("prec", ev.Prec))

	case "pong":
		atomic.StoreInt64(&c.lastPongRecvNs, nowNs)
		lastPing := atomic.LoadInt64(&c.lastPingSentNs)
		if lastPing > 0 {
			rttMs := (nowNs - lastPing) / 1_000_000
			c.metricsMu.Lock()
			c.metrics.WsRttMs = rttMs
			c.metricsMu.Unlock()
		}

	case "info":
		switch ev.Code {
		case CodeReconnect, CodeMaintenanceEnd:
			// 服务端要求重连/维护结束，主动断开由读取循环触发重连重订阅
			c.logger.Warn("Bitfinex 服务端要求重连", zap.Int("code", ev.Code))
			c.incrementReconnectCount()
			c.closeConn()
		case CodeMaintenanceStart:
			c.logger.Warn("Bitfinex 进入维护模式，推送暂停")
		default:
			c.logger.Debug("收到 info 事件", zap.Int("version", ev.Version), zap.Int("code", ev.Code))
		}

	case "error":
		c.logger.Error("Bitfinex 事件错误",
			zap.Int("code", ev.Code),
			zap.String("msg", ev.Msg),
			zap.String("symbol", ev.Symbol))

	case "conf":
		c.logger.Debug("连接配置已确认")

	default:
		c.logger.Debug("收到未处理事件", zap.String("event", ev.Event))
	}
}

// heartbeatLoop 心跳循环
// 按配置间隔发送 ping 事件，超时未收到 pong 则重连
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			// 发送 ping（gorilla/websocket 不允许并发多写者，这里用 connMu 串行化写入）
			pingTime := timeutil.NowNano()
			ping := PingRequest{Event: "ping", Cid: pingTime / 1_000_000}
			if err := c.writeJSON(ping); err != nil {
				c.connMu.Unlock()
				c.logger.Warn("发送 Bitfinex ping 失败", zap.Error(err))
				continue
			}
			atomic.StoreInt64(&c.lastPingSentNs, pingTime)
			c.connMu.Unlock()

			// 检查 pong 是否按期返回（允许与行情推送并行）
			lastPing := atomic.LoadInt64(&c.lastPingSentNs)
			lastPong := atomic.LoadInt64(&c.lastPongRecvNs)
			if lastPing > 0 && lastPong < lastPing {
				if timeutil.NowNano()-lastPing > int64(c.cfg.PongTimeoutMs)*1_000_000 {
					c.logger.Warn("Bitfinex 心跳超时，触发重连")
					c.incrementReconnectCount()
					c.closeConn()
				}
			}
		}
	}
}

// metricsLoop 指标统计循环
// 每秒计算 QPS
func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			// 计算 QPS
			count := atomic.LoadInt64(&c.updateCount)
			qps := float64(count - lastCount)
			lastCount = count

			// 计算最后消息距今时间
			lastMsg := atomic.LoadInt64(&c.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = (timeutil.NowNano() - lastMsg) / 1_000_000
			}

			c.metricsMu.Lock()
			c.metrics.UpdatesPerSec = qps
			c.metrics.LastMessageAgeMs = ageMs
			c.metricsMu.Unlock()
		}
	}
}

// reconnect 重连
// 重连成功后交易所会重新推送快照，归一化器据此对账收敛
func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()

	// 等待退避时间
	delay := c.backoff.Next()
	c.logger.Info("Bitfinex 准备重连", zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	// 重新连接
	if err := c.Connect(ctx); err != nil {
		c.logger.Error("Bitfinex 重连失败", zap.Error(err))
		return
	}

	// 重新订阅
	if err := c.Subscribe(); err != nil {
		c.logger.Error("Bitfinex 重新订阅失败", zap.Error(err))
	}
}

// closeConn 关闭连接
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
// updateCh 不关闭：读取循环可能正在投递，消费方由上下文取消退出
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	c.logger.Info("Bitfinex 客户端已关闭")
	return nil
}

// UpdateCh 获取更新批次通道
func (c *Client) UpdateCh() <-chan *model.MarketByOrderUpdate {
	return c.updateCh
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

// incrementReconnectCount 增加重连计数
func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

// incrementParseErrorCount 增加解析错误计数
func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&c.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 Bitfinex 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
