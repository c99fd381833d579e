// Package main 是 market-by-order 订单簿缓存服务的入口点。
// 服务订阅 Bitfinex 逐笔订单簿（prec=R0），对原始更新流做归一化后
// 维护每个合约的逐笔订单簿缓存，并周期性输出档位快照与完整性指标。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mbo-book-cache/internal/config"
	"mbo-book-cache/internal/core/book"
	"mbo-book-cache/internal/core/model"
	"mbo-book-cache/internal/core/normalize"
	"mbo-book-cache/internal/exchange/bitfinex"
	"mbo-book-cache/internal/metadata"
	"mbo-book-cache/internal/output/jsonl"
	"mbo-book-cache/internal/stats/integrity"
	"mbo-book-cache/internal/util/timeutil"
)

// session 单个合约的处理上下文
// 订单簿、归一化器与计数器一一对应，仅由聚合器 goroutine 访问
type session struct {
	book       book.MarketByOrder
	normalizer *normalize.Normalizer
	counters   *integrity.Counters
}

// bookSnapshotRecord 档位快照输出记录
type bookSnapshotRecord struct {
	// TsUnixNs 快照采集时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Symbol 统一合约标识
	Symbol string `json:"symbol"`
	// ExchangeSequence 快照时刻的交易所序列号
	ExchangeSequence int64 `json:"exchange_sequence"`
	// Checksum 快照时刻的订单簿校验和
	Checksum uint32 `json:"checksum"`
	// Layers 聚合档位行（最优价在前）
	Layers []model.Layer `json:"layers"`
}

// symbolStats 单合约完整性统计
type symbolStats struct {
	// Symbol 统一合约标识
	Symbol string `json:"symbol"`
	// BidOrders 买侧订单数
	BidOrders int `json:"bid_orders"`
	// AskOrders 卖侧订单数
	AskOrders int `json:"ask_orders"`
	// ExchangeSequence 最近接受的交易所序列号
	ExchangeSequence int64 `json:"exchange_sequence"`
	// Integrity 完整性计数器快照
	Integrity integrity.Stats `json:"integrity"`
}

// metricsSnapshot 指标输出记录
type metricsSnapshot struct {
	// TsUnixNs 指标采集时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Bitfinex 连接指标
	Bitfinex bitfinex.ConnectionMetrics `json:"bitfinex"`
	// Symbols 各合约完整性统计
	Symbols []symbolStats `json:"symbols"`
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	// 启动时获取元数据并构建参考数据（禁止硬编码订阅合约）
	fetcher := metadata.NewHTTPFetcher(cfg.Metadata.TimeoutMs)
	refs, err := metadata.BuildReferenceData(ctx, cfg, fetcher)
	if err != nil {
		logger.Error("构建参考数据失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("参考数据就绪", zap.Int("symbols", len(refs)))

	// 按统一合约标识建立处理上下文
	sessions := make(map[string]*session, len(refs))
	for input, ref := range refs {
		b, err := book.New(ref)
		if err != nil {
			logger.Error("创建订单簿失败", zap.String("symbol", input), zap.Error(err))
			os.Exit(1)
		}
		counters := &integrity.Counters{}
		sessions[ref.Symbol] = &session{
			book:       b,
			normalizer: normalize.New(b, counters),
			counters:   counters,
		}
	}

	client := bitfinex.NewClient(&cfg.WS, refs, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()

	if err := client.Connect(startCtx); err != nil {
		logger.Error("Bitfinex 连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := client.Subscribe(); err != nil {
		logger.Error("Bitfinex 订阅失败", zap.Error(err))
		os.Exit(1)
	}

	go client.Run(ctx)

	var snapshotWriter *jsonl.Writer
	var metricsWriter *jsonl.Writer
	if cfg.Output.SnapshotsEnabled {
		snapshotWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/snapshots.jsonl", cfg.Output.Dir), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建 snapshots writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.Output.MetricsEnabled {
		metricsWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/metrics.jsonl", cfg.Output.Dir), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建 metrics writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	if err := runAggregator(ctx, logger, sessions, client, snapshotWriter, metricsWriter, &cfg.Output); err != nil {
		logger.Error("聚合器退出", zap.Error(err))
	}

	// 输出最后一条 metrics 快照（便于离线复盘）
	if metricsWriter != nil {
		_ = metricsWriter.Write(collectMetrics(sessions, client))
		_ = metricsWriter.Flush()
	}

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Close()
		if snapshotWriter != nil {
			_ = snapshotWriter.Close()
		}
		if metricsWriter != nil {
			_ = metricsWriter.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// newLogger 按配置级别构建 zap 日志记录器
func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// runAggregator 聚合器主循环
// 单 goroutine 消费更新通道并驱动归一化与订单簿维护，
// 同时按配置间隔输出档位快照与完整性指标。
func runAggregator(
	ctx context.Context,
	logger *zap.Logger,
	sessions map[string]*session,
	client *bitfinex.Client,
	snapshotWriter *jsonl.Writer,
	metricsWriter *jsonl.Writer,
	out *config.OutputConfig,
) error {
	updateCh := client.UpdateCh()

	snapshotTicker := time.NewTicker(time.Duration(out.SnapshotIntervalMs) * time.Millisecond)
	defer snapshotTicker.Stop()
	metricsTicker := time.NewTicker(time.Duration(out.MetricsIntervalMs) * time.Millisecond)
	defer metricsTicker.Stop()

	// 归一化输出缓冲，跨批次复用
	var bids, asks []model.MBOUpdate
	var layers []model.Layer

	for {
		select {
		case <-ctx.Done():
			return nil

		case u, ok := <-updateCh:
			if !ok {
				return nil
			}
			if u == nil || u.Symbol == "" {
				continue
			}
			s, known := sessions[u.Symbol]
			if !known {
				logger.Warn("收到未配置合约的更新", zap.String("symbol", u.Symbol))
				continue
			}
			if _, _, err := s.normalizer.Normalize(*u, &bids, &asks); err != nil {
				// 结构性错误意味着上游数据流损坏，清簿等待交易所重推快照
				logger.Warn("归一化失败，重置订单簿",
					zap.String("symbol", u.Symbol),
					zap.Int64("seq", u.ExchangeSequence),
					zap.Error(err))
				s.book.Clear()
			}

		case <-snapshotTicker.C:
			if snapshotWriter == nil {
				continue
			}
			nowNs := timeutil.NowNano()
			for symbol, s := range sessions {
				if s.book.Empty() {
					continue
				}
				s.book.ExtractLayers(&layers, out.SnapshotDepth)
				rec := bookSnapshotRecord{
					TsUnixNs:         nowNs,
					Symbol:           symbol,
					ExchangeSequence: s.book.ExchangeSequence(),
					Checksum:         s.book.Checksum(),
					Layers:           layers,
				}
				if err := snapshotWriter.Write(rec); err != nil {
					logger.Warn("写入档位快照失败", zap.String("symbol", symbol), zap.Error(err))
				}
			}

		case <-metricsTicker.C:
			if metricsWriter == nil {
				continue
			}
			_ = metricsWriter.Write(collectMetrics(sessions, client))
			_ = metricsWriter.Flush()
		}
	}
}

// collectMetrics 采集连接指标与各合约完整性统计
func collectMetrics(sessions map[string]*session, client *bitfinex.Client) metricsSnapshot {
	snap := metricsSnapshot{
		TsUnixNs: timeutil.NowNano(),
		Bitfinex: client.Metrics(),
	}
	for symbol, s := range sessions {
		bidN, askN := s.book.Size()
		snap.Symbols = append(snap.Symbols, symbolStats{
			Symbol:           symbol,
			BidOrders:        bidN,
			AskOrders:        askN,
			ExchangeSequence: s.book.ExchangeSequence(),
			Integrity:        s.counters.Snapshot(),
		})
	}
	return snap
}
