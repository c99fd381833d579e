// Package metadata 负责从交易所获取合约元数据并构建参考数据。
package metadata

import (
	"context"
	"fmt"
	"strings"

	"mbo-book-cache/internal/config"
	"mbo-book-cache/internal/core/model"
)

// ExchangeName 参考数据中记录的交易所标识
const ExchangeName = "bitfinex"

// BuildReferenceData 将配置的合约与交易所元数据合并为参考数据
// 增量/精度/深度来自配置，交易所元数据用于确认合约可交易
// 参数 ctx: 上下文
// 参数 cfg: 应用配置
// 参数 fetcher: 元数据获取器
// 返回: 以交易所侧合约标识（如 tBTCUSD）为键的参考数据表
func BuildReferenceData(ctx context.Context, cfg *config.Config, fetcher Fetcher) (map[string]model.ReferenceData, error) {
	pairs, err := fetcher.FetchPairs(ctx, cfg.Metadata.URL)
	if err != nil {
		return nil, fmt.Errorf("获取合约元数据失败: %w", err)
	}

	listed := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		listed[p.Pair] = struct{}{}
	}

	refs := make(map[string]model.ReferenceData, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		pair := strings.TrimPrefix(sym.Input, "t")
		if _, ok := listed[pair]; !ok {
			return nil, fmt.Errorf("合约 %s 未在交易所元数据中找到", sym.Input)
		}

		if maxDepth := sym.MaxDepth; maxDepth > int(^uint16(0)) {
			return nil, fmt.Errorf("合约 %s 的 max_depth 超出上限: %d", sym.Input, maxDepth)
		}

		refs[sym.Input] = model.ReferenceData{
			Exchange:          ExchangeName,
			Symbol:            sym.CanonOrDerived(),
			MaxDepth:          uint16(sym.MaxDepth),
			PriceIncrement:    sym.PriceIncrement,
			QuantityIncrement: sym.QuantityIncrement,
			PriceDecimals:     sym.PriceDecimals,
			QuantityDecimals:  sym.QuantityDecimals,
		}
	}

	return refs, nil
}
