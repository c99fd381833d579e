// Package metadata 负责从交易所获取合约元数据并构建参考数据。
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mbo-book-cache/internal/util/fastparse"
)

// Fetcher 元数据获取器接口
// 定义从交易所获取合约交易参数的方法
type Fetcher interface {
	// FetchPairs 获取合约交易参数列表
	FetchPairs(ctx context.Context, url string) ([]PairInfo, error)
}

// HTTPFetcher HTTP 元数据获取器
// 通过 HTTP 请求获取交易所的合约元数据
type HTTPFetcher struct {
	// client HTTP 客户端
	client *http.Client
}

// NewHTTPFetcher 创建 HTTP 元数据获取器
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
	}
}

// FetchPairs 获取合约交易参数列表
// API: GET /v2/conf/pub:info:pair
// 响应形如 [[["BTCUSD",[null,null,null,"0.00006","2000.0",...]], ...]]
// 参数 ctx: 上下文，用于取消请求
// 参数 url: 元数据 API 地址
// 返回: 合约交易参数列表
func (f *HTTPFetcher) FetchPairs(ctx context.Context, url string) ([]PairInfo, error) {
	body, err := f.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("请求合约元数据失败: %w", err)
	}
	return ParsePairs(body)
}

// ParsePairs 解析合约元数据响应
// 参数 body: 原始响应字节
// 返回: 合约交易参数列表
func ParsePairs(body []byte) ([]PairInfo, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("解析合约元数据失败: %w", err)
	}
	if len(outer) == 0 {
		return nil, fmt.Errorf("合约元数据响应为空")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(outer[0], &entries); err != nil {
		return nil, fmt.Errorf("解析合约列表失败: %w", err)
	}

	pairs := make([]PairInfo, 0, len(entries))
	for _, raw := range entries {
		var entry []json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || len(entry) < 2 {
			continue // 非 [PAIR, DETAILS] 形态的条目，忽略
		}

		var pair string
		if err := json.Unmarshal(entry[0], &pair); err != nil || pair == "" {
			continue
		}

		var details []json.RawMessage
		if err := json.Unmarshal(entry[1], &details); err != nil {
			continue
		}

		info := PairInfo{Pair: pair}
		// 详情数组: 下标 3 为最小下单数量，下标 4 为最大下单数量，均为字符串或 null
		if len(details) > 3 {
			info.MinOrderSize = parseOptionalFloat(details[3])
		}
		if len(details) > 4 {
			info.MaxOrderSize = parseOptionalFloat(details[4])
		}
		pairs = append(pairs, info)
	}

	return pairs, nil
}

// parseOptionalFloat 解析可能为 null 的字符串数值字段
// 返回: 数值，null 或解析失败时返回 0
func parseOptionalFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return fastparse.MustParseFloat(s)
}

// doRequest 执行 HTTP GET 请求
// 参数 ctx: 上下文
// 参数 url: 请求地址
// 返回: 响应体字节
func (f *HTTPFetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码异常: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	return body, nil
}
