package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/mirrorlake/augur/internal/cache"
	"github.com/mirrorlake/augur/internal/metrics"
	"github.com/mirrorlake/augur/types"
)

// ClientConfig 调用客户端配置。并发上限与速率上限是进程级的，
// 跨所有运行共享，用于保护上游配额。
type ClientConfig struct {
	// CallTimeout 单次尝试的超时
	CallTimeout time.Duration
	// Retry 重试策略
	Retry RetryPolicy
	// SearchConcurrency / CompletionConcurrency 各类调用的并发上限
	SearchConcurrency     int64
	CompletionConcurrency int64
	// SearchRPS / CompletionRPS 各类调用的速率上限（0 表示不限制）
	SearchRPS     float64
	CompletionRPS float64
	// CacheTTL 搜索结果缓存过期时间（配合可选的缓存管理器）
	CacheTTL time.Duration
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CallTimeout:           30 * time.Second,
		Retry:                 DefaultRetryPolicy(),
		SearchConcurrency:     8,
		CompletionConcurrency: 4,
		CacheTTL:              30 * time.Minute,
	}
}

// Client 是所有外部调用的统一入口：按类别限流限并发、按策略重试瞬时
// 失败、强制单次超时，并把失败分类为数据返回 —— 调用方永远收到
// CallResult 而不是未处理的错误，单个挂掉的 Provider 不会让运行崩溃。
type Client struct {
	search     SearchProvider
	completion CompletionProvider
	cfg        ClientConfig

	sems     map[Kind]*semaphore.Weighted
	limiters map[Kind]*rate.Limiter

	cache     *cache.Manager     // optional
	collector *metrics.Collector // optional
	logger    *zap.Logger

	// sleep 供测试注入，生产中为带取消的 time.Sleep
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient 创建调用客户端。cacheMgr 与 collector 允许为 nil。
func NewClient(search SearchProvider, completion CompletionProvider, cfg ClientConfig, cacheMgr *cache.Manager, collector *metrics.Collector, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Retry = cfg.Retry.normalize()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.SearchConcurrency < 1 {
		cfg.SearchConcurrency = 1
	}
	if cfg.CompletionConcurrency < 1 {
		cfg.CompletionConcurrency = 1
	}

	limiters := make(map[Kind]*rate.Limiter)
	if cfg.SearchRPS > 0 {
		limiters[KindSearch] = rate.NewLimiter(rate.Limit(cfg.SearchRPS), 1)
	}
	if cfg.CompletionRPS > 0 {
		limiters[KindCompletion] = rate.NewLimiter(rate.Limit(cfg.CompletionRPS), 1)
	}

	return &Client{
		search:     search,
		completion: completion,
		cfg:        cfg,
		sems: map[Kind]*semaphore.Weighted{
			KindSearch:     semaphore.NewWeighted(cfg.SearchConcurrency),
			KindCompletion: semaphore.NewWeighted(cfg.CompletionConcurrency),
		},
		limiters:  limiters,
		cache:     cacheMgr,
		collector: collector,
		logger:    logger.With(zap.String("component", "call_client")),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Search 执行一次搜索调用（带缓存、限流与重试）
func (c *Client) Search(ctx context.Context, req *SearchRequest) *CallResult {
	res := &CallResult{Kind: KindSearch, Provider: c.search.Name()}

	if c.cache != nil {
		key := cache.Key("search", c.search.Name(), req.Query)
		var hit []SearchResult
		if err := c.cache.GetJSON(ctx, key, &hit); err == nil {
			if c.collector != nil {
				c.collector.RecordCacheHit("search")
			}
			res.Search = hit
			return res
		} else if cache.IsCacheMiss(err) && c.collector != nil {
			c.collector.RecordCacheMiss("search")
		}
	}

	var payload []SearchResult
	res.Attempts, res.Elapsed, res.Err = c.do(ctx, KindSearch, c.search.Name(), func(callCtx context.Context) error {
		out, err := c.search.Search(callCtx, req)
		if err != nil {
			return err
		}
		payload = out
		return nil
	})

	if res.Err == nil {
		res.Search = payload
		if c.cache != nil {
			key := cache.Key("search", c.search.Name(), req.Query)
			if err := c.cache.SetJSON(ctx, key, payload, c.cfg.CacheTTL); err != nil {
				c.logger.Warn("search cache write failed", zap.Error(err))
			}
		}
	}
	return res
}

// Complete 执行一次补全调用（带限流与重试）
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) *CallResult {
	res := &CallResult{Kind: KindCompletion, Provider: c.completion.Name()}

	var payload *CompletionResult
	res.Attempts, res.Elapsed, res.Err = c.do(ctx, KindCompletion, c.completion.Name(), func(callCtx context.Context) error {
		out, err := c.completion.Complete(callCtx, req)
		if err != nil {
			return err
		}
		payload = out
		return nil
	})

	if res.Err == nil {
		res.Completion = payload
	}
	return res
}

// do 核心调用逻辑：并发闸 → 速率闸 → 带超时执行 → 分类 → 按需退避重试。
// 永远返回分类后的错误而不向外抛出。
func (c *Client) do(ctx context.Context, kind Kind, name string, fn func(context.Context) error) (int, time.Duration, *types.Error) {
	start := time.Now()

	sem := c.sems[kind]
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, time.Since(start), Classify(err)
	}
	defer sem.Release(1)

	var lastErr *types.Error
	attempts := 0

	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		attempts = attempt

		if lim := c.limiters[kind]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				lastErr = Classify(err)
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				c.logger.Info("call succeeded after retry",
					zap.String("kind", string(kind)),
					zap.String("provider", name),
					zap.Int("attempt", attempt),
				)
			}
			lastErr = nil
			break
		}

		lastErr = Classify(err)

		// 每次尝试一条结构化日志（仅用于观测）
		c.logger.Warn("call attempt failed",
			zap.String("kind", string(kind)),
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.Retry.MaxAttempts),
			zap.String("code", string(lastErr.Code)),
			zap.Bool("retryable", lastErr.Retryable),
			zap.Error(lastErr),
		)

		if !lastErr.Retryable || attempt >= c.cfg.Retry.MaxAttempts {
			break
		}

		if err := c.sleep(ctx, c.cfg.Retry.Delay(attempt)); err != nil {
			lastErr = Classify(err)
			break
		}
	}

	elapsed := time.Since(start)
	if c.collector != nil {
		result := "ok"
		if lastErr != nil {
			result = string(lastErr.Code)
		}
		c.collector.RecordCall(string(kind), name, result, attempts, elapsed)
	}
	return attempts, elapsed, lastErr
}
