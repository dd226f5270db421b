package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mirrorlake/augur/types"
)

// Kind 标识外部调用的 Provider 类别
type Kind string

const (
	// KindSearch 网络搜索类调用
	KindSearch Kind = "search"
	// KindCompletion LLM 补全类调用
	KindCompletion Kind = "completion"
)

// SearchRequest 一次搜索调用的参数
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	// IncludeRaw 是否返回页面原文（用于站点抓取）
	IncludeRaw bool `json:"include_raw,omitempty"`
}

// SearchResult 一条搜索结果文档
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// CompletionRequest 一次补全调用的参数
type CompletionRequest struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	// ResponseHint 期望输出形态提示（如 "json_array"），由上层解析时参考
	ResponseHint string  `json:"response_hint,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// CompletionResult 一次补全调用的结果
type CompletionResult struct {
	Content          string `json:"content"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// SearchProvider 统一的搜索 Provider 适配接口
type SearchProvider interface {
	// Search 执行一次搜索。分类失败应返回 *types.Error。
	Search(ctx context.Context, req *SearchRequest) ([]SearchResult, error)
	// Name 返回 Provider 的唯一标识
	Name() string
}

// CompletionProvider 统一的 LLM 补全 Provider 适配接口
type CompletionProvider interface {
	// Complete 执行一次补全。分类失败应返回 *types.Error。
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
	// Name 返回 Provider 的唯一标识
	Name() string
}

// CallResult 一次外部调用的结果。调用方总是收到一个结果而不是异常：
// 失败被分类后放入 Err，成功负载按 Kind 填充对应字段。
type CallResult struct {
	Kind     Kind
	Provider string
	// Attempts 实际使用的尝试次数（含首次）
	Attempts int
	Elapsed  time.Duration
	// Err 分类后的失败；nil 表示成功
	Err *types.Error

	// Search 成功时的搜索结果（Kind == KindSearch）
	Search []SearchResult
	// Completion 成功时的补全结果（Kind == KindCompletion）
	Completion *CompletionResult
}

// OK reports whether the call produced a usable payload.
func (r *CallResult) OK() bool {
	return r != nil && r.Err == nil
}

// Classify 将任意错误归入统一错误分类。
// context 超时计为 TIMEOUT（瞬时，可重试，但与上游报错区分开）；
// 已分类的 *types.Error 原样保留；其余视为瞬时的上游错误。
func Classify(err error) *types.Error {
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "call timed out").WithRetryable(true).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrTimeout, "call canceled").WithCause(err)
	}
	return types.NewError(types.ErrUpstreamError, "upstream call failed").WithRetryable(true).WithCause(err)
}
