// Copyright (c) 2025 Augur Authors. Licensed under the MIT License.

// Package provider 统一封装所有外部 Provider 调用（搜索与 LLM 补全）。
//
// 🎯 核心设计:
//   - 所有调用经过单一 Client：超时、重试、并发与速率控制集中在一处
//   - 失败永远被分类为 *types.Error 并作为数据返回，不向调用方抛错
//   - 只重试瞬时失败（超时、限流、上游错误），永久失败立即放弃
//   - 搜索结果可选走 Redis 缓存，命中不计入调用次数
//
// 具体的 HTTP 适配器位于 provider/tavily 与 provider/openai 子包。
package provider
