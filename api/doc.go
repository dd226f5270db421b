// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package api 提供 Augur HTTP API 的请求处理器实现。

# 概述

api 包实现了研究流水线对外暴露的所有 HTTP 端点，
包括发起研究、查询最终结果、WebSocket 进度订阅以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - Handler   — 研究运行端点处理器（发起、查询、健康检查）
  - Hub       — WebSocket 进度分发器，实现 workflow.ProgressPublisher
  - Response  — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo — 结构化错误信息，含 code、message、retryable 标记

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 进度推送：按 run_id 订阅，运行结束后自动收尾
  - 路由装配：Routes 将全部端点挂载到一个 http.ServeMux

# 端点

  - POST /api/research          发起一次研究运行
  - GET  /api/research/{id}     查询终态结果（快照 + 报告）
  - GET  /api/research/ws/{id}  WebSocket 订阅运行进度
  - GET  /healthz               健康检查
  - GET  /metrics               Prometheus 指标
*/
package api
