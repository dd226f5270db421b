// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package main 提供 Augur 服务端程序入口。

# 概述

cmd/augurd 是公司研究流水线的守护进程：加载配置、装配搜索与 LLM
Provider、研究工作流及归档存储，并暴露 HTTP / WebSocket API。
程序支持 YAML 配置文件加载、.env 凭证注入（godotenv）、结构化日志
（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 核心类型

  - Server — 装配全部组件，管理 HTTP 服务与优雅关闭

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 可选组件按配置降级：Redis 搜索缓存、MongoDB 归档、OTel 上报
  - 优雅关闭：信号监听 → 关闭 HTTP → 等待在途运行 → 关闭事件队列
    → 断开外部连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
