// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package types 提供 Augur 流水线的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 provider、workflow、step、
api 等上层模块提供统一的错误契约。所有跨包共享的错误码均定义于此，
以避免循环依赖。

# 核心类型

  - ErrorCode — 统一错误码（瞬时 / 永久 / 响应异常 / 运行级）
  - Error     — 结构化错误（code + message + retryable + provider + cause）

# 错误分类约定

瞬时错误（TIMEOUT、RATE_LIMITED、UPSTREAM_ERROR）可重试；
永久错误（INVALID_REQUEST、UNAUTHORIZED、FORBIDDEN）不可重试；
MALFORMED_RESPONSE 表示上游返回了无法解析的内容，对单次调用视为永久。
*/
package types
