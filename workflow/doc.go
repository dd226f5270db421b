// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package workflow 提供研究流水线的编排与执行引擎。

# 概述

workflow 包实现了 Augur 的运行状态机：每个运行 (Run) 按依赖关系调度
流水线步骤，独立步骤并发执行，步骤返回的 Delta 由唯一的写入者按完成
顺序串行应用到 ResearchState，从而在无锁的前提下消除并发写冲突。

# 核心接口与类型

  - StepDefinition     — 步骤静态元数据（依赖、读取主题、必需标记、谓词）
  - Graph              — 步骤图（唯一性 / 依赖 / 环检测，拓扑排序）
  - Executor           — 步骤执行接口 Execute(ctx, def, view) *Delta
  - Runner             — 单次运行的调度器与状态机
  - Manager            — 运行管理（StartRun / GetFinalState / 归档）
  - Event / ProgressPublisher — 进度事件契约（at-least-once）
  - AsyncPublisher     — 有界队列异步发布器（队满丢弃，不阻塞调度）

# 状态机规则

  - 运行状态只进不退：pending → running → 终态
  - 必需步骤失败 ⇒ 运行失败；在途步骤允许跑完，未开始步骤置为 skipped
  - 尽力步骤失败 ⇒ 记录为警告（可配置），不阻塞依赖它的步骤
  - 运行超过截止时间 ⇒ 停止调度新步骤，按已完成步骤收敛终态
*/
package workflow
