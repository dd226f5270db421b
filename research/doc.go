// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package research 定义一次公司调研运行的共享状态模型。

# 概述

每次运行持有一个 State：调研对象（Subject）、按主题追加的证据
（Evidence）、步骤审计日志（StepOutcome）与单调推进的运行状态
（RunStatus）。State 采用单写者纪律 —— 只有 workflow 运行器修改它，
各步骤通过只读 View 读取、通过 Delta 返回增量。

# 关键不变式

  - 运行状态只向前推进，终态（completed / completed_with_warnings /
    failed）之后不再变化。
  - 证据按主题只追加、从不覆盖；同一 source+content 哈希的记录去重，
    因此重复应用同一 Delta 是幂等的。
  - 主题内的证据顺序即步骤完成顺序（由单写者的应用顺序决定）。
*/
package research
