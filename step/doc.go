// Copyright (c) Augur Authors.
// Licensed under the MIT License.

/*
Package step 实现研究流水线的十个步骤与统一的步骤执行器。

# 步骤一览

  - grounding           — 以公司 URL / 画像搜索生成种子证据（必需）
  - financial_analysis  — 财务研究（必需）
  - news_scan           — 新闻研究（尽力）
  - industry_analysis   — 行业研究（尽力）
  - company_analysis    — 公司研究 + 竞争对手名称抽取（尽力）
  - competitor_analysis — 竞争对手研究，无对手名称时跳过（尽力）
  - curation            — 相关性阈值筛选，产出 curated 合成证据（必需）
  - enrichment          — 为筛选后的来源并发抓取原文（尽力）
  - briefing            — 按主题生成简报，优先使用抓取原文（必需）
  - editor              — 汇总简报为最终报告（必需）

# 研究步骤形态

一次补全调用生成子查询（JSON 解析失败先修复、再回落到模板查询），随后
并发执行 N 次搜索，每条成功结果成为一条证据。只要有一次调用成功，步骤
结果就是 partial 而不是 failed。步骤从不直接修改状态：读取冻结视图，
返回 Delta 由运行器统一应用。
*/
package step
