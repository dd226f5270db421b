package step

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
)

const querySystemPrompt = "You are a research assistant. Respond with a JSON array of search query strings and nothing else."

// topicQueryHints 引导各主题的子查询方向
var topicQueryHints = map[string]string{
	TopicFinancials: "funding rounds, revenue, valuation, investors, financial performance",
	TopicNews:       "recent news, announcements, partnerships, product launches",
	TopicIndustry:   "industry landscape, market size, trends, regulation, market position",
	TopicCompany:    "products, business model, leadership, headcount, customers",
}

// generateQueries 用一次补全调用生成子查询。
// 补全失败或 JSON 无法修复时回落到模板查询，失败已由 recorder 记账。
func (e *Executor) generateQueries(ctx context.Context, rec *recorder, subject research.Subject, topic string) []string {
	prompt := fmt.Sprintf(
		"Generate at most %d focused web search queries about the company %q (%s).\nFocus: %s.",
		e.cfg.MaxQueries, subject.Company, subjectHint(subject), topicQueryHints[topic],
	)

	res := rec.Complete(ctx, &provider.CompletionRequest{
		System:       querySystemPrompt,
		Prompt:       prompt,
		ResponseHint: "json_array",
		Temperature:  e.cfg.Temperature,
		MaxTokens:    256,
	})
	if res.OK() {
		if queries, err := parseStringList(res.Completion.Content); err == nil && len(queries) > 0 {
			return clampQueries(queries, e.cfg.MaxQueries)
		}
		// 调用成功但内容不可解析，按该次调用失败记账
		rec.fail(malformedContent("query generation returned unparsable content"))
	}
	return fallbackQueries(subject, topic, e.cfg.MaxQueries)
}

// fallbackQueries 是无 LLM 时的模板查询
func fallbackQueries(subject research.Subject, topic string, max int) []string {
	company := subject.Company
	var queries []string
	switch topic {
	case TopicFinancials:
		queries = []string{
			company + " funding rounds investors",
			company + " revenue valuation",
			company + " financial results",
		}
	case TopicNews:
		queries = []string{
			company + " latest news",
			company + " announcement partnership",
			company + " product launch",
		}
	case TopicIndustry:
		industry := subject.Industry
		if industry == "" {
			industry = "industry"
		}
		queries = []string{
			company + " " + industry + " market position",
			industry + " market size trends",
			company + " competitors market share",
		}
	case TopicCompany:
		queries = []string{
			company + " products services",
			company + " leadership team",
			company + " business model customers",
		}
	default:
		queries = []string{company + " " + topic}
	}
	return clampQueries(queries, max)
}

func clampQueries(queries []string, max int) []string {
	out := make([]string, 0, max)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

func subjectHint(subject research.Subject) string {
	var parts []string
	if subject.Industry != "" {
		parts = append(parts, subject.Industry)
	}
	if subject.HQLocation != "" {
		parts = append(parts, "HQ "+subject.HQLocation)
	}
	if subject.CompanyURL != "" {
		parts = append(parts, subject.CompanyURL)
	}
	if len(parts) == 0 {
		return "no additional hints"
	}
	return strings.Join(parts, ", ")
}

// parseStringList 宽容地解析 LLM 返回的字符串列表：
// 去掉代码围栏，直接反序列化失败后先修复 JSON 再试，
// 同时接受 {"queries": [...]} 包装形态。
func parseStringList(content string) ([]string, error) {
	content = stripCodeFence(content)

	if list, err := unmarshalStringList(content); err == nil {
		return list, nil
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("parse: repair failed: %w", err)
	}
	return unmarshalStringList(repaired)
}

func unmarshalStringList(content string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(content), &list); err == nil {
		return list, nil
	}
	var wrapped map[string][]string
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil {
		for _, list := range wrapped {
			if len(list) > 0 {
				return list, nil
			}
		}
	}
	return nil, fmt.Errorf("parse: not a string list")
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
