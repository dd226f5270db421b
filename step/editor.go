package step

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
)

// editor 将各主题简报汇总为最终报告正文。简报缺失的主题直接略过；
// 一份简报都没有时不发起调用，返回空（步骤计为成功，报告组装器会
// 回落到原始证据）。
func (e *Executor) editor(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	briefings := view.Findings(TopicBriefings)
	if len(briefings) == 0 {
		return nil
	}

	byTopic := make(map[string]research.Evidence, len(briefings))
	for _, ev := range briefings {
		byTopic[ev.Query] = ev
	}

	var b strings.Builder
	for _, topic := range researchTopics {
		ev, ok := byTopic[topic]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", ev.Title, ev.Content)
	}
	body := e.truncateToTokens(b.String(), e.cfg.BriefingTokenBudget)

	res := rec.Complete(ctx, &provider.CompletionRequest{
		System:      "You are a senior editor producing a polished markdown research report.",
		Prompt:      fmt.Sprintf("Merge the topic briefings below into one coherent research report on %q. Keep every heading, remove duplicated facts, keep the tone factual.\n\n%s", view.Subject.Company, body),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.CompletionMaxTokens * 2,
	})
	if !res.OK() || strings.TrimSpace(res.Completion.Content) == "" {
		return nil
	}

	return []research.Evidence{{
		Topic:       TopicReport,
		Source:      "editor",
		Title:       view.Subject.Company + " research report",
		Content:     strings.TrimSpace(res.Completion.Content),
		Synthesized: true,
		CapturedAt:  time.Now().UTC(),
	}}
}
