package step

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
)

// briefingTitles 各主题简报的叙述角度
var briefingTitles = map[string]string{
	TopicGrounding:   "company overview",
	TopicCompany:     "company analysis",
	TopicFinancials:  "financial position",
	TopicNews:        "recent news",
	TopicIndustry:    "industry landscape",
	TopicCompetitors: "competitive landscape",
}

// briefing 为每个有筛选证据的主题并发生成一份简报。
// 提示词按 token 预算截断，单个主题失败不影响其余主题。
func (e *Executor) briefing(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	// 同一来源存在抓取原文时用原文替换摘要
	enriched := make(map[string]research.Evidence)
	for _, ev := range view.Findings(TopicEnriched) {
		enriched[strings.TrimPrefix(ev.Source, "enriched:")] = ev
	}

	grouped := make(map[string][]research.Evidence)
	for _, ev := range view.Findings(TopicCurated) {
		if full, ok := enriched[strings.TrimPrefix(ev.Source, "curated:")]; ok && len(full.Content) > len(ev.Content) {
			ev.Content = full.Content
		}
		grouped[ev.Query] = append(grouped[ev.Query], ev)
	}

	var mu sync.Mutex
	var out []research.Evidence

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range researchTopics {
		evs, ok := grouped[topic]
		if !ok {
			continue
		}
		topic, evs := topic, evs
		g.Go(func() error {
			body := e.briefingBody(evs)
			res := rec.Complete(gctx, &provider.CompletionRequest{
				System:      "You are a research analyst writing concise markdown briefings.",
				Prompt:      fmt.Sprintf("Write a briefing on the %s of %q based only on the evidence below. Use short paragraphs and bullet points.\n\n%s", briefingTitles[topic], view.Subject.Company, body),
				Temperature: e.cfg.Temperature,
				MaxTokens:   e.cfg.CompletionMaxTokens,
			})
			if !res.OK() || strings.TrimSpace(res.Completion.Content) == "" {
				return nil
			}
			mu.Lock()
			out = append(out, research.Evidence{
				Topic:       TopicBriefings,
				Query:       topic,
				Source:      "briefing:" + topic,
				Title:       briefingTitles[topic],
				Content:     strings.TrimSpace(res.Completion.Content),
				Synthesized: true,
				CapturedAt:  time.Now().UTC(),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// briefingBody 将主题证据拼装为提示词正文并截断到预算内
func (e *Executor) briefingBody(evs []research.Evidence) string {
	var b strings.Builder
	for _, ev := range evs {
		if ev.Title != "" {
			fmt.Fprintf(&b, "### %s\n", ev.Title)
		}
		b.WriteString(ev.Content)
		b.WriteString("\n\n")
	}
	return e.truncateToTokens(b.String(), e.cfg.BriefingTokenBudget)
}
