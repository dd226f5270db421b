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
	"github.com/mirrorlake/augur/types"
)

func malformedContent(msg string) *types.Error {
	return types.NewError(types.ErrMalformedResponse, msg)
}

// grounding 产出种子证据：公司官网抓取（若提供 URL）加画像搜索。
// 不经过 LLM，失败由 recorder 记账。
func (e *Executor) grounding(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	subject := view.Subject

	var evidence []research.Evidence
	if subject.CompanyURL != "" {
		res := rec.Search(ctx, &provider.SearchRequest{
			Query:      subject.CompanyURL,
			MaxResults: 1,
			IncludeRaw: true,
		})
		if res.OK() {
			evidence = append(evidence, toEvidence(TopicGrounding, subject.CompanyURL, res.Search)...)
		}
	}

	profile := fmt.Sprintf("%s company overview", subject.Company)
	if subject.HQLocation != "" {
		profile += " " + subject.HQLocation
	}
	evidence = append(evidence, e.runSearches(ctx, rec, TopicGrounding, []string{profile})...)
	return evidence
}

// research 是通用研究步骤：生成子查询后并发搜索
func (e *Executor) research(ctx context.Context, rec *recorder, view research.View, topic string) []research.Evidence {
	queries := e.generateQueries(ctx, rec, view.Subject, topic)
	return e.runSearches(ctx, rec, topic, queries)
}

// companyAnalysis 在公司研究之上追加竞争对手名称抽取，
// 抽取结果作为 competitor_analysis 的种子
func (e *Executor) companyAnalysis(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	evidence := e.research(ctx, rec, view, TopicCompany)
	if len(evidence) == 0 {
		return evidence
	}

	names := e.extractCompetitors(ctx, rec, view.Subject, evidence)
	now := time.Now().UTC()
	for _, name := range names {
		evidence = append(evidence, research.Evidence{
			Topic:       TopicCompetitors,
			Source:      "competitor:" + name,
			Title:       name,
			Content:     name,
			Synthesized: true,
			CapturedAt:  now,
		})
	}
	return evidence
}

// extractCompetitors 用一次补全从已收集的内容中抽取对手名称。
// 失败时返回空，步骤照常继续。
func (e *Executor) extractCompetitors(ctx context.Context, rec *recorder, subject research.Subject, evidence []research.Evidence) []string {
	var b strings.Builder
	for _, ev := range evidence {
		b.WriteString(ev.Content)
		b.WriteString("\n")
	}
	body := e.truncateToTokens(b.String(), e.cfg.BriefingTokenBudget)

	res := rec.Complete(ctx, &provider.CompletionRequest{
		System:       "You extract competitor company names. Respond with a JSON array of names and nothing else.",
		Prompt:       fmt.Sprintf("List direct competitors of %q mentioned in the following research. Return an empty array if none are mentioned.\n\n%s", subject.Company, body),
		ResponseHint: "json_array",
		Temperature:  e.cfg.Temperature,
		MaxTokens:    256,
	})
	if !res.OK() {
		return nil
	}
	names, err := parseStringList(res.Completion.Content)
	if err != nil {
		rec.fail(malformedContent("competitor extraction returned unparsable content"))
		return nil
	}

	out := make([]string, 0, len(names))
	seen := make(map[string]struct{})
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, subject.Company) {
			continue
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			continue
		}
		seen[strings.ToLower(name)] = struct{}{}
		out = append(out, name)
	}
	return out
}

// competitorAnalysis 逐个搜索公司分析抽取出的对手名称
func (e *Executor) competitorAnalysis(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	var queries []string
	for _, ev := range view.Findings(TopicCompetitors) {
		if !ev.Synthesized {
			continue
		}
		queries = append(queries, fmt.Sprintf("%s company profile products", ev.Content))
		if len(queries) == e.cfg.MaxQueries {
			break
		}
	}
	return e.runSearches(ctx, rec, TopicCompetitors, queries)
}

// runSearches 并发执行查询，每条成功结果成为一条证据。
// 单条查询失败只记账，不会中断其余查询。
func (e *Executor) runSearches(ctx context.Context, rec *recorder, topic string, queries []string) []research.Evidence {
	var mu sync.Mutex
	var out []research.Evidence

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		query := query
		g.Go(func() error {
			res := rec.Search(gctx, &provider.SearchRequest{
				Query:      query,
				MaxResults: e.cfg.MaxResults,
			})
			if !res.OK() {
				return nil
			}
			evs := toEvidence(topic, query, res.Search)
			mu.Lock()
			out = append(out, evs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func toEvidence(topic, query string, results []provider.SearchResult) []research.Evidence {
	now := time.Now().UTC()
	out := make([]research.Evidence, 0, len(results))
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		out = append(out, research.Evidence{
			Topic:      topic,
			Source:     r.URL,
			Title:      r.Title,
			Content:    r.Content,
			Query:      query,
			Score:      r.Score,
			CapturedAt: now,
		})
	}
	return out
}
