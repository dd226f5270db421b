package step

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/types"
)

func TestEnrichment_FetchesRawContentPerSource(t *testing.T) {
	var mu sync.Mutex
	var reqs []*provider.SearchRequest
	client := &fakeClient{
		searchFn: func(req *provider.SearchRequest) *provider.CallResult {
			mu.Lock()
			reqs = append(reqs, req)
			mu.Unlock()
			return searchOK(req.Query, provider.SearchResult{
				URL: req.Query, Title: "full page", Content: "full raw page text fetched from " + req.Query, Score: 1.0,
			})
		},
	}
	e := newTestExecutor(client)
	view := curatedView(TopicFinancials, TopicNews)

	delta := e.Execute(context.Background(), stepDef(t, StepEnrichment), view)

	assert.Equal(t, research.StepSucceeded, delta.Outcome.Status)
	require.Len(t, reqs, 2)
	for _, req := range reqs {
		assert.True(t, req.IncludeRaw)
		assert.Equal(t, 1, req.MaxResults)
	}

	require.Len(t, delta.Evidence, 2)
	byTopic := map[string]research.Evidence{}
	for _, ev := range delta.Evidence {
		byTopic[ev.Query] = ev
	}
	fin, ok := byTopic[TopicFinancials]
	require.True(t, ok)
	assert.Equal(t, TopicEnriched, fin.Topic)
	assert.Equal(t, "enriched:https://financials.example", fin.Source)
	assert.True(t, fin.Synthesized)
	assert.Contains(t, fin.Content, "full raw page text")
}

func TestEnrichment_KeepsOnlyLongerContent(t *testing.T) {
	client := &fakeClient{
		searchFn: func(req *provider.SearchRequest) *provider.CallResult {
			// 抓取结果不比已有摘要长
			return searchOK(req.Query, provider.SearchResult{URL: req.Query, Content: "short", Score: 1.0})
		},
	}
	e := newTestExecutor(client)
	view := curatedView(TopicNews)

	delta := e.Execute(context.Background(), stepDef(t, StepEnrichment), view)

	assert.Empty(t, delta.Evidence)
	assert.Equal(t, research.StepSucceeded, delta.Outcome.Status)
	assert.Equal(t, 1, delta.Outcome.Calls)
}

func TestEnrichment_PerSourceFailureYieldsPartial(t *testing.T) {
	client := &fakeClient{
		searchFn: func(req *provider.SearchRequest) *provider.CallResult {
			if strings.Contains(req.Query, "news") {
				return searchFail(types.ErrTimeout)
			}
			return searchOK(req.Query, provider.SearchResult{
				URL: req.Query, Content: "full raw page text long enough to keep", Score: 1.0,
			})
		},
	}
	e := newTestExecutor(client)
	view := curatedView(TopicFinancials, TopicNews)

	delta := e.Execute(context.Background(), stepDef(t, StepEnrichment), view)

	// 单个来源抓取失败只损失该来源的原文
	assert.Equal(t, research.StepPartial, delta.Outcome.Status)
	assert.Equal(t, 2, delta.Outcome.Calls)
	assert.Equal(t, 1, delta.Outcome.Failures)
	require.Len(t, delta.Evidence, 1)
	assert.Equal(t, TopicFinancials, delta.Evidence[0].Query)
}

func TestEnrichment_DedupesSourcesAndSkipsNonURLs(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	client := &fakeClient{
		searchFn: func(req *provider.SearchRequest) *provider.CallResult {
			mu.Lock()
			queries = append(queries, req.Query)
			mu.Unlock()
			return searchOK(req.Query, provider.SearchResult{
				URL: req.Query, Content: "full raw page text long enough to keep", Score: 1.0,
			})
		},
	}
	e := newTestExecutor(client)

	now := time.Now().UTC()
	view := viewFor(research.Subject{Company: "Acme Corp"}, []*research.Delta{{
		Step: StepCuration,
		Evidence: []research.Evidence{
			{Topic: TopicCurated, Query: TopicNews, Source: "curated:https://dup.example", Content: "a", Synthesized: true, CapturedAt: now},
			{Topic: TopicCurated, Query: TopicFinancials, Source: "curated:https://dup.example", Content: "b", Synthesized: true, CapturedAt: now},
			{Topic: TopicCurated, Query: TopicCompany, Source: "curated:not-a-url", Content: "c", Synthesized: true, CapturedAt: now},
		},
		Outcome: research.StepOutcome{Step: StepCuration, Status: research.StepSucceeded},
	}}, TopicCurated)

	delta := e.Execute(context.Background(), stepDef(t, StepEnrichment), view)

	assert.Equal(t, []string{"https://dup.example"}, queries)
	assert.Equal(t, research.StepSucceeded, delta.Outcome.Status)
	require.Len(t, delta.Evidence, 1)
}

func TestEnrichment_NoCuratedEvidenceMakesNoCalls(t *testing.T) {
	called := false
	client := &fakeClient{
		searchFn: func(req *provider.SearchRequest) *provider.CallResult {
			called = true
			return searchOK(req.Query)
		},
	}
	e := newTestExecutor(client)
	view := viewFor(research.Subject{Company: "Acme Corp"}, nil, TopicCurated)

	delta := e.Execute(context.Background(), stepDef(t, StepEnrichment), view)

	assert.False(t, called)
	assert.Empty(t, delta.Evidence)
	assert.Equal(t, research.StepSucceeded, delta.Outcome.Status)
}

func TestBriefing_PrefersEnrichedContent(t *testing.T) {
	var gotPrompt string
	client := &fakeClient{
		completeFn: func(req *provider.CompletionRequest) *provider.CallResult {
			gotPrompt = req.Prompt
			return completeOK("briefing body")
		},
	}
	e := newTestExecutor(client)

	now := time.Now().UTC()
	view := viewFor(research.Subject{Company: "Acme Corp"}, []*research.Delta{
		{
			Step: StepCuration,
			Evidence: []research.Evidence{{
				Topic: TopicCurated, Query: TopicNews, Source: "curated:https://news.example",
				Title: "news finding", Content: "short snippet", Synthesized: true, CapturedAt: now,
			}},
			Outcome: research.StepOutcome{Step: StepCuration, Status: research.StepSucceeded},
		},
		{
			Step: StepEnrichment,
			Evidence: []research.Evidence{{
				Topic: TopicEnriched, Query: TopicNews, Source: "enriched:https://news.example",
				Title: "full page", Content: "the complete raw article text", Synthesized: true, CapturedAt: now,
			}},
			Outcome: research.StepOutcome{Step: StepEnrichment, Status: research.StepSucceeded},
		},
	}, TopicCurated, TopicEnriched, TopicBriefings)

	delta := e.Execute(context.Background(), stepDef(t, StepBriefing), view)

	require.Len(t, delta.Evidence, 1)
	assert.Contains(t, gotPrompt, "the complete raw article text")
	assert.NotContains(t, gotPrompt, "short snippet")
}
