package step

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
)

// enrich 为筛选后的证据逐源抓取原文。每个来源 URL 只抓一次，
// 并发受 EnrichmentConcurrency 限制，单个 URL 失败只记账。
// 抓取结果只有在长于已有摘要时才成为证据。
func (e *Executor) enrich(ctx context.Context, rec *recorder, view research.View) []research.Evidence {
	type target struct {
		url   string
		topic string
		have  int
	}

	var targets []target
	seen := make(map[string]struct{})
	for _, ev := range view.Findings(TopicCurated) {
		url := strings.TrimPrefix(ev.Source, "curated:")
		if url == "" || !strings.HasPrefix(url, "http") {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		targets = append(targets, target{url: url, topic: ev.Query, have: len(ev.Content)})
	}

	var mu sync.Mutex
	var out []research.Evidence

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EnrichmentConcurrency)
	for _, tgt := range targets {
		tgt := tgt
		g.Go(func() error {
			res := rec.Search(gctx, &provider.SearchRequest{
				Query:      tgt.url,
				MaxResults: 1,
				IncludeRaw: true,
			})
			if !res.OK() || len(res.Search) == 0 {
				return nil
			}
			full := res.Search[0]
			if full.Content == "" || len(full.Content) <= tgt.have {
				return nil
			}
			mu.Lock()
			out = append(out, research.Evidence{
				Topic: TopicEnriched,
				// Query 保存来源主题，与 curated 条目保持一致
				Query:       tgt.topic,
				Source:      "enriched:" + tgt.url,
				Title:       full.Title,
				Content:     full.Content,
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
