package step

import (
	"time"

	"github.com/mirrorlake/augur/research"
)

// curate 按相关性阈值筛选原始证据，产出 curated 合成条目。
// 原始证据从不被修改或删除，筛选结果以新条目追加，保留来源链路。
// 该步骤不发起外部调用。
func (e *Executor) curate(view research.View) []research.Evidence {
	threshold := e.cfg.RelevanceThreshold
	now := time.Now().UTC()

	var out []research.Evidence
	for _, topic := range researchTopics {
		for _, ev := range view.Findings(topic) {
			if ev.Synthesized || ev.Score < threshold || ev.Content == "" {
				continue
			}
			out = append(out, research.Evidence{
				Topic: TopicCurated,
				// Query 保存来源主题，供简报步骤按主题分组
				Query:       topic,
				Source:      "curated:" + ev.Source,
				Title:       ev.Title,
				Content:     ev.Content,
				Score:       ev.Score,
				Synthesized: true,
				CapturedAt:  now,
			})
		}
	}
	return out
}
