package step

import (
	"context"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/types"
	"github.com/mirrorlake/augur/workflow"
)

// 步骤名
const (
	StepGrounding  = "grounding"
	StepFinancial  = "financial_analysis"
	StepNews       = "news_scan"
	StepIndustry   = "industry_analysis"
	StepCompany    = "company_analysis"
	StepCompetitor = "competitor_analysis"
	StepCuration   = "curation"
	StepEnrichment = "enrichment"
	StepBriefing   = "briefing"
	StepEditor     = "editor"
)

// 主题键
const (
	TopicGrounding   = "grounding"
	TopicFinancials  = "financials"
	TopicNews        = "news"
	TopicIndustry    = "industry"
	TopicCompany     = "company"
	TopicCompetitors = "competitors"
	TopicCurated     = "curated"
	TopicEnriched    = "enriched"
	TopicBriefings   = "briefings"
	TopicReport      = "report"
)

// researchTopics 是参与筛选与简报的原始研究主题
var researchTopics = []string{
	TopicGrounding, TopicCompany, TopicFinancials, TopicNews, TopicIndustry, TopicCompetitors,
}

// CallClient 是步骤对外部调用的唯一入口。*provider.Client 实现了它。
type CallClient interface {
	Search(ctx context.Context, req *provider.SearchRequest) *provider.CallResult
	Complete(ctx context.Context, req *provider.CompletionRequest) *provider.CallResult
}

// Config 步骤执行配置
type Config struct {
	// MaxResults 每次搜索返回的结果上限
	MaxResults int
	// MaxQueries 每个研究步骤的子查询上限
	MaxQueries int
	// RelevanceThreshold 筛选步骤保留证据的最低相关性分数
	RelevanceThreshold float64
	// BriefingTokenBudget 简报提示词的 token 预算
	BriefingTokenBudget int
	// EnrichmentConcurrency 原文抓取的并发上限
	EnrichmentConcurrency int
	// Temperature / CompletionMaxTokens 透传给补全调用
	Temperature         float32
	CompletionMaxTokens int
}

// DefaultConfig 返回默认步骤配置
func DefaultConfig() Config {
	return Config{
		MaxResults:            5,
		MaxQueries:            4,
		RelevanceThreshold:    0.4,
		BriefingTokenBudget:   4000,
		EnrichmentConcurrency: 3,
		Temperature:           0.4,
		CompletionMaxTokens:   1024,
	}
}

// Executor 按名称分发执行流水线步骤，实现 workflow.Executor。
// 失败以结果数据形式进入步骤结论，从不作为错误向上抛出。
type Executor struct {
	client CallClient
	cfg    Config
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewExecutor 创建步骤执行器
func NewExecutor(client CallClient, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 5
	}
	if cfg.MaxQueries < 1 {
		cfg.MaxQueries = 4
	}
	if cfg.BriefingTokenBudget < 1 {
		cfg.BriefingTokenBudget = 4000
	}
	if cfg.EnrichmentConcurrency < 1 {
		cfg.EnrichmentConcurrency = 3
	}
	return &Executor{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "step_executor")),
	}
}

// Pipeline 构建生产流水线图。进程启动时构建一次，跨运行只读共享。
func Pipeline() *workflow.Graph {
	return workflow.MustGraph(
		workflow.StepDefinition{
			Name: StepGrounding, Topic: TopicGrounding, Required: true,
		},
		workflow.StepDefinition{
			Name: StepFinancial, Topic: TopicFinancials, Required: true,
			DependsOn: []string{StepGrounding}, Reads: []string{TopicGrounding},
		},
		workflow.StepDefinition{
			Name: StepNews, Topic: TopicNews,
			DependsOn: []string{StepGrounding}, Reads: []string{TopicGrounding},
		},
		workflow.StepDefinition{
			Name: StepIndustry, Topic: TopicIndustry,
			DependsOn: []string{StepGrounding}, Reads: []string{TopicGrounding},
		},
		workflow.StepDefinition{
			Name: StepCompany, Topic: TopicCompany,
			DependsOn: []string{StepGrounding}, Reads: []string{TopicGrounding},
		},
		workflow.StepDefinition{
			Name: StepCompetitor, Topic: TopicCompetitors,
			DependsOn: []string{StepCompany}, Reads: []string{TopicCompany, TopicCompetitors},
			// 公司分析没有发现对手名称时直接跳过
			Predicate: func(v research.View) bool { return v.HasFindings(TopicCompetitors) },
		},
		workflow.StepDefinition{
			Name: StepCuration, Topic: TopicCurated, Required: true,
			DependsOn: []string{StepFinancial, StepNews, StepIndustry, StepCompany, StepCompetitor},
			Reads:     researchTopics,
		},
		workflow.StepDefinition{
			// 尽力而为：为筛选后的证据抓取原文，失败不阻塞简报
			Name: StepEnrichment, Topic: TopicEnriched,
			DependsOn: []string{StepCuration}, Reads: []string{TopicCurated},
		},
		workflow.StepDefinition{
			Name: StepBriefing, Topic: TopicBriefings, Required: true,
			DependsOn: []string{StepEnrichment}, Reads: []string{TopicCurated, TopicEnriched},
		},
		workflow.StepDefinition{
			Name: StepEditor, Topic: TopicReport, Required: true,
			DependsOn: []string{StepBriefing}, Reads: []string{TopicBriefings, TopicCurated},
		},
	)
}

// Execute 执行一个步骤并返回其 Delta
func (e *Executor) Execute(ctx context.Context, def workflow.StepDefinition, view research.View) *research.Delta {
	started := time.Now().UTC()
	rec := newRecorder(e.client)

	var evidence []research.Evidence
	switch def.Name {
	case StepGrounding:
		evidence = e.grounding(ctx, rec, view)
	case StepFinancial:
		evidence = e.research(ctx, rec, view, TopicFinancials)
	case StepNews:
		evidence = e.research(ctx, rec, view, TopicNews)
	case StepIndustry:
		evidence = e.research(ctx, rec, view, TopicIndustry)
	case StepCompany:
		evidence = e.companyAnalysis(ctx, rec, view)
	case StepCompetitor:
		evidence = e.competitorAnalysis(ctx, rec, view)
	case StepCuration:
		evidence = e.curate(view)
	case StepEnrichment:
		evidence = e.enrich(ctx, rec, view)
	case StepBriefing:
		evidence = e.briefing(ctx, rec, view)
	case StepEditor:
		evidence = e.editor(ctx, rec, view)
	default:
		rec.fail(types.NewError(types.ErrStepFailed, "unknown step "+def.Name))
	}

	outcome := rec.outcome(def.Name, started)
	e.logger.Debug("step executed",
		zap.String("run_id", view.RunID),
		zap.String("step", def.Name),
		zap.String("status", string(outcome.Status)),
		zap.Int("evidence", len(evidence)),
	)
	return &research.Delta{Step: def.Name, Evidence: evidence, Outcome: outcome}
}

// tokenizer 懒加载 tiktoken 编码（首次使用可能下载数据）
func (e *Executor) tokenizer() *tiktoken.Tiktoken {
	e.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			e.logger.Warn("tiktoken init failed, falling back to rune truncation", zap.Error(err))
			return
		}
		e.enc = enc
	})
	return e.enc
}

// truncateToTokens 将文本截断到 token 预算之内。
// 编码器不可用时按 4 字符 ≈ 1 token 的近似值截断。
func (e *Executor) truncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	if enc := e.tokenizer(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text
		}
		return enc.Decode(tokens[:budget])
	}
	limit := budget * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// recorder 记录一个步骤内的全部外部调用，并据此推导步骤结论
type recorder struct {
	client CallClient

	mu       sync.Mutex
	calls    int
	failures int
	lastErr  *types.Error
}

func newRecorder(client CallClient) *recorder {
	return &recorder{client: client}
}

// Search 执行搜索并记账
func (r *recorder) Search(ctx context.Context, req *provider.SearchRequest) *provider.CallResult {
	res := r.client.Search(ctx, req)
	r.track(res.Err)
	return res
}

// Complete 执行补全并记账
func (r *recorder) Complete(ctx context.Context, req *provider.CompletionRequest) *provider.CallResult {
	res := r.client.Complete(ctx, req)
	r.track(res.Err)
	return res
}

func (r *recorder) track(err *types.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err != nil {
		r.failures++
		r.lastErr = err
	}
}

// fail 追加一次不对应外部调用的失败（如内容级解析失败）
func (r *recorder) fail(err *types.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.failures++
	r.lastErr = err
}

// outcome 推导步骤结论：零调用或全部成功 ⇒ succeeded，
// 部分成功 ⇒ partial，全部失败 ⇒ failed。
func (r *recorder) outcome(step string, started time.Time) research.StepOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := research.StepSucceeded
	errDetail := ""
	if r.failures > 0 {
		if r.failures < r.calls {
			status = research.StepPartial
		} else {
			status = research.StepFailed
		}
		if r.lastErr != nil {
			errDetail = r.lastErr.Error()
		}
	}
	return research.StepOutcome{
		Step:       step,
		Status:     status,
		Error:      errDetail,
		Calls:      r.calls,
		Failures:   r.failures,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}
