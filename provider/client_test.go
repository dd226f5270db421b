package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/internal/cache"
	"github.com/mirrorlake/augur/types"
)

// =============================================================================
// 🧪 Client 测试
// =============================================================================

// scriptedSearch 按脚本依次返回结果或错误的假搜索 Provider
type scriptedSearch struct {
	results [][]SearchResult
	errs    []error
	calls   int
}

func (s *scriptedSearch) Name() string { return "fake-search" }

func (s *scriptedSearch) Search(ctx context.Context, req *SearchRequest) ([]SearchResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, errors.New("script exhausted")
}

type scriptedCompletion struct {
	errs  []error
	calls int
}

func (s *scriptedCompletion) Name() string { return "fake-llm" }

func (s *scriptedCompletion) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &CompletionResult{Content: "ok", Model: "fake"}, nil
}

func newTestClient(t *testing.T, search SearchProvider, completion CompletionProvider, cacheMgr *cache.Manager) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.CallTimeout = 2 * time.Second
	cfg.Retry = RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	c := NewClient(search, completion, cfg, cacheMgr, nil, zap.NewNop())
	// 测试中不真正睡眠
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestClient_SearchSucceedsFirstAttempt(t *testing.T) {
	search := &scriptedSearch{results: [][]SearchResult{{{URL: "https://a.example", Title: "A", Score: 0.9}}}}
	c := newTestClient(t, search, &scriptedCompletion{}, nil)

	res := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})

	require.Nil(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, res.Search, 1)
	assert.Equal(t, KindSearch, res.Kind)
	assert.Equal(t, "fake-search", res.Provider)
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	search := &scriptedSearch{
		errs:    []error{types.NewError(types.ErrRateLimited, "429").WithRetryable(true), nil},
		results: [][]SearchResult{nil, {{URL: "https://b.example"}}},
	}
	c := newTestClient(t, search, &scriptedCompletion{}, nil)

	res := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})

	require.Nil(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, search.calls)
	assert.Len(t, res.Search, 1)
}

func TestClient_PermanentErrorNotRetried(t *testing.T) {
	search := &scriptedSearch{
		errs: []error{types.NewError(types.ErrUnauthorized, "bad key")},
	}
	c := newTestClient(t, search, &scriptedCompletion{}, nil)

	res := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})

	require.NotNil(t, res.Err)
	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, types.ErrUnauthorized, res.Err.Code)
	assert.False(t, res.Err.Retryable)
}

func TestClient_ExhaustsAttemptsOnTransientError(t *testing.T) {
	transient := types.NewError(types.ErrUpstreamError, "503").WithRetryable(true)
	search := &scriptedSearch{errs: []error{transient, transient, transient}}
	c := newTestClient(t, search, &scriptedCompletion{}, nil)

	res := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})

	require.NotNil(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, search.calls)
	assert.Equal(t, types.ErrUpstreamError, res.Err.Code)
}

func TestClient_UnclassifiedErrorBecomesUpstream(t *testing.T) {
	search := &scriptedSearch{errs: []error{errors.New("connection reset"), nil}, results: [][]SearchResult{nil, {}}}
	c := newTestClient(t, search, &scriptedCompletion{}, nil)

	res := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})

	// 未分类错误视为可重试的上游错误
	require.Nil(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
}

func TestClient_CompleteReturnsPayload(t *testing.T) {
	c := newTestClient(t, &scriptedSearch{}, &scriptedCompletion{}, nil)

	res := c.Complete(context.Background(), &CompletionRequest{Prompt: "summarize"})

	require.Nil(t, res.Err)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "ok", res.Completion.Content)
	assert.Equal(t, KindCompletion, res.Kind)
}

func TestClient_SearchCacheHitSkipsProvider(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cacheMgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer cacheMgr.Close()

	search := &scriptedSearch{results: [][]SearchResult{{{URL: "https://c.example", Score: 0.5}}}}
	c := newTestClient(t, search, &scriptedCompletion{}, cacheMgr)

	first := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})
	require.Nil(t, first.Err)
	require.Equal(t, 1, search.calls)

	// 第二次命中缓存，不触达 Provider
	second := c.Search(context.Background(), &SearchRequest{Query: "acme corp"})
	require.Nil(t, second.Err)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, first.Search, second.Search)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  types.ErrorCode
		wantRetry bool
	}{
		{"typed passthrough", types.NewError(types.ErrForbidden, "no"), types.ErrForbidden, false},
		{"deadline exceeded", context.DeadlineExceeded, types.ErrTimeout, true},
		{"canceled", context.Canceled, types.ErrTimeout, false},
		{"unknown", errors.New("boom"), types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantRetry, got.Retryable)
		})
	}
}
