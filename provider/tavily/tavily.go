// Package tavily implements the search provider adapter for the Tavily API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/types"
)

const defaultBaseURL = "https://api.tavily.com"

// Config holds Tavily provider configuration.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout for the underlying HTTP client. The call client enforces
	// its own per-attempt deadline, so this is a backstop only.
	Timeout time.Duration
}

// Provider implements provider.SearchProvider against the Tavily search API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Tavily search provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "tavily" }

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeRawContent bool   `json:"include_raw_content,omitempty"`
	SearchDepth       string `json:"search_depth,omitempty"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		URL        string  `json:"url"`
		Title      string  `json:"title"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content,omitempty"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Search executes one search call. Failures come back as classified
// *types.Error so the call client can decide whether to retry.
func (p *Provider) Search(ctx context.Context, req *provider.SearchRequest) ([]provider.SearchResult, error) {
	body := searchRequest{
		Query:      req.Query,
		MaxResults: req.MaxResults,
	}
	if req.IncludeRaw {
		body.IncludeRawContent = true
		body.SearchDepth = "advanced"
	}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/search", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error()).WithProvider(p.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Context errors pass through for uniform timeout classification.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}

	results := make([]provider.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		content := r.Content
		if req.IncludeRaw && r.RawContent != "" {
			content = r.RawContent
		}
		results = append(results, provider.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Content: content,
			Score:   r.Score,
		})
	}
	return results, nil
}

func mapError(status int, msg, providerName string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status).WithProvider(providerName)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(providerName)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(providerName)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(providerName)
	default:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(providerName)
	}
}

func readErrMsg(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Detail != "" {
			return e.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
