// Copyright (c) Augur Authors.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mirrorlake/augur/api"
	"github.com/mirrorlake/augur/config"
	"github.com/mirrorlake/augur/internal/cache"
	"github.com/mirrorlake/augur/internal/metrics"
	"github.com/mirrorlake/augur/internal/server"
	"github.com/mirrorlake/augur/internal/telemetry"
	"github.com/mirrorlake/augur/provider"
	"github.com/mirrorlake/augur/provider/openai"
	"github.com/mirrorlake/augur/provider/tavily"
	"github.com/mirrorlake/augur/report"
	"github.com/mirrorlake/augur/step"
	"github.com/mirrorlake/augur/store"
	"github.com/mirrorlake/augur/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 装配整条研究流水线并承载它的 HTTP 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	httpManager *server.Manager

	collector *metrics.Collector
	cacheMgr  *cache.Manager
	archive   store.Archive
	mongo     *store.MongoArchive
	publisher *workflow.AsyncPublisher
	manager   *workflow.Manager
	hub       *api.Hub
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 装配并启动所有组件
func (s *Server) Start() error {
	// 1. 指标收集器
	s.collector = metrics.NewCollector("augur", s.logger)

	// 2. 搜索缓存（可选）
	if err := s.initCache(); err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}

	// 3. 归档存储
	if err := s.initArchive(); err != nil {
		return fmt.Errorf("failed to init archive: %w", err)
	}

	// 4. 工作流（Provider → 调用客户端 → 执行器 → 运行管理器）
	if err := s.initWorkflow(); err != nil {
		return fmt.Errorf("failed to init workflow: %w", err)
	}

	// 5. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All components started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("cache_enabled", s.cacheMgr != nil),
		zap.Bool("mongo_archive", s.mongo != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initCache 按配置连接 Redis。地址为空时禁用搜索缓存。
func (s *Server) initCache() error {
	if s.cfg.Redis.Addr == "" {
		s.logger.Info("redis not configured, search cache disabled")
		return nil
	}

	mgr, err := cache.NewManager(cache.Config{
		Addr:       s.cfg.Redis.Addr,
		Password:   s.cfg.Redis.Password,
		DB:         s.cfg.Redis.DB,
		DefaultTTL: s.cfg.Redis.TTL,
	}, s.logger)
	if err != nil {
		// 缓存是加速层，连不上时降级运行而不是拒绝启动
		s.logger.Warn("redis unavailable, search cache disabled", zap.Error(err))
		return nil
	}
	s.cacheMgr = mgr
	return nil
}

// initArchive 按配置选择归档后端。未配置 Mongo 时使用进程内存。
func (s *Server) initArchive() error {
	if s.cfg.Mongo.URI == "" {
		s.logger.Info("mongo not configured, using in-memory archive")
		s.archive = store.NewMemoryArchive()
		return nil
	}

	mongoArchive, err := store.NewMongoArchive(store.MongoConfig{
		URI:        s.cfg.Mongo.URI,
		Database:   s.cfg.Mongo.Database,
		Collection: s.cfg.Mongo.Collection,
	}, s.logger)
	if err != nil {
		return err
	}
	s.mongo = mongoArchive
	s.archive = mongoArchive
	return nil
}

// initWorkflow 装配研究流水线
func (s *Server) initWorkflow() error {
	if s.cfg.Search.APIKey == "" {
		s.logger.Warn("search API key is empty, upstream calls will fail")
	}
	if s.cfg.Completion.APIKey == "" {
		s.logger.Warn("completion API key is empty, upstream calls will fail")
	}

	searchProvider := tavily.New(tavily.Config{
		BaseURL: s.cfg.Search.BaseURL,
		APIKey:  s.cfg.Search.APIKey,
		Timeout: s.cfg.Client.CallTimeout,
	}, s.logger)

	completionProvider := openai.New(openai.Config{
		BaseURL: s.cfg.Completion.BaseURL,
		APIKey:  s.cfg.Completion.APIKey,
		Model:   s.cfg.Completion.Model,
		Timeout: s.cfg.Client.CallTimeout,
	}, s.logger)

	client := provider.NewClient(searchProvider, completionProvider, provider.ClientConfig{
		CallTimeout: s.cfg.Client.CallTimeout,
		Retry: provider.RetryPolicy{
			MaxAttempts:  s.cfg.Client.MaxAttempts,
			InitialDelay: s.cfg.Client.InitialDelay,
			MaxDelay:     s.cfg.Client.MaxDelay,
			Multiplier:   s.cfg.Client.Multiplier,
			Jitter:       s.cfg.Client.Jitter,
		},
		SearchConcurrency:     int64(s.cfg.Client.SearchConcurrency),
		CompletionConcurrency: int64(s.cfg.Client.CompletionConcurrency),
		SearchRPS:             s.cfg.Client.SearchRPS,
		CompletionRPS:         s.cfg.Client.CompletionRPS,
		CacheTTL:              s.cfg.Redis.TTL,
	}, s.cacheMgr, s.collector, s.logger)

	stepCfg := step.DefaultConfig()
	stepCfg.MaxResults = s.cfg.Search.MaxResults
	stepCfg.RelevanceThreshold = s.cfg.Workflow.RelevanceThreshold
	stepCfg.Temperature = s.cfg.Completion.Temperature
	stepCfg.CompletionMaxTokens = s.cfg.Completion.MaxTokens
	executor := step.NewExecutor(client, stepCfg, s.logger)

	s.hub = api.NewHub(s.logger)
	s.publisher = workflow.NewAsyncPublisher(s.hub, s.cfg.Workflow.PublisherBuffer, s.collector, s.logger)

	runner := workflow.NewRunner(step.Pipeline(), executor, s.publisher, s.collector, workflow.Config{
		RunDeadline:      s.cfg.Workflow.RunDeadline,
		WarnOnBestEffort: s.cfg.Workflow.WarnOnBestEffort,
	}, s.logger)

	s.manager = workflow.NewManager(runner, report.NewMarkdownAssembler(s.logger), s.archive, s.logger)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	handler := api.NewHandler(s.manager, s.logger)
	mux := api.Routes(handler, s.hub)

	s.httpManager = server.NewManager(mux, server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并按依赖反序收尾
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	// 等待在途运行收尾，再关闭事件队列与外部连接
	s.manager.Shutdown()
	s.publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			s.logger.Warn("mongo close failed", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
}
