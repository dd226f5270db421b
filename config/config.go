// =============================================================================
// 📦 Augur 配置结构
// =============================================================================
// 统一配置定义：服务器、外部 Provider、调用客户端、工作流、存储与可观测性。
// 配置优先级: 默认值 → YAML 文件 → 环境变量（见 loader.go）
// =============================================================================
package config

import (
	"fmt"
	"time"
)

// Config 是 Augur 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server"`

	// Search 搜索 Provider 配置
	Search SearchConfig `yaml:"search"`

	// Completion LLM Provider 配置
	Completion CompletionConfig `yaml:"completion"`

	// Client 外部调用客户端配置（重试 / 超时 / 并发上限）
	Client ClientConfig `yaml:"client"`

	// Workflow 工作流运行配置
	Workflow WorkflowConfig `yaml:"workflow"`

	// Redis 搜索结果缓存配置
	Redis RedisConfig `yaml:"redis"`

	// Mongo 报告归档配置
	Mongo MongoConfig `yaml:"mongo"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时（WebSocket 推流端点会覆盖此值）
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SearchConfig 搜索 Provider 配置
type SearchConfig struct {
	// BaseURL API 地址
	BaseURL string `yaml:"base_url"`
	// APIKey 凭证（建议通过环境变量 AUGUR_SEARCH_API_KEY 注入）
	APIKey string `yaml:"api_key"`
	// MaxResults 每次搜索返回的最大文档数
	MaxResults int `yaml:"max_results"`
}

// CompletionConfig LLM Provider 配置
type CompletionConfig struct {
	// BaseURL OpenAI 兼容 API 地址
	BaseURL string `yaml:"base_url"`
	// APIKey 凭证（建议通过环境变量 AUGUR_COMPLETION_API_KEY 注入）
	APIKey string `yaml:"api_key"`
	// Model 模型名称
	Model string `yaml:"model"`
	// Temperature 采样温度
	Temperature float32 `yaml:"temperature"`
	// MaxTokens 单次补全的最大 Token 数
	MaxTokens int `yaml:"max_tokens"`
}

// ClientConfig 外部调用客户端配置
type ClientConfig struct {
	// CallTimeout 单次调用超时
	CallTimeout time.Duration `yaml:"call_timeout"`
	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelay 重试初始延迟
	InitialDelay time.Duration `yaml:"initial_delay"`
	// MaxDelay 重试最大延迟
	MaxDelay time.Duration `yaml:"max_delay"`
	// Multiplier 指数退避倍增因子
	Multiplier float64 `yaml:"multiplier"`
	// Jitter 是否添加随机抖动（防止雪崩）
	Jitter bool `yaml:"jitter"`
	// SearchConcurrency 搜索类调用的进程级并发上限
	SearchConcurrency int `yaml:"search_concurrency"`
	// CompletionConcurrency 补全类调用的进程级并发上限
	CompletionConcurrency int `yaml:"completion_concurrency"`
	// SearchRPS 搜索类调用的每秒速率上限（0 表示不限制）
	SearchRPS float64 `yaml:"search_rps"`
	// CompletionRPS 补全类调用的每秒速率上限（0 表示不限制）
	CompletionRPS float64 `yaml:"completion_rps"`
}

// WorkflowConfig 工作流运行配置
type WorkflowConfig struct {
	// RunDeadline 整个运行的截止时长（0 表示不设截止）
	RunDeadline time.Duration `yaml:"run_deadline"`
	// WarnOnBestEffort 尽力型步骤的非成功结果是否计入告警状态
	WarnOnBestEffort bool `yaml:"warn_on_best_effort"`
	// RelevanceThreshold 筛选文档的相关度阈值
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	// PublisherBuffer 进度事件队列长度（有界，满则丢弃并计数）
	PublisherBuffer int `yaml:"publisher_buffer"`
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	// Addr 地址（为空表示禁用搜索缓存）
	Addr string `yaml:"addr"`
	// Password 密码
	Password string `yaml:"password"`
	// DB 数据库编号
	DB int `yaml:"db"`
	// TTL 缓存过期时间
	TTL time.Duration `yaml:"ttl"`
}

// MongoConfig MongoDB 归档配置
type MongoConfig struct {
	// URI 连接串（为空表示使用内存归档）
	URI string `yaml:"uri"`
	// Database 数据库名
	Database string `yaml:"database"`
	// Collection 集合名
	Collection string `yaml:"collection"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// Format 输出格式: json, console
	Format string `yaml:"format"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// Enabled 是否启用 OTel 上报
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP gRPC 端点
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名
	ServiceName string `yaml:"service_name"`
	// Insecure 是否使用明文连接
	Insecure bool `yaml:"insecure"`
}

// Default 返回完整的默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
		},
		Completion: CompletionConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		Client: ClientConfig{
			CallTimeout:           30 * time.Second,
			MaxAttempts:           3,
			InitialDelay:          1 * time.Second,
			MaxDelay:              30 * time.Second,
			Multiplier:            2.0,
			Jitter:                true,
			SearchConcurrency:     8,
			CompletionConcurrency: 4,
		},
		Workflow: WorkflowConfig{
			RunDeadline:        10 * time.Minute,
			WarnOnBestEffort:   true,
			RelevanceThreshold: 0.4,
			PublisherBuffer:    256,
		},
		Redis: RedisConfig{
			TTL: 30 * time.Minute,
		},
		Mongo: MongoConfig{
			Database:   "augur",
			Collection: "reports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "augur",
			Insecure:    true,
		},
	}
}

// Validate 校验配置的关键字段
func (c *Config) Validate() error {
	if c.Client.MaxAttempts < 1 {
		return fmt.Errorf("config: client.max_attempts must be >= 1, got %d", c.Client.MaxAttempts)
	}
	if c.Client.CallTimeout <= 0 {
		return fmt.Errorf("config: client.call_timeout must be positive")
	}
	if c.Client.Multiplier < 1.0 {
		return fmt.Errorf("config: client.multiplier must be >= 1.0, got %v", c.Client.Multiplier)
	}
	if c.Client.SearchConcurrency < 1 || c.Client.CompletionConcurrency < 1 {
		return fmt.Errorf("config: client concurrency caps must be >= 1")
	}
	if c.Workflow.RelevanceThreshold < 0 || c.Workflow.RelevanceThreshold > 1 {
		return fmt.Errorf("config: workflow.relevance_threshold must be in [0,1], got %v", c.Workflow.RelevanceThreshold)
	}
	if c.Workflow.PublisherBuffer < 1 {
		return fmt.Errorf("config: workflow.publisher_buffer must be >= 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is not one of debug/info/warn/error", c.Log.Level)
	}
	return nil
}
