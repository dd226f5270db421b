// =============================================================================
// 📦 Augur 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("config.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix 环境变量前缀
const envPrefix = "AUGUR_"

// Load 加载配置：默认值 → YAML（path 为空或文件不存在时跳过）→ 环境变量。
// 返回前执行 Validate。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// 没有配置文件时仅用默认值 + 环境变量
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖。凭证类字段只建议通过环境变量注入。
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")

	setString(&cfg.Search.BaseURL, "SEARCH_BASE_URL")
	setString(&cfg.Search.APIKey, "SEARCH_API_KEY")
	setInt(&cfg.Search.MaxResults, "SEARCH_MAX_RESULTS")

	setString(&cfg.Completion.BaseURL, "COMPLETION_BASE_URL")
	setString(&cfg.Completion.APIKey, "COMPLETION_API_KEY")
	setString(&cfg.Completion.Model, "COMPLETION_MODEL")

	setDuration(&cfg.Client.CallTimeout, "CLIENT_CALL_TIMEOUT")
	setInt(&cfg.Client.MaxAttempts, "CLIENT_MAX_ATTEMPTS")
	setInt(&cfg.Client.SearchConcurrency, "CLIENT_SEARCH_CONCURRENCY")
	setInt(&cfg.Client.CompletionConcurrency, "CLIENT_COMPLETION_CONCURRENCY")

	setDuration(&cfg.Workflow.RunDeadline, "WORKFLOW_RUN_DEADLINE")
	setBool(&cfg.Workflow.WarnOnBestEffort, "WORKFLOW_WARN_ON_BEST_EFFORT")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Mongo.URI, "MONGO_URI")
	setString(&cfg.Mongo.Database, "MONGO_DATABASE")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setBool(&cfg.Telemetry.Enabled, "TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "TELEMETRY_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
