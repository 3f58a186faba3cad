package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Dispatch  DispatchConfig
	Session   SessionConfig
	Registry  RegistryConfig
	Providers ProvidersConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	dispatch, err := loadDispatchConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Dispatch:  dispatch,
		Session:   session,
		Registry:  RegistryConfig{File: strings.TrimSpace(os.Getenv("CHATBOTS_FILE"))},
		Providers: providers,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DispatchConfig 描述一次 prompt 分发的超时与历史容量。
type DispatchConfig struct {
	// GlobalTimeout 整个 bundle 的截止时间。
	GlobalTimeout time.Duration
	// CallTimeout 单个 chatbot 的截止时间（会话 + 发送）。
	CallTimeout time.Duration
	// HistorySize 历史记录保留的 bundle 数量。
	HistorySize int
}

func loadDispatchConfig() (DispatchConfig, error) {
	global, err := parseDurationEnv("DISPATCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return DispatchConfig{}, err
	}

	call, err := parseDurationEnv("DISPATCH_CALL_TIMEOUT", 45*time.Second)
	if err != nil {
		return DispatchConfig{}, err
	}
	if call > global {
		call = global
	}

	historySize := 100
	if override, err := parseOptionalIntEnv("HISTORY_SIZE"); err != nil {
		return DispatchConfig{}, err
	} else if override != nil {
		historySize = *override
		if historySize < 1 {
			historySize = 1
		}
	}

	return DispatchConfig{
		GlobalTimeout: global,
		CallTimeout:   call,
		HistorySize:   historySize,
	}, nil
}

// SessionConfig 描述会话缓存配置。
type SessionConfig struct {
	TTL            time.Duration
	AcquireTimeout time.Duration
	// Prewarm 启动时为所有启用的 chatbot 预热会话。
	Prewarm bool
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	acquire, err := parseDurationEnv("SESSION_ACQUIRE_TIMEOUT", 15*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	prewarm, err := parseBoolEnv("SESSION_PREWARM", false)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{TTL: ttl, AcquireTimeout: acquire, Prewarm: prewarm}, nil
}

// RegistryConfig 指向可选的 YAML chatbot 列表。
type RegistryConfig struct {
	File string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

// ProvidersConfig 汇总各 chatbot 厂商的凭证。
type ProvidersConfig struct {
	OpenAI     OpenAIConfig
	Perplexity OpenAIConfig
	Anthropic  LLMConfig
	Gemini     LLMConfig
	Ark        ArkConfig
}

// OpenAIConfig 描述 OpenAI 及兼容接口的配置。
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
}

// Enabled 表示是否提供了必需的密钥。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// LLMConfig 描述通过 langchaingo 接入的厂商配置。
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled 表示是否提供了必需的密钥。
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig 描述火山方舟大模型相关配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadProvidersConfig() (ProvidersConfig, error) {
	openAITemp, err := parseOptionalFloatEnv("OPENAI_TEMPERATURE")
	if err != nil {
		return ProvidersConfig{}, err
	}

	arkTemp, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ProvidersConfig{}, err
	}

	arkTopP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return ProvidersConfig{}, err
	}

	arkMaxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ProvidersConfig{}, err
	}

	return ProvidersConfig{
		OpenAI: OpenAIConfig{
			APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: openAITemp,
		},
		Perplexity: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
			Model:   getEnvOrDefault("PERPLEXITY_MODEL", "sonar"),
			BaseURL: getEnvOrDefault("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
		},
		Anthropic: LLMConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			Model:   getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			BaseURL: getEnvOrDefault("ANTHROPIC_BASE_URL", ""),
		},
		Gemini: LLMConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: arkTemp,
			TopP:        arkTopP,
			MaxTokens:   arkMaxTokens,
		},
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 支持 Go 时长格式（"45s"）或纯秒数（"45"）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
