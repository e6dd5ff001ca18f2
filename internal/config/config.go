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

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server          ServerConfig
	AI              AIConfig
	Bhashini        BhashiniConfig
	Speech          SpeechConfig
	Conversation    ConversationConfig
	Session         SessionConfig
	Database        DatabaseConfig
	Log             LogConfig
	ProviderTimeout time.Duration
}

// Load 从环境变量加载配置。必需的密钥缺失时返回 StartupConfigurationMissing。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	conversation, err := loadConversationConfig()
	if err != nil {
		return nil, err
	}

	timeout, err := parseDurationEnv("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}
	ai.Timeout = timeout

	cfg := &Config{
		Server:          server,
		AI:              ai,
		Bhashini:        loadBhashiniConfig(),
		Speech:          speech,
		Conversation:    conversation,
		Session:         session,
		Database:        DatabaseConfig{DSN: strings.TrimSpace(os.Getenv("MYSQL_DSN"))},
		Log:             loadLogConfig(),
		ProviderTimeout: timeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports every missing secret at once so operators fix them in one go.
func (c *Config) validate() error {
	var missing []string
	if c.AI.Model == "" {
		missing = append(missing, "Model")
	}
	if c.AI.APIKey == "" && (c.AI.AccessKey == "" || c.AI.SecretKey == "") {
		missing = append(missing, "ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY)")
	}
	if c.Bhashini.UserID == "" {
		missing = append(missing, "BHASHINI_USER_ID")
	}
	if c.Bhashini.APIKey == "" {
		missing = append(missing, "BHASHINI_API_KEY")
	}
	if c.Bhashini.PipelineID == "" {
		missing = append(missing, "BHASHINI_PIPELINE_ID")
	}
	if c.Session.Secret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if len(missing) > 0 {
		return errs.New(errs.KindStartupConfigurationMissing, "config.Load",
			"missing required environment: "+strings.Join(missing, ", "))
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// loadServerConfig 解析服务器监听地址与入口限流参数。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var addr string
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	default:
		addr = ":" + port
	}

	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return ServerConfig{}, err
	}
	rateLimit := 2.0
	if rps != nil {
		rateLimit = *rps
	}

	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return ServerConfig{}, err
	}
	rateBurst := 5
	if burst != nil {
		rateBurst = *burst
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRPS:   rateLimit,
		RateLimitBurst: rateBurst,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	RetryOnce   bool
	// Timeout 取自 PROVIDER_TIMEOUT，作用于每次模型请求。
	Timeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errs.New(errs.KindStartupConfigurationMissing, "config.NewChatModel",
			"Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.Timeout = &timeout
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	retryOnce, err := parseBoolEnv("AI_RETRY_ONCE", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		RetryOnce:   retryOnce,
	}, nil
}

// BhashiniConfig 描述 ULCA 多语言 pipeline 的凭证。
type BhashiniConfig struct {
	UserID     string
	APIKey     string
	PipelineID string
	ConfigURL  string
}

func loadBhashiniConfig() BhashiniConfig {
	return BhashiniConfig{
		UserID:     strings.TrimSpace(os.Getenv("BHASHINI_USER_ID")),
		APIKey:     strings.TrimSpace(os.Getenv("BHASHINI_API_KEY")),
		PipelineID: strings.TrimSpace(os.Getenv("BHASHINI_PIPELINE_ID")),
		ConfigURL: getEnvOrDefault("BHASHINI_CONFIG_URL",
			"https://meity-auth.ulcacontrib.org/ulca/apis/v0/model/getModelsPipeline"),
	}
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	ASRProvider string
	SampleRate  int
	RedisURL    string
	CacheTTL    time.Duration
}

func loadSpeechConfig() (SpeechConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("SPEECH_ASR_PROVIDER", "bhashini"))
	if provider != "bhashini" && provider != "google" {
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_ASR_PROVIDER value %q: want bhashini or google", provider)
	}

	rate, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE")
	if err != nil {
		return SpeechConfig{}, err
	}
	sampleRate := 16000
	if rate != nil {
		sampleRate = *rate
	}

	cacheTTL, err := parseDurationEnv("TTS_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		ASRProvider: provider,
		SampleRate:  sampleRate,
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:    cacheTTL,
	}, nil
}

// ConversationConfig 控制编排层与会话存储。
type ConversationConfig struct {
	PivotLanguage      string
	HistoryLimit       int
	MaxTurnsPerSession int
	MaxSessions        int
	SessionTTL         time.Duration
}

func loadConversationConfig() (ConversationConfig, error) {
	cfg := ConversationConfig{
		PivotLanguage:      language.Normalize(getEnvOrDefault("PIVOT_LANGUAGE", "en")),
		HistoryLimit:       10,
		MaxTurnsPerSession: 200,
		MaxSessions:        10000,
	}
	// 枢轴语言必须能被翻译 provider 处理，否则每一轮非枢轴对话都会失败。
	if entry, ok := language.NewMemoryStore(language.Seed()).FindByCode(cfg.PivotLanguage); !ok || entry.ProviderCode == "" {
		return ConversationConfig{}, fmt.Errorf("invalid PIVOT_LANGUAGE value %q: not a supported catalog language", cfg.PivotLanguage)
	}

	overrides := []struct {
		key string
		dst *int
		min int
	}{
		{"HISTORY_LIMIT", &cfg.HistoryLimit, 0},
		{"MAX_TURNS_PER_SESSION", &cfg.MaxTurnsPerSession, 2},
		{"MAX_SESSIONS", &cfg.MaxSessions, 1},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return ConversationConfig{}, err
		}
		if val == nil {
			continue
		}
		if *val < o.min {
			return ConversationConfig{}, fmt.Errorf("invalid %s value %d: must be >= %d", o.key, *val, o.min)
		}
		*o.dst = *val
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 2*time.Hour)
	if err != nil {
		return ConversationConfig{}, err
	}
	cfg.SessionTTL = ttl

	return cfg, nil
}

// SessionConfig 会话 cookie 签名配置。
type SessionConfig struct {
	Secret       string
	CookieMaxAge time.Duration
	CookieSecure bool
}

func loadSessionConfig() (SessionConfig, error) {
	maxAge, err := parseDurationEnv("SESSION_COOKIE_MAX_AGE", 30*24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	secure, err := parseBoolEnv("SESSION_COOKIE_SECURE", false)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{
		Secret:       strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		CookieMaxAge: maxAge,
		CookieSecure: secure,
	}, nil
}

// DatabaseConfig 投诉/申请存储。DSN 为空时使用内存存储。
type DatabaseConfig struct {
	DSN string
}

// Enabled reports whether a MySQL DSN was provided.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

// LogConfig 日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
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
