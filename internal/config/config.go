package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"resume-search-go/internal/constants"
)

// Config 应用程序配置
type Config struct {
	Aliyun struct {
		APIKey    string          `yaml:"api_key"`
		APIURL    string          `yaml:"api_url"`
		Model     string          `yaml:"model"`
		Embedding EmbeddingConfig `yaml:"embedding"`
	} `yaml:"aliyun"`

	Qdrant QdrantConfig `yaml:"qdrant"`

	MySQL MySQLConfig `yaml:"mysql"`

	Redis RedisConfig `yaml:"redis"`

	Server ServerConfig `yaml:"server"`

	Logger LoggerConfig `yaml:"logger"`

	// HybridSearch 混合检索初始权重，运行期可通过API调整
	HybridSearch HybridSearchConfig `yaml:"hybrid_search"`

	// Reranker LLM重排序配置
	Reranker RerankerConfig `yaml:"reranker"`

	// Chat 对话链配置
	Chat ChatConfig `yaml:"chat"`

	// Tracing OpenTelemetry导出配置
	Tracing TracingConfig `yaml:"tracing"`
}

// EmbeddingConfig Aliyun Embedding配置
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
}

// QdrantConfig Qdrant向量库配置
type QdrantConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_minutes"`
	LogLevel        string `yaml:"log_level"` // silent, error, warn, info
}

// DSN 构造MySQL连接串
func (m *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address             string `yaml:"address"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	PoolSize            int    `yaml:"pool_size"`
	MinIdleConns        int    `yaml:"min_idle_conns"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	TimeFormat   string `yaml:"time_format"`
	ReportCaller bool   `yaml:"report_caller"`
}

// HybridSearchConfig 混合检索权重（与types.HybridSearchConfig字段一致，此处用于YAML装载）
type HybridSearchConfig struct {
	VectorWeight  float64 `yaml:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight"`
}

// RerankerConfig LLM重排序配置
type RerankerConfig struct {
	Enabled         bool `yaml:"enabled"`
	ContentMaxChars int  `yaml:"content_max_chars"`
	OverfetchFactor int  `yaml:"overfetch_factor"`
}

// ChatConfig 对话链配置
type ChatConfig struct {
	DefaultTopK     int    `yaml:"default_top_k"`
	MaxHistoryTurns int    `yaml:"max_history_turns"` // 0 表示不限制
	HistoryTTL      string `yaml:"history_ttl"`       // 仅Redis会话存储生效，如 "72h"
	UseRedisMemory  bool   `yaml:"use_redis_memory"`
}

// TracingConfig OpenTelemetry配置
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LoadConfig 从文件加载配置，文件不存在时返回默认配置。
// 敏感项（API Key、数据库口令）允许用环境变量覆盖。
func LoadConfig(configPath string) (*Config, error) {
	cfg := createDefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件 %s 失败: %w", configPath, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件 %s 失败: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadConfigFromFileOnly 只从文件加载，不应用环境变量覆盖，供测试使用
func LoadConfigFromFileOnly(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", configPath, err)
	}
	cfg := createDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", configPath, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALIYUN_API_KEY"); v != "" {
		cfg.Aliyun.APIKey = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.MySQL.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QDRANT_ENDPOINT"); v != "" {
		cfg.Qdrant.Endpoint = v
	}
}

func createDefaultConfig() *Config {
	cfg := &Config{}

	cfg.Aliyun.APIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	cfg.Aliyun.Model = "qwen-plus"
	cfg.Aliyun.Embedding = EmbeddingConfig{
		Model:      "text-embedding-v3",
		Dimensions: 1024,
		BaseURL:    "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings",
	}

	cfg.Qdrant = QdrantConfig{
		Endpoint:   "http://localhost:6333",
		Collection: "resumes",
		Dimension:  1024,
	}

	cfg.MySQL = MySQLConfig{
		Host:            "localhost",
		Port:            3306,
		Username:        "root",
		Database:        "resume_search",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifeMins: 60,
		LogLevel:        "warn",
	}

	cfg.Redis = RedisConfig{
		Address:             "", // 默认不启用Redis会话存储
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeoutSeconds:  5,
		ReadTimeoutSeconds:  3,
		WriteTimeoutSeconds: 3,
	}

	cfg.Server = ServerConfig{Address: "0.0.0.0:8787"}

	cfg.Logger = LoggerConfig{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}

	cfg.HybridSearch = HybridSearchConfig{
		VectorWeight:  constants.DefaultVectorWeight,
		KeywordWeight: constants.DefaultKeywordWeight,
	}

	cfg.Reranker = RerankerConfig{
		Enabled:         true,
		ContentMaxChars: constants.RerankContentMaxChars,
		OverfetchFactor: constants.RerankOverfetchFactor,
	}

	cfg.Chat = ChatConfig{
		DefaultTopK:     constants.DefaultChatTopK,
		MaxHistoryTurns: constants.DefaultMaxHistoryTurns,
	}

	cfg.Tracing = TracingConfig{
		Enabled:     false,
		ServiceName: "resume-search-go",
		SampleRatio: 1.0,
	}

	return cfg
}

// CreateSampleConfig 把默认配置写到指定路径，方便首次部署
func CreateSampleConfig(filePath string) error {
	cfg := createDefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化默认配置失败: %w", err)
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// GetDuration 解析时长字符串，非法或为空时返回默认值
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
