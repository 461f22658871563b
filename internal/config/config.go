package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（向量缓存 + 任务队列）
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int `mapstructure:"min_idle_conns"` // 最小空闲连接数
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig 模型提供方配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Ollama OllamaConfig `mapstructure:"ollama"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	OrgID          string `mapstructure:"org_id"`
	ChatModel      string `mapstructure:"chat_model"`      // 默认 gpt-4o-mini
	EmbeddingModel string `mapstructure:"embedding_model"` // 默认 text-embedding-3-small
}

// OllamaConfig Ollama 本地模型配置
type OllamaConfig struct {
	BaseURL        string `mapstructure:"base_url"` // 默认 http://localhost:11434
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RetrievalConfig 检索管线配置
type RetrievalConfig struct {
	EmbeddingProvider string            `mapstructure:"embedding_provider"` // openai, ollama
	Chunker           ChunkerConfig     `mapstructure:"chunker"`
	Retriever         RetrieverConfig   `mapstructure:"retriever"`
	VectorStore       VectorStoreConfig `mapstructure:"vector_store"`
	Answer            AnswerConfig      `mapstructure:"answer"`
	Cache             EmbedCacheConfig  `mapstructure:"cache"`
}

// ChunkerConfig 文档分块配置
type ChunkerConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`    // 默认 500 字符
	ChunkOverlap int `mapstructure:"chunk_overlap"` // 默认 50 字符
}

// RetrieverConfig 检索参数配置
type RetrieverConfig struct {
	DefaultTopK           int     `mapstructure:"default_top_k"`           // 默认 5
	MaxTopK               int     `mapstructure:"max_top_k"`               // 默认 10
	DefaultScoreThreshold float64 `mapstructure:"default_score_threshold"` // 默认 0.35
	MaxContextLength      int     `mapstructure:"max_context_length"`      // 默认 3000 字符
}

// AnswerConfig 回答生成配置
type AnswerConfig struct {
	Temperature float64 `mapstructure:"temperature"` // 默认 0.2
	MaxTokens   int     `mapstructure:"max_tokens"`  // 默认 400
}

// EmbedCacheConfig 向量缓存配置
type EmbedCacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	TTL     string `mapstructure:"ttl"` // 如 "168h" 表示 7 天
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	Type   string       `mapstructure:"type"` // qdrant, pgvector
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig Qdrant 外部向量数据库配置
type QdrantConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	APIKey          string `mapstructure:"api_key"`
	Collection      string `mapstructure:"collection"`
	VectorDimension int    `mapstructure:"vector_dimension"`
	Distance        string `mapstructure:"distance"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
