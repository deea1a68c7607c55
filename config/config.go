// Package config loads and validates application configuration using Viper,
// supporting a YAML config file and TABULA_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the knowledge-base backend. Tags map
// config file keys and environment variables; validate tags are enforced by
// Validate after loading.
type Config struct {
	Server struct {
		Addr        string   `mapstructure:"addr" validate:"required"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`

	Catalog struct {
		Path string `mapstructure:"path" validate:"required"`
	} `mapstructure:"catalog"`

	Milvus struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url" validate:"required_if=Enabled true"`
	} `mapstructure:"milvus"`

	Elasticsearch struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url" validate:"required_if=Enabled true"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`

	Neo4j struct {
		Enabled  bool   `mapstructure:"enabled"`
		URI      string `mapstructure:"uri" validate:"required_if=Enabled true"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Database string `mapstructure:"database"`
	} `mapstructure:"neo4j"`

	Redis struct {
		Addr string `mapstructure:"addr" validate:"required"`
		DB   int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	LLM struct {
		BaseURL        string `mapstructure:"base_url"`
		APIKey         string `mapstructure:"api_key"`
		ChatModel      string `mapstructure:"chat_model"`
		EmbeddingModel string `mapstructure:"embedding_model"`
		EmbeddingDim   int    `mapstructure:"embedding_dim" validate:"gt=0"`
	} `mapstructure:"llm"`

	Pipeline struct {
		MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
		SandboxTimeout    time.Duration `mapstructure:"sandbox_timeout"`
	} `mapstructure:"pipeline"`

	Paths struct {
		FileDir       string `mapstructure:"file_dir"`
		GraphDataDir  string `mapstructure:"graph_data_dir"`
		DiscussionDir string `mapstructure:"discussion_dir"`
		SandboxDir    string `mapstructure:"sandbox_dir"`
	} `mapstructure:"paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8777")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("catalog.path", "conf/sqlite/knowledge_base.sqlite")
	v.SetDefault("milvus.enabled", true)
	v.SetDefault("milvus.base_url", "http://localhost:19530")
	v.SetDefault("elasticsearch.enabled", true)
	v.SetDefault("elasticsearch.base_url", "http://localhost:9200")
	v.SetDefault("elasticsearch.index", "knowledge_base")
	v.SetDefault("neo4j.enabled", true)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("llm.base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.chat_model", "qwen-plus")
	v.SetDefault("llm.embedding_model", "text-embedding-v3")
	v.SetDefault("llm.embedding_dim", 1024)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.heartbeat_interval", 3*time.Second)
	v.SetDefault("pipeline.idle_timeout", 300*time.Second)
	v.SetDefault("pipeline.sandbox_timeout", 30*time.Second)
	v.SetDefault("paths.file_dir", "conf/file")
	v.SetDefault("paths.graph_data_dir", "lightrag_data")
	v.SetDefault("paths.discussion_dir", "discussion")
	v.SetDefault("paths.sandbox_dir", "conf/tmp/sandbox_files")
}

// Load reads configuration from config.yaml (searched in the given paths,
// then the working directory) and TABULA_-prefixed environment variables.
// A missing config file is not an error; defaults and the environment apply.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TABULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration against its validate tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns a Config populated with defaults only, useful in tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
