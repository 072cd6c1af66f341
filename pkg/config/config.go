package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Store        StoreConfig        `koanf:"store"`
	Memory       MemoryConfig       `koanf:"memory"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	Protocol     ProtocolConfig     `koanf:"protocol"`
	ToT          ToTConfig          `koanf:"tot"`
	Curator      CuratorConfig      `koanf:"curator"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Gateway      GatewayConfig      `koanf:"gateway"`
	MCP          MCPConfig          `koanf:"mcp"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type StoreConfig struct {
	Provider string `koanf:"provider"` // sqlite, inmemory
	Path     string `koanf:"path"`
}

type MemoryConfig struct {
	VectorEnabled    bool   `koanf:"vector_enabled"`
	QdrantAddr       string `koanf:"qdrant_addr"`
	Collection       string `koanf:"collection"`
	EmbedderProvider string `koanf:"embedder_provider"` // ollama
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
}

type KnowledgeConfig struct {
	Provider string `koanf:"provider"` // file, inmemory
	Dir      string `koanf:"dir"`
}

type ProtocolConfig struct {
	MaxRetries int `koanf:"max_retries"`
}

type ToTConfig struct {
	Width          int     `koanf:"width"`
	Depth          int     `koanf:"depth"`
	ScoreThreshold float64 `koanf:"score_threshold"`
}

type CuratorConfig struct {
	ContextBudget int `koanf:"context_budget"`
}

type OrchestratorConfig struct {
	MaxSteps      int           `koanf:"max_steps"`
	Workers       int           `koanf:"workers"`
	ActionTimeout time.Duration `koanf:"action_timeout"`
}

type GatewayConfig struct {
	DefaultTimeout time.Duration `koanf:"default_timeout"`
	MinConfidence  float64       `koanf:"min_confidence"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

// MCPServerConfig describes one stdio MCP server whose tools are registered
// with the gateway at startup.
type MCPServerConfig struct {
	Name    string   `koanf:"name"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load reads configuration with precedence: defaults, then the YAML file at
// path (when given), then TELOS_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("store.provider", "inmemory")
	k.Set("store.path", "telos.db")

	k.Set("memory.vector_enabled", false)
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "reflexions")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	k.Set("knowledge.provider", "file")
	k.Set("knowledge.dir", "knowledge")

	k.Set("protocol.max_retries", 3)

	k.Set("tot.width", 3)
	k.Set("tot.depth", 4)
	k.Set("tot.score_threshold", 5.0)

	k.Set("curator.context_budget", 16*1024)

	k.Set("orchestrator.max_steps", 8)
	k.Set("orchestrator.workers", 1)
	k.Set("orchestrator.action_timeout", "30s")

	k.Set("gateway.default_timeout", "30s")
	k.Set("gateway.min_confidence", 0.3)

	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (TELOS_TOT_WIDTH -> tot.width)
	if err := k.Load(env.Provider("TELOS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TELOS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
