package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Client ClientConfig
	AI     AIConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if cfg.Server.HistoryLimit < 1 {
		cfg.Server.HistoryLimit = 1
	}
	return cfg, nil
}

// ServerConfig 描述参考聊天端点的配置。
type ServerConfig struct {
	Port         string `env:"PORT" envDefault:"5000"`
	Addr         string
	DataPath     string   `env:"DATA_PATH"`
	HistoryLimit int      `env:"HISTORY_LIMIT" envDefault:"100"`
	AllowOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// ClientConfig 描述聊天窗口客户端配置。
type ClientConfig struct {
	ServerURL      string        `env:"CHATBOX_SERVER_URL" envDefault:"ws://localhost:5000/socket"`
	TimeLayout     string        `env:"CHATBOX_TIME_LAYOUT" envDefault:"3:04:05 PM"`
	ReconnectDelay time.Duration `env:"CHATBOX_RECONNECT_DELAY" envDefault:"1s"`
	MaxRetries     int           `env:"CHATBOX_MAX_RETRIES" envDefault:"0"`
	Markdown       bool          `env:"CHATBOX_MARKDOWN" envDefault:"false"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	File  string `env:"LOG_FILE" envDefault:"chatbox.log"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string   `env:"ARK_API_KEY"`
	AccessKey    string   `env:"ARK_ACCESS_KEY"`
	SecretKey    string   `env:"ARK_SECRET_KEY"`
	Model        string   `env:"Model"`
	BaseURL      string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region       string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature  *float32 `env:"ARK_TEMPERATURE"`
	TopP         *float32 `env:"ARK_TOP_P"`
	MaxTokens    *int     `env:"ARK_MAX_TOKENS"`
	SystemPrompt string   `env:"BOT_SYSTEM_PROMPT" envDefault:"You are a friendly support assistant. Keep answers short."`
	HistoryLimit int      `env:"BOT_HISTORY_LIMIT" envDefault:"10"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
	}

	return ark.NewChatModel(ctx, cfg)
}
