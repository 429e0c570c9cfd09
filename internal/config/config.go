package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Live  LiveConfig
	Panel PanelConfig
	Tools ToolsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	live, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	panel, err := loadPanelConfig()
	if err != nil {
		return nil, err
	}

	tools, err := loadToolsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Live: live, Panel: panel, Tools: tools}, nil
}

// LiveConfig 描述实时通道的连接配置。
type LiveConfig struct {
	URL    string
	APIKey string
	Model  string
}

func loadLiveConfig() (LiveConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("LIVE_API_KEY"))
	if apiKey == "" {
		return LiveConfig{}, fmt.Errorf("LIVE_API_KEY is required")
	}

	return LiveConfig{
		URL:    getEnvOrDefault("LIVE_URL", "wss://localhost:8443/v1/live"),
		APIKey: apiKey,
		Model:  getEnvOrDefault("LIVE_MODEL", "workshop-assist-live"),
	}, nil
}

// PanelConfig 描述调试面板的HTTP监听配置。
type PanelConfig struct {
	Addr string
}

func loadPanelConfig() (PanelConfig, error) {
	port := strings.TrimSpace(os.Getenv("PANEL_PORT"))
	if port == "" {
		port = "8090"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8090" 或 "127.0.0.1:8090"。
		return PanelConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return PanelConfig{}, fmt.Errorf("invalid PANEL_PORT value: %q", port)
	}

	return PanelConfig{Addr: ":" + port}, nil
}

// ToolsConfig 描述工具侧大模型的配置。
type ToolsConfig struct {
	APIKey           string
	AccessKey        string
	SecretKey        string
	Model            string
	BaseURL          string
	Region           string
	Temperature      *float64
	MaxTokens        *int
	ManualLLMEnabled bool
}

// Enabled 表示是否提供了必需的密钥。
func (c ToolsConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ToolsConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
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
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadToolsConfig() (ToolsConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ToolsConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ToolsConfig{}, err
	}

	manualEnabled, err := parseBoolEnv("TOOLS_MANUAL_LLM_ENABLED", false)
	if err != nil {
		return ToolsConfig{}, err
	}

	return ToolsConfig{
		APIKey:           strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:        strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:        strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:            strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:          getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:           getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		ManualLLMEnabled: manualEnabled,
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
