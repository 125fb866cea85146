package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfigAppliesDefaults 未配置的字段应补齐默认值
func TestLoadConfigAppliesDefaults(t *testing.T) {
	configPath := writeConfig(t, `
llm:
  api_key: "sk-test"
mysql:
  host: "db.internal"
  port: 3307
`)

	cfg, err := LoadConfigFromFileOnly(configPath)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen-turbo", cfg.LLM.Model)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, "tika", cfg.Extractor.Backend)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "resume.version.created", cfg.RabbitMQ.VersionCreatedRoutingKey)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSizeBytes())
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
}

// TestLoadConfigEnvOverride 环境变量覆盖配置文件
func TestLoadConfigEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
llm:
  api_key: "from-file"
  model: "qwen-plus"
  mock_mode: false
`)
	t.Setenv("LLM_API_KEY", "from-env")
	t.Setenv("LLM_MOCK_MODE", "true")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
	assert.True(t, cfg.LLM.MockMode)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

// TestLoadConfigLegacyEnv 兼容旧的 ALIYUN_* 环境变量
func TestLoadConfigLegacyEnv(t *testing.T) {
	configPath := writeConfig(t, "server:\n  address: \":9090\"\n")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("ALIYUN_API_KEY", "legacy-key")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.LLM.APIKey)
	assert.Equal(t, ":9090", cfg.Server.Address)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "llm: [unclosed")
	_, err := LoadConfigFromFileOnly(configPath)
	assert.Error(t, err)
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfigFromFileOnly(path)
	require.NoError(t, err)
	assert.True(t, cfg.LLM.MockMode)
	assert.Equal(t, "career_agent", cfg.MySQL.Database)

	// 已存在时不覆盖
	assert.Error(t, CreateSampleConfig(path))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, GetDuration("3s", time.Second))
	assert.Equal(t, time.Second, GetDuration("", time.Second))
	assert.Equal(t, time.Second, GetDuration("abc", time.Second))
}
